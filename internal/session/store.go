package session

import (
	"context"
	"time"
)

// Record is the persisted session cache: tokens plus cached copies of
// the upstream user, organization and role assignment JSON, and the
// user's portal/currency selections. It mirrors what the browser client
// kept in local storage; it is cache, not source of truth.
type Record struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	UserJSON     []byte
	OrgJSON      []byte
	RolesJSON    []byte
	Portal       string
	Currency     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Preference is per-user state that outlives a session: the portal the
// user last worked in and their display currency. A fresh login
// restores both.
type Preference struct {
	Portal   string
	Currency string
}

// Store persists session records and user preferences. Implementations
// must return ErrNotFound on a miss.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Find(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error

	SavePreference(ctx context.Context, userID string, pref Preference) error
	FindPreference(ctx context.Context, userID string) (Preference, error)
}
