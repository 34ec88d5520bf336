package nexusapi

import (
	"time"

	"nexusgreen.org/internal/access"
)

// User is the backend-owned identity record. The portal holds a
// read-only cached copy.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Active    bool       `json:"isActive"`
	Verified  bool       `json:"emailVerified"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Organization is tenant-level metadata associated with a user.
type Organization struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Locale   string `json:"locale,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// LoginResponse is the backend login payload. Two response shapes are
// observed in the wild: the full one below and a legacy bare
// {user, accessToken}. Decoding tolerates the missing fields of the
// legacy shape; the portal only ever produces the full one.
type LoginResponse struct {
	AccessToken  string                  `json:"accessToken"`
	RefreshToken string                  `json:"refreshToken,omitempty"`
	User         User                    `json:"user"`
	Roles        []access.RoleAssignment `json:"roles,omitempty"`
	Organization *Organization           `json:"organization,omitempty"`
}

// MeResponse mirrors GET /api/v1/auth/me.
type MeResponse struct {
	User         User                    `json:"user"`
	Roles        []access.RoleAssignment `json:"roles,omitempty"`
	Organization *Organization           `json:"organization,omitempty"`
}

// RefreshResponse is the token exchange payload. Backends that rotate
// refresh tokens include the new one; otherwise the old token stays
// valid.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ForgotPasswordResponse optionally carries a reset link in
// development setups.
type ForgotPasswordResponse struct {
	ResetLink string `json:"reset_link,omitempty"`
}
