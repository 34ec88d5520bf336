package session

import "errors"

var (
	// ErrNotAuthenticated is returned for unknown or cleared sessions.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrPortalDenied is returned when a portal switch targets a role
	// outside the accessible-portals set.
	ErrPortalDenied = errors.New("session: portal access denied")
	// ErrNotFound is the store-level miss sentinel.
	ErrNotFound = errors.New("session: not found")
)
