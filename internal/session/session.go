package session

import (
	"context"

	"nexusgreen.org/internal/access"
	"nexusgreen.org/internal/nexusapi"
)

// Session is the portal-held, backend-authoritative record of who is
// logged in and what they may currently see. Tokens and cached user
// state live in the Store; the backend session remains the source of
// truth.
type Session struct {
	ID            string
	User          nexusapi.User
	Organization  *nexusapi.Organization
	Assignments   []access.RoleAssignment
	CurrentPortal access.Role
	Currency      string
}

// Resolver builds the authorization resolver for the session's current
// portal context.
func (s *Session) Resolver() *access.Resolver {
	return access.NewResolver(s.Assignments, s.CurrentPortal)
}

// AccessiblePortals returns the portals the user may switch into.
func (s *Session) AccessiblePortals() []access.Role {
	return s.Resolver().AccessiblePortals()
}

type sessionContextKey struct{}

// ContextWith attaches the authenticated session to the context.
func ContextWith(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// FromContext extracts the authenticated session from the context.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
