package nexusapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// TokenSource provides and persists one session's credentials.
type TokenSource interface {
	// Tokens returns the current access and refresh tokens.
	Tokens(ctx context.Context) (access, refresh string, err error)
	// Store persists a freshly exchanged token pair.
	Store(ctx context.Context, access, refresh string) error
	// Invalidate clears the credentials, forcing a new login.
	Invalidate(ctx context.Context) error
}

// Authed is a client view bound to one session's tokens. On a 401 it
// exchanges the refresh token exactly once and replays the failing
// request exactly once; a failing refresh invalidates the session
// instead of looping.
type Authed struct {
	c  *Client
	ts TokenSource

	// refreshMu serializes the exchange so concurrent 401s on the same
	// session refresh once, and the replay never races the exchange.
	refreshMu sync.Mutex
}

// Authed binds the client to a session's token source.
func (c *Client) Authed(ts TokenSource) *Authed {
	return &Authed{c: c, ts: ts}
}

func (a *Authed) do(ctx context.Context, method, path string, body, out any) error {
	access, _, err := a.ts.Tokens(ctx)
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}

	err = a.c.do(ctx, method, path, access, body, out)
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	fresh, refreshErr := a.refreshOnce(ctx, access)
	if refreshErr != nil {
		return refreshErr
	}
	// Single replay with the new token. A second 401 propagates as-is.
	return a.c.do(ctx, method, path, fresh, body, out)
}

// refreshOnce exchanges the refresh token for a new access token. When
// a concurrent caller already rotated the pair, the rotated access
// token is reused without another exchange.
func (a *Authed) refreshOnce(ctx context.Context, stale string) (string, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	access, refresh, err := a.ts.Tokens(ctx)
	if err != nil {
		return "", fmt.Errorf("load tokens: %w", err)
	}
	if access != "" && access != stale {
		return access, nil
	}
	if refresh == "" {
		_ = a.ts.Invalidate(ctx)
		return "", ErrSessionExpired
	}

	resp, err := a.c.Refresh(ctx, refresh)
	if err != nil {
		_ = a.ts.Invalidate(ctx)
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	next := resp.RefreshToken
	if next == "" {
		next = refresh
	}
	if err := a.ts.Store(ctx, resp.AccessToken, next); err != nil {
		return "", fmt.Errorf("store tokens: %w", err)
	}
	return resp.AccessToken, nil
}

// Me returns the authoritative user/roles/organization state.
func (a *Authed) Me(ctx context.Context) (*MeResponse, error) {
	var resp MeResponse
	if err := a.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout notifies the backend that the session ends. Callers clear
// local state regardless of the outcome.
func (a *Authed) Logout(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// Permissions returns the caller's effective permission grants.
func (a *Authed) Permissions(ctx context.Context) ([]map[string]any, error) {
	var perms []map[string]any
	if err := a.do(ctx, http.MethodGet, "/api/v1/auth/permissions", nil, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}
