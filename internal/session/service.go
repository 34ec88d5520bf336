package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nexusgreen.org/internal/access"
	"nexusgreen.org/internal/ids"
	"nexusgreen.org/internal/nexusapi"
	"nexusgreen.org/internal/obs"
)

// expirySkew is the slack applied when judging a cached access token
// still usable.
const expirySkew = 30 * time.Second

// EventType enumerates session state changes.
type EventType string

const (
	EventLogin        EventType = "login"
	EventLogout       EventType = "logout"
	EventPortalSwitch EventType = "portal_switch"
	EventInvalidated  EventType = "invalidated"
	EventCurrency     EventType = "currency"
)

// Event describes one session state change delivered to subscribers.
type Event struct {
	Type      EventType
	SessionID string
	UserID    string
	Portal    access.Role
}

// Service is the session/token manager. It logs users in against the
// upstream API, persists the session cache through a Store, resolves
// the current portal, and emits events on every state change so
// consumers observe session state instead of reading ambient globals.
type Service struct {
	api          *nexusapi.Client
	store        Store
	roleDefaults map[access.Role][]access.Permission
	now          func() time.Time
	newID        func() string

	authedMu sync.Mutex
	authed   map[string]*nexusapi.Authed

	subMu sync.RWMutex
	subs  []func(Event)
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIDFunc overrides session id generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithRoleDefaults overrides the built-in role permission matrix used
// when upstream assignments arrive without explicit permissions.
func WithRoleDefaults(defaults map[access.Role][]access.Permission) Option {
	return func(s *Service) { s.roleDefaults = defaults }
}

// New constructs the session service.
func New(api *nexusapi.Client, store Store, opts ...Option) *Service {
	s := &Service{
		api:    api,
		store:  store,
		now:    time.Now,
		newID:  ids.New,
		authed: make(map[string]*nexusapi.Authed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a state change observer. Observers run
// synchronously on the goroutine that mutated the session.
func (s *Service) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Service) notify(ev Event) {
	s.subMu.RLock()
	subs := make([]func(Event), len(s.subs))
	copy(subs, s.subs)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Login authenticates against the upstream API and creates a session.
// The current portal is the saved preference when still accessible,
// else the first accessible portal, else unset. A rejected login
// surfaces the backend's message and writes nothing to the store.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	assignments := access.ApplyDefaults(resp.Roles, s.roleDefaults)
	resolver := access.NewResolver(assignments, "", access.WithClock(s.now))
	portals := resolver.AccessiblePortals()

	pref, prefErr := s.store.FindPreference(ctx, resp.User.ID)
	if prefErr != nil && !errors.Is(prefErr, ErrNotFound) {
		return nil, fmt.Errorf("load preference: %w", prefErr)
	}

	portal := pickPortal(pref.Portal, portals)

	rec := &Record{
		ID:           s.newID(),
		UserID:       resp.User.ID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Portal:       string(portal),
		Currency:     pref.Currency,
		CreatedAt:    s.now().UTC(),
	}
	if rec.UserJSON, err = json.Marshal(resp.User); err != nil {
		return nil, fmt.Errorf("cache user: %w", err)
	}
	if resp.Organization != nil {
		if rec.OrgJSON, err = json.Marshal(resp.Organization); err != nil {
			return nil, fmt.Errorf("cache organization: %w", err)
		}
	}
	if rec.RolesJSON, err = json.Marshal(assignments); err != nil {
		return nil, fmt.Errorf("cache assignments: %w", err)
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	sess, err := s.buildSession(rec)
	if err != nil {
		return nil, err
	}
	s.notify(Event{Type: EventLogin, SessionID: sess.ID, UserID: sess.User.ID, Portal: sess.CurrentPortal})
	return sess, nil
}

// pickPortal applies the restore rule: saved preference when still in
// the accessible set, else the first accessible portal, else none.
func pickPortal(saved string, portals []access.Role) access.Role {
	if saved != "" {
		if role, err := access.ParseRole(saved); err == nil {
			for _, p := range portals {
				if p == role {
					return role
				}
			}
		}
	}
	if len(portals) > 0 {
		return portals[0]
	}
	return ""
}

// Logout notifies the backend best-effort, then unconditionally clears
// local session state.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	rec, err := s.store.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.Authed(sessionID).Logout(ctx); err != nil {
		obs.LogError("upstream logout failed", map[string]any{"error": err.Error()})
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.dropAuthed(sessionID)
	s.notify(Event{Type: EventLogout, SessionID: sessionID, UserID: rec.UserID})
	return nil
}

// SwitchPortal changes the session's current portal. A role outside the
// accessible set yields ErrPortalDenied and leaves the session intact;
// otherwise the choice is persisted so a fresh login restores it.
func (s *Service) SwitchPortal(ctx context.Context, sessionID string, role access.Role) (*Session, error) {
	rec, err := s.findRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := s.buildSession(rec)
	if err != nil {
		return nil, err
	}
	if !sess.Resolver().CanEnter(role) {
		return nil, fmt.Errorf("%w: %s", ErrPortalDenied, role)
	}

	rec.Portal = string(role)
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if err := s.store.SavePreference(ctx, rec.UserID, Preference{Portal: string(role), Currency: rec.Currency}); err != nil {
		return nil, fmt.Errorf("save preference: %w", err)
	}

	sess.CurrentPortal = role
	s.notify(Event{Type: EventPortalSwitch, SessionID: sessionID, UserID: rec.UserID, Portal: role})
	return sess, nil
}

// SetCurrency updates the session's display currency and persists it as
// a user preference.
func (s *Service) SetCurrency(ctx context.Context, sessionID, currency string) error {
	rec, err := s.findRecord(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.Currency = currency
	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.store.SavePreference(ctx, rec.UserID, Preference{Portal: rec.Portal, Currency: currency}); err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	s.notify(Event{Type: EventCurrency, SessionID: sessionID, UserID: rec.UserID})
	return nil
}

// Restore rebuilds a session from the cache. While the cached access
// token is still valid the cached copies are served without a network
// roundtrip; otherwise the authoritative state is refetched through
// the refreshing client, and an upstream rejection clears the session.
func (s *Service) Restore(ctx context.Context, sessionID string) (*Session, error) {
	rec, err := s.findRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.tokenUsable(rec.AccessToken) {
		return s.buildSession(rec)
	}

	me, err := s.Authed(sessionID).Me(ctx)
	if err != nil {
		if nexusapi.IsAuthFailure(err) {
			// A failed refresh already cleared the record through the
			// token source; only clean up when it is still present.
			if _, findErr := s.store.Find(ctx, sessionID); findErr == nil {
				_ = s.store.Delete(ctx, sessionID)
				s.dropAuthed(sessionID)
				s.notify(Event{Type: EventInvalidated, SessionID: sessionID, UserID: rec.UserID})
			}
			return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
		return nil, err
	}

	// Refresh the cached copies; the token source already stored any
	// rotated tokens, so reload the record before rewriting it.
	rec, err = s.findRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	assignments := access.ApplyDefaults(me.Roles, s.roleDefaults)
	if rec.UserJSON, err = json.Marshal(me.User); err != nil {
		return nil, fmt.Errorf("cache user: %w", err)
	}
	if me.Organization != nil {
		if rec.OrgJSON, err = json.Marshal(me.Organization); err != nil {
			return nil, fmt.Errorf("cache organization: %w", err)
		}
	}
	if rec.RolesJSON, err = json.Marshal(assignments); err != nil {
		return nil, fmt.Errorf("cache assignments: %w", err)
	}
	resolver := access.NewResolver(assignments, "", access.WithClock(s.now))
	rec.Portal = string(pickPortal(rec.Portal, resolver.AccessiblePortals()))
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return s.buildSession(rec)
}

// Authed returns the refreshing upstream client bound to the session.
// The view is cached per session so concurrent requests share one
// refresh serialization point.
func (s *Service) Authed(sessionID string) *nexusapi.Authed {
	s.authedMu.Lock()
	defer s.authedMu.Unlock()
	if a, ok := s.authed[sessionID]; ok {
		return a
	}
	a := s.api.Authed(&recordTokens{svc: s, sessionID: sessionID})
	s.authed[sessionID] = a
	return a
}

func (s *Service) dropAuthed(sessionID string) {
	s.authedMu.Lock()
	delete(s.authed, sessionID)
	s.authedMu.Unlock()
}

func (s *Service) findRecord(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrNotAuthenticated
	}
	rec, err := s.store.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	return rec, nil
}

// buildSession materializes a Session from a cache record, holding the
// invariant that the current portal, when set, is accessible.
func (s *Service) buildSession(rec *Record) (*Session, error) {
	sess := &Session{ID: rec.ID, Currency: rec.Currency}
	if err := json.Unmarshal(rec.UserJSON, &sess.User); err != nil {
		return nil, fmt.Errorf("decode cached user: %w", err)
	}
	if len(rec.OrgJSON) > 0 {
		sess.Organization = &nexusapi.Organization{}
		if err := json.Unmarshal(rec.OrgJSON, sess.Organization); err != nil {
			return nil, fmt.Errorf("decode cached organization: %w", err)
		}
	}
	if len(rec.RolesJSON) > 0 {
		if err := json.Unmarshal(rec.RolesJSON, &sess.Assignments); err != nil {
			return nil, fmt.Errorf("decode cached assignments: %w", err)
		}
	}
	if rec.Portal != "" {
		role, err := access.ParseRole(rec.Portal)
		if err == nil {
			resolver := access.NewResolver(sess.Assignments, "", access.WithClock(s.now))
			if resolver.CanEnter(role) {
				sess.CurrentPortal = role
			}
		}
	}
	return sess, nil
}

// tokenUsable peeks at the access token's expiry claim. The signature
// belongs to the upstream and is not verified here; an unreadable or
// expiring token forces the authoritative roundtrip.
func (s *Service) tokenUsable(token string) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.After(s.now().Add(expirySkew))
}

// recordTokens adapts a session record to the upstream token source.
type recordTokens struct {
	svc       *Service
	sessionID string
}

func (r *recordTokens) Tokens(ctx context.Context) (string, string, error) {
	rec, err := r.svc.findRecord(ctx, r.sessionID)
	if err != nil {
		return "", "", err
	}
	return rec.AccessToken, rec.RefreshToken, nil
}

func (r *recordTokens) Store(ctx context.Context, accessToken, refreshToken string) error {
	rec, err := r.svc.findRecord(ctx, r.sessionID)
	if err != nil {
		return err
	}
	rec.AccessToken = accessToken
	rec.RefreshToken = refreshToken
	return r.svc.store.Save(ctx, rec)
}

func (r *recordTokens) Invalidate(ctx context.Context) error {
	rec, err := r.svc.findRecord(ctx, r.sessionID)
	if err != nil {
		return nil
	}
	if err := r.svc.store.Delete(ctx, r.sessionID); err != nil {
		return err
	}
	r.svc.dropAuthed(r.sessionID)
	r.svc.notify(Event{Type: EventInvalidated, SessionID: r.sessionID, UserID: rec.UserID})
	return nil
}
