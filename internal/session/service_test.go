package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nexusgreen.org/internal/access"
	"nexusgreen.org/internal/nexusapi"
)

// signedToken builds a structurally valid JWT with the given expiry.
// The signature is garbage; only the unverified expiry peek reads it.
func signedToken(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, _ := json.Marshal(map[string]any{"sub": "user-1", "exp": exp.Unix()})
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return header + "." + payload + ".c2ln"
}

func tokenExpired(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return true
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return true
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return true
	}
	return time.Unix(claims.Exp, 0).Before(time.Now())
}

type upstream struct {
	t *testing.T

	accessToken  string
	refreshToken string
	roles        []access.RoleAssignment

	loginCalls   int
	meCalls      int
	refreshCalls int
	logoutCalls  int

	logoutStatus  int
	refreshStatus int
}

func newUpstream(t *testing.T) *upstream {
	return &upstream{
		t:            t,
		accessToken:  signedToken(time.Now().Add(time.Hour)),
		refreshToken: "refresh-1",
		roles: []access.RoleAssignment{
			{ID: "1", Role: access.RoleCustomer, Active: true},
			{ID: "2", Role: access.RoleFunder, ProjectID: 7, Active: true},
		},
	}
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		u.loginCalls++
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Invalid credentials"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(nexusapi.LoginResponse{
			AccessToken:  u.accessToken,
			RefreshToken: u.refreshToken,
			User:         nexusapi.User{ID: "user-1", Email: req.Email, Active: true},
			Roles:        u.roles,
			Organization: &nexusapi.Organization{ID: "org-1", Name: "SolarCo", Currency: "EUR"},
		})
	})
	mux.HandleFunc("/api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		u.meCalls++
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != u.accessToken || tokenExpired(token) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"jwt expired"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(nexusapi.MeResponse{
			User:  nexusapi.User{ID: "user-1", Email: "a@b.c", Active: true},
			Roles: u.roles,
		})
	})
	mux.HandleFunc("/api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		u.refreshCalls++
		if u.refreshStatus != 0 {
			w.WriteHeader(u.refreshStatus)
			fmt.Fprint(w, `{"message":"refresh token revoked"}`)
			return
		}
		u.accessToken = signedToken(time.Now().Add(time.Hour))
		u.refreshToken = "refresh-" + fmt.Sprint(u.refreshCalls+1)
		_ = json.NewEncoder(w).Encode(nexusapi.RefreshResponse{
			AccessToken:  u.accessToken,
			RefreshToken: u.refreshToken,
		})
	})
	mux.HandleFunc("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		u.logoutCalls++
		if u.logoutStatus != 0 {
			w.WriteHeader(u.logoutStatus)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

type countingStore struct {
	*MemoryStore
	saves int
}

func (c *countingStore) Save(ctx context.Context, rec *Record) error {
	c.saves++
	return c.MemoryStore.Save(ctx, rec)
}

func newTestService(t *testing.T, u *upstream, store Store) *Service {
	t.Helper()
	srv := httptest.NewServer(u.handler())
	t.Cleanup(srv.Close)
	return New(nexusapi.New(srv.URL), store)
}

func TestLoginPicksFirstAccessiblePortal(t *testing.T) {
	u := newUpstream(t)
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.CurrentPortal != access.RoleCustomer {
		t.Fatalf("expected first accessible portal CUSTOMER, got %s", sess.CurrentPortal)
	}
	if sess.User.ID != "user-1" || sess.Organization == nil || sess.Organization.Currency != "EUR" {
		t.Fatalf("session not populated: %+v", sess)
	}
	rec, err := store.Find(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("session record not saved: %v", err)
	}
	if rec.AccessToken != u.accessToken || rec.RefreshToken != u.refreshToken {
		t.Fatalf("tokens not cached")
	}
}

func TestLoginRestoresSavedPortalPreference(t *testing.T) {
	u := newUpstream(t)
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	if err := store.SavePreference(context.Background(), "user-1", Preference{Portal: "FUNDER", Currency: "USD"}); err != nil {
		t.Fatalf("SavePreference: %v", err)
	}
	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.CurrentPortal != access.RoleFunder {
		t.Fatalf("expected saved portal FUNDER, got %s", sess.CurrentPortal)
	}
	if sess.Currency != "USD" {
		t.Fatalf("expected saved currency USD, got %q", sess.Currency)
	}
}

func TestLoginIgnoresInaccessiblePreference(t *testing.T) {
	u := newUpstream(t)
	u.roles = []access.RoleAssignment{{ID: "1", Role: access.RoleCustomer, Active: true}}
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	if err := store.SavePreference(context.Background(), "user-1", Preference{Portal: "SUPER_ADMIN"}); err != nil {
		t.Fatalf("SavePreference: %v", err)
	}
	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.CurrentPortal != access.RoleCustomer {
		t.Fatalf("expected fallback to CUSTOMER, got %s", sess.CurrentPortal)
	}
}

func TestRejectedLoginWritesNothing(t *testing.T) {
	u := newUpstream(t)
	store := &countingStore{MemoryStore: NewMemoryStore()}
	svc := newTestService(t, u, store)

	_, err := svc.Login(context.Background(), "a@b.c", "wrong")
	if err == nil {
		t.Fatal("expected login rejection")
	}
	if !strings.Contains(err.Error(), "Invalid credentials") {
		t.Fatalf("backend message not surfaced: %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("rejected login wrote %d records", store.saves)
	}
}

func TestLoginWithoutAssignmentsLeavesPortalUnset(t *testing.T) {
	u := newUpstream(t)
	u.roles = nil
	svc := newTestService(t, u, NewMemoryStore())

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.CurrentPortal != "" {
		t.Fatalf("expected no portal, got %s", sess.CurrentPortal)
	}
	if got := sess.AccessiblePortals(); len(got) != 0 {
		t.Fatalf("expected no accessible portals, got %v", got)
	}
}

func TestSwitchPortalDeniedOutsideAccessibleSet(t *testing.T) {
	u := newUpstream(t)
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.SwitchPortal(context.Background(), sess.ID, access.RoleSuperAdmin); !errors.Is(err, ErrPortalDenied) {
		t.Fatalf("expected ErrPortalDenied, got %v", err)
	}
	restored, err := svc.Restore(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Restore after denied switch: %v", err)
	}
	if restored.CurrentPortal != access.RoleCustomer {
		t.Fatalf("denied switch mutated portal: %s", restored.CurrentPortal)
	}
}

func TestSwitchPortalPersistsAcrossLogins(t *testing.T) {
	u := newUpstream(t)
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	switched, err := svc.SwitchPortal(context.Background(), sess.ID, access.RoleFunder)
	if err != nil {
		t.Fatalf("SwitchPortal: %v", err)
	}
	if switched.CurrentPortal != access.RoleFunder {
		t.Fatalf("switch did not take effect: %s", switched.CurrentPortal)
	}
	if err := svc.Logout(context.Background(), sess.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	again, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if again.CurrentPortal != access.RoleFunder {
		t.Fatalf("portal preference lost across logins: %s", again.CurrentPortal)
	}
}

func TestLogoutClearsLocalStateDespiteBackendError(t *testing.T) {
	u := newUpstream(t)
	u.logoutStatus = http.StatusInternalServerError
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(context.Background(), sess.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Restore(context.Background(), sess.ID); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated after logout, got %v", err)
	}
	if u.logoutCalls != 1 {
		t.Fatalf("expected one upstream logout call, got %d", u.logoutCalls)
	}
}

func TestRestoreServesFromCacheWhileTokenValid(t *testing.T) {
	u := newUpstream(t)
	svc := newTestService(t, u, NewMemoryStore())

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	restored, err := svc.Restore(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if u.meCalls != 0 {
		t.Fatalf("expected no upstream roundtrip with valid token, got %d /me calls", u.meCalls)
	}
	if restored.User.ID != "user-1" || restored.CurrentPortal != access.RoleCustomer {
		t.Fatalf("cached session incomplete: %+v", restored)
	}
}

func TestRestoreRefreshesExpiredToken(t *testing.T) {
	u := newUpstream(t)
	u.accessToken = signedToken(time.Now().Add(-time.Minute))
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	restored, err := svc.Restore(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if u.refreshCalls != 1 {
		t.Fatalf("expected one refresh exchange, got %d", u.refreshCalls)
	}
	if restored.User.ID != "user-1" {
		t.Fatalf("restored session incomplete: %+v", restored)
	}
	rec, err := store.Find(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Find after restore: %v", err)
	}
	if rec.AccessToken != u.accessToken {
		t.Fatalf("rotated token not persisted")
	}
}

func TestRestoreInvalidatesWhenRefreshRejected(t *testing.T) {
	u := newUpstream(t)
	u.accessToken = signedToken(time.Now().Add(-time.Minute))
	u.refreshStatus = http.StatusUnauthorized
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	var events []Event
	svc.Subscribe(func(ev Event) { events = append(events, ev) })

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Restore(context.Background(), sess.ID); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := store.Find(context.Background(), sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("session record survived failed refresh: %v", err)
	}

	var invalidated int
	for _, ev := range events {
		if ev.Type == EventInvalidated {
			invalidated++
		}
	}
	if invalidated != 1 {
		t.Fatalf("expected exactly one invalidation event, got %d (events %v)", invalidated, events)
	}
}

func TestSetCurrencyPersistsPreference(t *testing.T) {
	u := newUpstream(t)
	store := NewMemoryStore()
	svc := newTestService(t, u, store)

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.SetCurrency(context.Background(), sess.ID, "ZAR"); err != nil {
		t.Fatalf("SetCurrency: %v", err)
	}
	restored, err := svc.Restore(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Currency != "ZAR" {
		t.Fatalf("currency not applied: %q", restored.Currency)
	}
	pref, err := store.FindPreference(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FindPreference: %v", err)
	}
	if pref.Currency != "ZAR" {
		t.Fatalf("currency preference not persisted: %+v", pref)
	}
}

func TestEventsFollowSessionLifecycle(t *testing.T) {
	u := newUpstream(t)
	svc := newTestService(t, u, NewMemoryStore())

	var types []EventType
	svc.Subscribe(func(ev Event) { types = append(types, ev.Type) })

	sess, err := svc.Login(context.Background(), "a@b.c", "good")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.SwitchPortal(context.Background(), sess.ID, access.RoleFunder); err != nil {
		t.Fatalf("SwitchPortal: %v", err)
	}
	if err := svc.Logout(context.Background(), sess.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	want := []EventType{EventLogin, EventPortalSwitch, EventLogout}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}
