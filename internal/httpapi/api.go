package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"nexusgreen.org/internal/export"
	"nexusgreen.org/internal/nexusapi"
	"nexusgreen.org/internal/obs"
	"nexusgreen.org/internal/session"
)

// sessionCookie carries the portal session id in the browser.
const sessionCookie = "ng_session"

// ReadyProbe reports readiness (for example a session store ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the portal's HTTP surface: a guarded route table over the
// session service and the export pipeline.
type API struct {
	mux        *http.ServeMux
	sessions   *session.Service
	upstream   *nexusapi.Client
	exporter   *export.Exporter
	snap       export.Snapshotter
	readyProbe ReadyProbe
	version    string
	publicURL  string

	rateBurst  int
	ratePerSec int
	maxBody    int64
}

// APIOption configures the HTTP surface.
type APIOption func(*API)

// WithUpstream wires the raw upstream client used by the
// authentication pass-through endpoints.
func WithUpstream(c *nexusapi.Client) APIOption {
	return func(a *API) { a.upstream = c }
}

// WithReadyProbe wires the readiness check.
func WithReadyProbe(rp ReadyProbe) APIOption {
	return func(a *API) { a.readyProbe = rp }
}

// WithVersion sets the version reported by health and info endpoints.
func WithVersion(v string) APIOption {
	return func(a *API) { a.version = v }
}

// WithSnapshotter enables the PDF export route.
func WithSnapshotter(s export.Snapshotter) APIOption {
	return func(a *API) { a.snap = s }
}

// WithPublicURL sets the externally reachable base URL, used to build
// the dashboard URL the PDF snapshotter renders.
func WithPublicURL(u string) APIOption {
	return func(a *API) { a.publicURL = strings.TrimRight(u, "/") }
}

// WithRateLimit tunes the per-IP limiter.
func WithRateLimit(burst, perSecond int) APIOption {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

// New builds the route table.
func New(sessions *session.Service, exporter *export.Exporter, opts ...APIOption) *API {
	a := &API{
		mux:        http.NewServeMux(),
		sessions:   sessions,
		exporter:   exporter,
		version:    "dev",
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	// auth surface
	a.mux.HandleFunc("/login", a.handleLogin)
	a.mux.HandleFunc("/logout", a.handleLogout)
	a.mux.HandleFunc("/signup", a.handleSignup)
	a.mux.HandleFunc("/password/forgot", a.handleForgotPassword)
	a.mux.HandleFunc("/password/reset", a.handleResetPassword)

	// session surface
	a.mux.Handle("/session", a.requireSession(a.handleSession))
	a.mux.Handle("/session/currency", a.requireSession(a.handleCurrency))
	a.mux.Handle("/portals", a.requireSession(a.handlePortals))
	a.mux.Handle("/portals/switch", a.requireSession(a.handleSwitchPortal))

	// guard landing views
	a.mux.HandleFunc("/unauthorized", a.handleUnauthorized)
	a.mux.HandleFunc("/no-project", a.handleNoProject)

	// portal dashboards, one canonical path per role
	a.mux.Handle("/admin", a.requireRoles(false, adminPortals...)(a.handleDashboard))
	a.mux.Handle("/customer", a.requireRoles(false, customerPortals...)(a.handleDashboard))
	a.mux.Handle("/funder", a.requireRoles(true, funderPortals...)(a.handleDashboard))
	a.mux.Handle("/om", a.requireRoles(false, omPortals...)(a.handleDashboard))

	// exports
	a.mux.Handle("/export/csv", a.requireSession(a.handleExportCSV))
	a.mux.Handle("/export/bundle", a.requireSession(a.handleExportBundle))
	a.mux.Handle("/export/json", a.requireSession(a.handleExportJSON))
	a.mux.Handle("/export/pdf", a.requireSession(a.handleExportPDF))

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// root is the portal router
	a.mux.HandleFunc("/", a.handleRoot)

	return a
}

// Handler assembles the middleware chain around the route table.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withSession(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "nexusgreen-portal",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
