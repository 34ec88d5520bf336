package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"nexusgreen.org/internal/audit"
	"nexusgreen.org/internal/nexusapi"
	"nexusgreen.org/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

type passwordForgotRequest struct {
	Email string `json:"email"`
}

type passwordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"view": "login",
			"next": r.URL.Query().Get("next"),
		})
	case http.MethodPost:
		a.login(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	sess, err := a.sessions.Login(r.Context(), email, req.Password)
	if err != nil {
		a.backendError(w, r, err)
		return
	}
	setSessionCookie(w, sess.ID)

	ctx := audit.WithActor(r.Context(), sess.User.ID)
	ctx = audit.WithRequestID(ctx, RequestIDFromContext(r.Context()))
	_ = audit.LogEvent(ctx, "session.login", map[string]any{
		"portal": string(sess.CurrentPortal),
	})

	next := safeNextPath(r.URL.Query().Get("next"))
	writeJSON(w, http.StatusOK, sessionView(sess, next))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sess, ok := session.FromContext(r.Context())
	if ok {
		if err := a.sessions.Logout(r.Context(), sess.ID); err != nil {
			writeError(w, r, http.StatusInternalServerError, "logout failed")
			return
		}
		_ = audit.LogEvent(r.Context(), "session.logout", nil)
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, _ := session.FromContext(r.Context())
	writeJSON(w, http.StatusOK, sessionView(sess, ""))
}

func (a *API) handleCurrency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req currencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" || len(currency) > 8 {
		writeError(w, r, http.StatusBadRequest, "currency code is required")
		return
	}
	sess, _ := session.FromContext(r.Context())
	if err := a.sessions.SetCurrency(r.Context(), sess.ID, currency); err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not save currency")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currency": currency})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.upstream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "password reset unavailable")
		return
	}
	var req passwordForgotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	resp, err := a.upstream.ForgotPassword(r.Context(), email)
	if err != nil {
		a.backendError(w, r, err)
		return
	}
	out := map[string]any{"status": "sent"}
	if resp.ResetLink != "" {
		out["reset_link"] = resp.ResetLink
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.upstream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "password reset unavailable")
		return
	}
	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		writeError(w, r, http.StatusBadRequest, "token and newPassword are required")
		return
	}
	if err := a.upstream.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		a.backendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.upstream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "signup unavailable")
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := a.upstream.Signup(r.Context(), email, req.Password); err != nil {
		a.backendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created"})
}

// backendError maps an upstream failure onto the portal surface: the
// backend's own message and status when present, a generic bad-gateway
// fallback otherwise.
func (a *API) backendError(w http.ResponseWriter, r *http.Request, err error) {
	if apiErr, ok := nexusapi.AsAPIError(err); ok {
		msg := apiErr.Message
		if msg == "" {
			msg = "backend error"
		}
		writeError(w, r, apiErr.Status, msg)
		return
	}
	writeError(w, r, http.StatusBadGateway, "backend unavailable")
}

// safeNextPath keeps post-login redirects on-site.
func safeNextPath(next string) string {
	if next == "" {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return next
}

func sessionView(sess *session.Session, next string) map[string]any {
	portals := make([]map[string]any, 0, 4)
	for _, p := range sess.AccessiblePortals() {
		portals = append(portals, map[string]any{
			"role": string(p),
			"path": landingPaths[p],
		})
	}
	view := map[string]any{
		"user": map[string]any{
			"id":        sess.User.ID,
			"email":     sess.User.Email,
			"firstName": sess.User.FirstName,
			"lastName":  sess.User.LastName,
		},
		"currentPortal":     string(sess.CurrentPortal),
		"accessiblePortals": portals,
		"currency":          sess.Currency,
	}
	if sess.Organization != nil {
		view["organization"] = map[string]any{
			"id":       sess.Organization.ID,
			"name":     sess.Organization.Name,
			"currency": sess.Organization.Currency,
		}
	}
	if next != "" {
		view["next"] = next
	}
	return view
}
