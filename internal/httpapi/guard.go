package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"nexusgreen.org/internal/access"
	"nexusgreen.org/internal/audit"
	"nexusgreen.org/internal/session"
)

// Allowed role sets per dashboard. Each role has exactly one canonical
// landing path.
var (
	adminPortals    = []access.Role{access.RoleSuperAdmin}
	customerPortals = []access.Role{access.RoleCustomer}
	funderPortals   = []access.Role{access.RoleFunder}
	omPortals       = []access.Role{access.RoleOMProvider}

	landingPaths = map[access.Role]string{
		access.RoleSuperAdmin: "/admin",
		access.RoleCustomer:   "/customer",
		access.RoleFunder:     "/funder",
		access.RoleOMProvider: "/om",
	}
)

// withSession restores the session named by the cookie (or the sid
// query parameter, used by the PDF snapshot browser) and attaches it
// to the request context. Requests without a restorable session pass
// through unauthenticated; the guards decide what that means.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			sid = c.Value
		}
		if sid == "" {
			sid = r.URL.Query().Get("sid")
		}
		if sid == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := a.sessions.Restore(r.Context(), sid)
		if err != nil {
			if errors.Is(err, session.ErrNotAuthenticated) {
				clearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, r, http.StatusBadGateway, "session restore failed")
			return
		}
		ctx := session.ContextWith(r.Context(), sess)
		ctx = audit.WithActor(ctx, sess.User.ID)
		ctx = audit.WithRequestID(ctx, RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSession sends unauthenticated requests to the login view,
// preserving the original destination.
func (a *API) requireSession(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.FromContext(r.Context()); !ok {
			redirectToLogin(w, r)
			return
		}
		fn(w, r)
	})
}

// requireRoles gates a route on the current portal. A wrong role is a
// navigational redirect to /unauthorized; a project-scoped portal with
// no project assigned is the distinct /no-project failure.
func (a *API) requireRoles(needProject bool, roles ...access.Role) func(http.HandlerFunc) http.Handler {
	return func(fn http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				redirectToLogin(w, r)
				return
			}
			allowed := false
			for _, role := range roles {
				if sess.CurrentPortal == role {
					allowed = true
					break
				}
			}
			if !allowed {
				_ = audit.LogEvent(r.Context(), "guard.denied", map[string]any{
					"path":   r.URL.Path,
					"portal": string(sess.CurrentPortal),
				})
				http.Redirect(w, r, "/unauthorized", http.StatusSeeOther)
				return
			}
			if needProject && !sess.Resolver().HasProject() {
				_ = audit.LogEvent(r.Context(), "guard.no_project", map[string]any{
					"path":   r.URL.Path,
					"portal": string(sess.CurrentPortal),
				})
				http.Redirect(w, r, "/no-project", http.StatusSeeOther)
				return
			}
			fn(w, r)
		})
	}
}

// handleRoot is the portal router: a set current portal goes to its
// canonical dashboard; an unset one goes to portal selection when more
// than one portal is accessible and to /unauthorized when none are.
func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	sess, ok := session.FromContext(r.Context())
	if !ok {
		redirectToLogin(w, r)
		return
	}
	if path, ok := landingPaths[sess.CurrentPortal]; ok {
		http.Redirect(w, r, path, http.StatusSeeOther)
		return
	}
	portals := sess.AccessiblePortals()
	switch {
	case len(portals) == 0:
		http.Redirect(w, r, "/unauthorized", http.StatusSeeOther)
	case len(portals) == 1:
		if path, ok := landingPaths[portals[0]]; ok {
			http.Redirect(w, r, path, http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/unauthorized", http.StatusSeeOther)
	default:
		http.Redirect(w, r, "/portals", http.StatusSeeOther)
	}
}

func (a *API) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusForbidden, map[string]any{
		"view":    "unauthorized",
		"message": "you do not have access to this portal",
	})
}

func (a *API) handleNoProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusForbidden, map[string]any{
		"view":    "no_project",
		"message": "no project is assigned to your account yet",
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Path
	if r.URL.RawQuery != "" {
		next += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, "/login?next="+url.QueryEscape(next), http.StatusSeeOther)
}

func setSessionCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
