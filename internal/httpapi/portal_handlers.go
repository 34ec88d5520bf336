package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nexusgreen.org/internal/access"
	"nexusgreen.org/internal/audit"
	"nexusgreen.org/internal/nexusapi"
	"nexusgreen.org/internal/session"
)

type switchPortalRequest struct {
	Portal string `json:"portal"`
}

// Datasets rendered on each portal's dashboard.
var dashboardDatasets = map[access.Role][]string{
	access.RoleSuperAdmin: {"plants", "plant_count", "devices", "performance"},
	access.RoleCustomer:   {"yield_total", "savings_total", "devices", "yield_monthly"},
	access.RoleFunder:     {"earnings_history", "earnings_monthly_change", "savings_total"},
	access.RoleOMProvider: {"devices", "performance", "plants"},
}

func (a *API) handlePortals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, _ := session.FromContext(r.Context())
	portals := sess.AccessiblePortals()
	if len(portals) == 0 {
		http.Redirect(w, r, "/unauthorized", http.StatusSeeOther)
		return
	}
	items := make([]map[string]any, 0, len(portals))
	for _, p := range portals {
		items = append(items, map[string]any{
			"role":    string(p),
			"path":    landingPaths[p],
			"current": p == sess.CurrentPortal,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"view":    "portal_selection",
		"portals": items,
	})
}

func (a *API) handleSwitchPortal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req switchPortalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := access.ParseRole(req.Portal)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown portal")
		return
	}

	sess, _ := session.FromContext(r.Context())
	switched, err := a.sessions.SwitchPortal(r.Context(), sess.ID, role)
	if err != nil {
		if errors.Is(err, session.ErrPortalDenied) {
			_ = audit.LogEvent(r.Context(), "portal.switch_denied", map[string]any{
				"portal": string(role),
			})
			http.Redirect(w, r, "/unauthorized", http.StatusSeeOther)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "portal switch failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "portal.switch", map[string]any{
		"portal": string(role),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"currentPortal": string(switched.CurrentPortal),
		"path":          landingPaths[switched.CurrentPortal],
	})
}

// handleDashboard renders the JSON view for the session's current
// portal: the portal's dataset set fetched over the requested (or
// default trailing 30 day) range. Individual dataset failures degrade
// to an error cell instead of failing the whole view.
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, _ := session.FromContext(r.Context())
	names := dashboardDatasets[sess.CurrentPortal]

	rng, err := rangeFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	api := a.sessions.Authed(sess.ID)
	data := make(map[string]any, len(names))
	for _, name := range names {
		ds, ok := nexusapi.DatasetByName(name)
		if !ok {
			continue
		}
		raw, err := api.FetchDataset(r.Context(), ds, rng)
		if err != nil {
			if nexusapi.IsAuthFailure(err) {
				clearSessionCookie(w)
				redirectToLogin(w, r)
				return
			}
			data[name] = map[string]any{"error": backendMessage(err)}
			continue
		}
		data[name] = json.RawMessage(raw)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"portal":   string(sess.CurrentPortal),
		"currency": sess.Currency,
		"range":    rng,
		"data":     data,
	})
}

// rangeFromQuery reads start/end dates, defaulting to the trailing 30
// days.
func rangeFromQuery(r *http.Request) (nexusapi.DateRange, error) {
	q := r.URL.Query()
	now := time.Now().UTC()
	rng := nexusapi.DateRange{Start: now.AddDate(0, 0, -30), End: now}
	if s := q.Get("start"); s != "" {
		t, err := nexusapi.ParseDate(s)
		if err != nil {
			return nexusapi.DateRange{}, errors.New("start must be YYYY-MM-DD")
		}
		rng.Start = t
	}
	if e := q.Get("end"); e != "" {
		t, err := nexusapi.ParseDate(e)
		if err != nil {
			return nexusapi.DateRange{}, errors.New("end must be YYYY-MM-DD")
		}
		rng.End = t
	}
	if err := rng.Validate(); err != nil {
		return nexusapi.DateRange{}, err
	}
	return rng, nil
}

func backendMessage(err error) string {
	if apiErr, ok := nexusapi.AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return "backend unavailable"
}
