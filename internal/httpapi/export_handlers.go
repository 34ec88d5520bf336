package httpapi

import (
	"bytes"
	"net/http"
	"strings"

	"nexusgreen.org/internal/audit"
	"nexusgreen.org/internal/export"
	"nexusgreen.org/internal/nexusapi"
	"nexusgreen.org/internal/obs"
	"nexusgreen.org/internal/session"
)

func (a *API) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	a.export(w, r, "csv")
}

func (a *API) handleExportBundle(w http.ResponseWriter, r *http.Request) {
	a.export(w, r, "zip")
}

func (a *API) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	a.export(w, r, "json")
}

// export runs the pipeline and streams the finished artifact. The
// artifact is fully assembled in memory first so an export that fails
// partway never produces a partial download.
func (a *API) export(w http.ResponseWriter, r *http.Request, format string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, _ := session.FromContext(r.Context())

	rng, err := rangeFromQuery(r)
	if err != nil {
		obs.ObserveExport(format, "rejected")
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req := export.Request{Range: rng, Datasets: datasetsFromQuery(r)}

	res, err := a.exporter.Fetch(r.Context(), a.sessions.Authed(sess.ID), req)
	if err != nil {
		if nexusapi.IsAuthFailure(err) {
			clearSessionCookie(w)
			redirectToLogin(w, r)
			return
		}
		obs.ObserveExport(format, "error")
		writeError(w, r, http.StatusBadGateway, "export failed: "+err.Error())
		return
	}

	var buf bytes.Buffer
	var contentType, filename string
	switch format {
	case "csv":
		contentType = "text/csv; charset=utf-8"
		filename = "nexusgreen-export-" + res.ID + ".csv"
		if len(res.Tables) == 1 {
			err = export.WriteCSV(&buf, res.Tables[0])
		} else {
			err = export.WriteCombinedCSV(&buf, res)
		}
	case "zip":
		contentType = "application/zip"
		filename = "nexusgreen-export-" + res.ID + ".zip"
		err = export.WriteBundle(&buf, res)
	case "json":
		contentType = "application/json; charset=utf-8"
		filename = "nexusgreen-export-" + res.ID + ".json"
		err = export.WriteJSON(&buf, res)
	}
	if err != nil {
		obs.ObserveExport(format, "error")
		writeError(w, r, http.StatusInternalServerError, "export failed")
		return
	}

	obs.ObserveExport(format, "ok")
	_ = audit.LogEvent(r.Context(), "export.download", map[string]any{
		"format":   format,
		"artifact": res.ID,
		"datasets": len(res.Tables),
	})
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(buf.Bytes())
}

// handleExportPDF prints the session's current dashboard through the
// headless browser snapshotter.
func (a *API) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.snap == nil || a.publicURL == "" {
		writeError(w, r, http.StatusServiceUnavailable, "pdf export unavailable")
		return
	}
	sess, _ := session.FromContext(r.Context())
	path, ok := landingPaths[sess.CurrentPortal]
	if !ok {
		http.Redirect(w, r, "/unauthorized", http.StatusSeeOther)
		return
	}

	// The snapshot browser authenticates with the sid query fallback.
	url := a.publicURL + path + "?sid=" + sess.ID
	data, err := a.snap.Snapshot(r.Context(), url)
	if err != nil {
		obs.ObserveExport("pdf", "error")
		writeError(w, r, http.StatusBadGateway, "export failed: "+err.Error())
		return
	}

	obs.ObserveExport("pdf", "ok")
	_ = audit.LogEvent(r.Context(), "export.download", map[string]any{
		"format": "pdf",
		"portal": string(sess.CurrentPortal),
	})
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="nexusgreen-dashboard.pdf"`)
	_, _ = w.Write(data)
}

func datasetsFromQuery(r *http.Request) []string {
	raw := strings.TrimSpace(r.URL.Query().Get("datasets"))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
