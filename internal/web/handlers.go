package web

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/JonMunkholm/resellers/internal/core"
	"github.com/JonMunkholm/resellers/internal/web/views"
)

// handleDashboard renders the upload form and, once a file is loaded, the
// filtered reseller cards.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, http.StatusOK, views.DashboardData{Filter: parseFilter(r)})
}

// renderDashboard fills the dataset view into d and writes the page.
func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, d views.DashboardData) {
	d.MaxUploadMB = s.cfg.Upload.MaxFileSize >> 20

	q, err := s.service.Query(d.Filter)
	switch {
	case errors.Is(err, core.ErrNoData):
		// nothing loaded yet: upload form only
	case err != nil:
		respondError(w, r, err, http.StatusInternalServerError)
		return
	default:
		d.Query = q
		d.ExportURL = exportURL(d.Filter)
		d.LoadedAt = q.LoadedAt
	}

	var buf bytes.Buffer
	if err := views.Dashboard(d).Render(r.Context(), &buf); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// handleHealth reports liveness plus the ingestion and dataset state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type datasetInfo struct {
		ID         string `json:"id"`
		Generation uint64 `json:"generation"`
		FileName   string `json:"fileName"`
		Records    int    `json:"records"`
	}
	resp := struct {
		Status  string                   `json:"status"`
		Uploads core.UploadLimiterStatus `json:"uploads"`
		Dataset *datasetInfo             `json:"dataset"`
	}{
		Status:  "ok",
		Uploads: s.service.UploadLimiterStatus(),
	}
	if ds := s.service.Current(); ds != nil {
		resp.Dataset = &datasetInfo{
			ID:         ds.ID,
			Generation: ds.Generation,
			FileName:   ds.FileName,
			Records:    len(ds.Records),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseFilter reads q, status, city and structure from the query string.
func parseFilter(r *http.Request) core.Filter {
	q := r.URL.Query()
	return core.Filter{
		Search:    strings.TrimSpace(q.Get("q")),
		Status:    core.ParseStatusFilter(q.Get("status")),
		City:      q.Get("city"),
		Structure: q.Get("structure"),
	}
}

// filterValues encodes f back into query parameters, omitting empty ones.
func filterValues(f core.Filter) url.Values {
	v := url.Values{}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	if f.Status != "" && f.Status != core.StatusAll {
		v.Set("status", string(f.Status))
	}
	if f.City != "" {
		v.Set("city", f.City)
	}
	if f.Structure != "" {
		v.Set("structure", f.Structure)
	}
	return v
}

func exportURL(f core.Filter) string {
	if v := filterValues(f); len(v) > 0 {
		return "/api/export?" + v.Encode()
	}
	return "/api/export"
}
