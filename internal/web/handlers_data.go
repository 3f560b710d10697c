package web

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/resellers/internal/core"
	"github.com/JonMunkholm/resellers/internal/logging"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleListResellers returns the records matching the query filters.
func (s *Server) handleListResellers(w http.ResponseWriter, r *http.Request) {
	q, err := s.service.Query(parseFilter(r))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"datasetId": q.DatasetID,
		"total":     q.Total,
		"filtered":  q.Filtered,
		"records":   q.Records,
	})
}

// handleStats returns the statistics and filter options of the loaded dataset.
// They always cover the whole dataset, whatever filters are active.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q, err := s.service.Query(core.Filter{})
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"datasetId":  q.DatasetID,
		"fileName":   q.FileName,
		"loadedAt":   q.LoadedAt,
		"stats":      q.Stats,
		"cities":     q.Cities,
		"structures": q.Structures,
	})
}

// handleExport downloads the filtered records as an .xlsx attachment.
// The stem query parameter overrides the configured file name stem.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	stem := s.cfg.Export.FileStem
	if v := strings.TrimSpace(r.URL.Query().Get("stem")); v != "" && validStem(v) {
		stem = v
	}

	var buf bytes.Buffer
	n, err := s.service.Export(&buf, parseFilter(r), s.cfg.Export.SheetName)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	name := core.ExportFileName(stem, time.Now())
	logging.FromContext(r.Context()).Info("export generated", "file", name, "records", n, "bytes", buf.Len())

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// validStem rejects stems that could escape the attachment file name.
func validStem(stem string) bool {
	if len(stem) > 100 {
		return false
	}
	return !strings.ContainsAny(stem, "/\\\"\r\n")
}
