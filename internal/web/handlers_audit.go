package web

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/resellers/internal/core"
	"github.com/JonMunkholm/resellers/internal/logging"
	"github.com/go-chi/chi/v5"
)

var errHistoryNotFound = errors.New("history entry not found")

// historyFilter reads the action and limit query parameters.
func historyFilter(r *http.Request) core.AuditLogFilter {
	return core.AuditLogFilter{
		Action: core.AuditAction(r.URL.Query().Get("action")),
		Limit:  parseIntParam(r, "limit", 0),
	}
}

// handleHistory lists recent ingestion attempts, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.service.History(historyFilter(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

// handleHistoryEntry returns a single ingestion attempt.
func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.service.HistoryEntry(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, r, errHistoryNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleHistoryExport downloads the ingestion history as CSV.
func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	entries := s.service.History(historyFilter(r))

	filename := fmt.Sprintf("historico_cargas_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write([]string{
		"ID", "Timestamp", "Action", "Severity", "File", "Bytes", "Records",
		"Dataset ID", "Generation", "IP Address", "User Agent", "Duration (ms)", "Errors",
	}); err != nil {
		return
	}

	for _, e := range entries {
		if err := csvWriter.Write([]string{
			e.ID,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			string(e.Action),
			string(e.Severity),
			e.FileName,
			strconv.FormatInt(e.Bytes, 10),
			strconv.Itoa(e.Records),
			e.DatasetID,
			strconv.FormatUint(e.Generation, 10),
			e.IPAddress,
			e.UserAgent,
			strconv.FormatInt(e.DurationMS, 10),
			strings.Join(e.Errors, "; "),
		}); err != nil {
			break
		}
	}

	// Headers are already sent; errors can only be logged.
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		logging.FromContext(r.Context()).Warn("history export interrupted", "error", err)
	}
}
