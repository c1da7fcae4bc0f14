// ABOUTME: HTTP API handlers for the account hierarchy, sync log, manual sync and health
// ABOUTME: Responses use the {success, data, error} envelope expected by the web UI

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/coa-mirror/internal/auth"
	"github.com/2389/coa-mirror/internal/hierarchy"
	"github.com/2389/coa-mirror/internal/report"
	"github.com/2389/coa-mirror/internal/store"
	"github.com/2389/coa-mirror/internal/syncer"
)

// AccountsResponse is the JSON response for GET /api/accounts.
type AccountsResponse struct {
	Success bool              `json:"success"`
	Data    []*hierarchy.Node `json:"data"`
	Total   int               `json:"total"`
}

// SyncLogResponse is one entry in GET /api/logs.
type SyncLogResponse struct {
	ID          string           `json:"id"`
	Status      store.SyncStatus `json:"status"`
	Message     string           `json:"message"`
	RecordCount int              `json:"recordCount"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// LogsResponse is the JSON response for GET /api/logs.
type LogsResponse struct {
	Success bool              `json:"success"`
	Data    []SyncLogResponse `json:"data"`
}

// SyncResultResponse carries the counts of one run plus its log message.
type SyncResultResponse struct {
	syncer.Result
	Message string `json:"message"`
}

// SyncResponse is the JSON response for a successful POST /api/sync.
type SyncResponse struct {
	Success bool               `json:"success"`
	Data    SyncResultResponse `json:"data"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// handleHealth returns 200 OK while the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleAccounts returns the roll-up tree built from the current store contents.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	records, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	s.writeJSON(w, http.StatusOK, AccountsResponse{
		Success: true,
		Data:    hierarchy.Build(records, s.labels()),
		Total:   len(records),
	})
}

// handleReport renders the tree as an HTML page, or markdown with ?format=markdown.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	records, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	opts := s.reportOptions()
	md := report.Markdown(hierarchy.Build(records, opts.Labels), len(records), opts)

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
		return
	}

	page, err := report.HTML(md, opts.Title, s.config.Report.Locale)
	if err != nil {
		s.logger.Error("failed to render report", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// handleLogs returns the most recent sync log entries, newest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	limit := store.DefaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.store.RecentSyncLogs(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list sync logs", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "failed to list sync logs")
		return
	}

	data := make([]SyncLogResponse, len(entries))
	for i, e := range entries {
		data[i] = SyncLogResponse{
			ID:          e.ID,
			Status:      e.Status,
			Message:     e.Message,
			RecordCount: e.RecordCount,
			CreatedAt:   e.CreatedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, LogsResponse{Success: true, Data: data})
}

// handleSync runs one sync pass and returns its counts. The pass is not
// tied to the client connection: the engine's own timeout bounds it, and
// Shutdown cancels it.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	s.logger.Info("manual sync requested",
		"remote_addr", r.RemoteAddr,
		"subject", auth.SubjectFromContext(r.Context()),
	)

	result, err := s.sync.Trigger(s.runCtx)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, SyncResponse{
			Success: true,
			Data:    SyncResultResponse{Result: *result, Message: result.Message()},
		})
	case errors.Is(err, syncer.ErrBusy):
		s.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, syncer.ErrClosed), s.runCtx.Err() != nil:
		s.sendJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
	default:
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) labels() hierarchy.Labels {
	return hierarchy.LabelsFor(s.config.Report.Locale)
}

func (s *Server) reportOptions() report.Options {
	return report.Options{
		Title:       report.TitleFor(s.config.Report.Locale),
		Currency:    s.config.Report.Currency,
		Labels:      s.labels(),
		GeneratedAt: time.Now(),
	}
}
