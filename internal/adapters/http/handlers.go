package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jobrunner/archivesync/internal/domain"
)

// retryAfter is advertised to rate-limited sync callers.
const retryAfter = 30 * time.Second

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":     boolToStatus(details.Healthy),
		"ready":      details.Ready,
		"components": details.Components,
	}
	if details.LastRun != nil {
		resp["last_run"] = details.LastRun.FinishedAt
	}
	if details.LastError != "" {
		resp["last_error"] = details.LastError
	}
	s.writeJSON(w, status, resp)
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleStale lists the years whose local marker is missing remotely.
func (s *Server) handleStale(w http.ResponseWriter, r *http.Request) {
	years, err := s.reconciler.ListStaleYears(r.Context())
	if err != nil {
		s.handleError(w, "listing stale years", err)
		return
	}
	if years == nil {
		years = []string{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"stale_years": years,
		"count":       len(years),
	})
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.sync.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.logger.Error("sync failed", "error", err)
		s.writeJSON(w, statusForError(err), result)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleStatus reports the outcome of the most recent pass.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	report, err := s.sync.LastResult()

	resp := map[string]any{
		"interval": s.sync.Interval().String(),
		"last_run": report,
	}
	if err != nil {
		resp["last_error"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleError maps domain errors to HTTP status codes.
func (s *Server) handleError(w http.ResponseWriter, operation string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(operation+" failed", "error", err)
	}
	s.writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
