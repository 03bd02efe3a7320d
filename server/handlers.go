package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/s0up4200/seedkeeper/engine"
)

// RunCommandRequest is the body of POST /api/run-command
type RunCommandRequest struct {
	Commands []string `json:"commands"`
	Hashes   []string `json:"hashes,omitempty"`
	DryRun   *bool    `json:"dry_run,omitempty"`
	// SkipCleanup overrides the skip_cleanup command when set
	SkipCleanup *bool `json:"skip_cleanup,omitempty"`
}

// RunCommandResponse answers a run-command request
type RunCommandResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Summary *engine.Summary `json:"summary,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string          `json:"error"`
	Summary *engine.Summary `json:"summary,omitempty"`
}

// HealthResponse answers GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Running   bool      `json:"running"`
	QueueSize int       `json:"queue_size"`
}

const queuedMessage = "Another run is in progress. Request queued."

func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	var body RunCommandRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	req, err := engine.ParseRequest(body.Commands, body.Hashes, body.DryRun)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.SkipCleanup != nil {
		req.SkipCleanup = *body.SkipCleanup
	}
	if len(req.Commands) == 0 {
		respondError(w, http.StatusBadRequest, engine.ErrNoCommands.Error())
		return
	}

	summary, queued, err := s.trigger(r.Context(), req)
	switch {
	case queued:
		respondJSON(w, http.StatusAccepted, RunCommandResponse{Status: "queued", Message: queuedMessage})
	case err != nil:
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Summary: summary})
	default:
		respondJSON(w, http.StatusOK, RunCommandResponse{
			Status:  "success",
			Message: "Commands executed successfully",
			Summary: summary,
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Running:   s.locks.Held(s.key),
		QueueSize: s.locks.Waiting(s.key),
	}
	if resp.Running {
		resp.Status = "busy"
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON decodes the request body into dest. It returns false after
// answering the request when the body is invalid.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Request body is empty")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
