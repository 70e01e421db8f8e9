// Package http exposes the stage invocations over HTTP for the external
// workflow orchestrator. Each stage is one POST endpoint taking the
// structured stage request and answering {status, call_id} on success or a
// JSON error the orchestrator can branch on.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"callinsight/internal/models"
	"callinsight/internal/observability/logging"
	"callinsight/internal/stage/analyze"
	"callinsight/internal/stage/transcribe"
	"callinsight/internal/status"
	"callinsight/internal/store"
)

// Server bundles the stage handlers behind one router.
type Server struct {
	transcribe *transcribe.Stage
	analyze    *analyze.Stage
	tracker    *status.Tracker
}

// NewServer creates the stage-invocation server.
func NewServer(transcribeStage *transcribe.Stage, analyzeStage *analyze.Stage, tracker *status.Tracker) *Server {
	return &Server{
		transcribe: transcribeStage,
		analyze:    analyzeStage,
		tracker:    tracker,
	}
}

// Router constructs the HTTP router for the stage endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/stages", func(r chi.Router) {
		r.Post("/transcribe", s.handleTranscribe)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/status", s.handleStatus)
	})

	return r
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req models.StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.transcribe.Run(r.Context(), req)
	if err != nil {
		writeStageError(w, req.CallID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.analyze.Run(r.Context(), req)
	if err != nil {
		writeStageError(w, req.CallID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var upd models.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.tracker.Apply(r.Context(), upd)
	if err != nil {
		writeStageError(w, upd.CallID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusUpdateResult{
		Status: rec.Status,
		CallID: rec.CallID,
	})
}

// errorResponse is the failure shape surfaced to the orchestrator.
type errorResponse struct {
	Error  string `json:"error"`
	CallID string `json:"call_id,omitempty"`
}

// writeStageError maps stage failures onto status codes: unknown records
// and invalid transitions are the caller's fault, everything else is a
// processing failure the orchestrator retries or routes.
func writeStageError(w http.ResponseWriter, callID string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, status.ErrInvalidTransition):
		code = http.StatusConflict
	}
	logger := logging.WithCall(callID)
	logger.Error().Err(err).Int("code", code).Msg("Stage invocation failed")
	writeJSON(w, code, errorResponse{Error: err.Error(), CallID: callID})
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
