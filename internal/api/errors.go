package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/contentgen"
	"github.com/abhisek/lingua/internal/session"
)

// ErrorResponse is the body of every non-2xx response. State is set when
// the session survived the failure, so the client can offer retry.
type ErrorResponse struct {
	Error string             `json:"error"`
	Kind  string             `json:"kind"`
	State *session.StateView `json:"state,omitempty"`
}

// Error kinds.
const (
	KindInvalidRequest = "invalid_request"
	KindNotFound       = "not_found"
	KindConflict       = "conflict"
	KindGeneration     = "generation_failed"
	KindPersistence    = "persistence_failed"
	KindConfiguration  = "configuration"
	KindInternal       = "internal"
)

// classify maps an engine error to an HTTP status and error kind.
func classify(err error) (int, string) {
	var (
		genErr   *contentgen.GenerationError
		validErr validator.ValidationErrors
	)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, session.ErrInvalidParams), errors.As(err, &validErr):
		return http.StatusBadRequest, KindInvalidRequest
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrBusy):
		return http.StatusConflict, KindConflict
	case errors.As(err, &genErr):
		return http.StatusServiceUnavailable, KindGeneration
	case apperr.IsPersistence(err):
		return http.StatusServiceUnavailable, KindPersistence
	case apperr.IsConfiguration(err), errors.Is(err, apperr.ErrNotInitialized):
		return http.StatusInternalServerError, KindConfiguration
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError responds with the classified status. Server-side failures
// are logged; their messages still reach the client since the engine
// never puts secrets in errors.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, state *session.StateView) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", kind),
			zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind, State: state})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Kind: KindInvalidRequest})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: msg, Kind: KindNotFound})
}
