// Package api exposes the session engine over HTTP with JSON bodies.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/abhisek/lingua/internal/catalog"
	"github.com/abhisek/lingua/internal/marking"
	"github.com/abhisek/lingua/internal/session"
	"github.com/abhisek/lingua/internal/stats"
)

// Sessions starts and looks up live sessions.
type Sessions interface {
	Start(ctx context.Context, p session.StartParams) (session.StateView, error)
	Get(id string) (*session.Orchestrator, error)
}

// Modules reads the content catalog.
type Modules interface {
	GetModule(id, lang string) (catalog.ModuleView, bool, error)
	GetAllModules(lang string) ([]catalog.ModuleView, error)
	GetModulesForLanguage(lang string) ([]catalog.ModuleView, error)
}

// Performance reads learner statistics.
type Performance interface {
	ModulePerformance(ctx context.Context, userID, moduleID string) (stats.ModulePerformance, error)
	SessionSummary(ctx context.Context, sessionID string) (stats.ModulePerformance, error)
}

// Server holds the HTTP handlers.
type Server struct {
	sessions Sessions
	modules  Modules
	perf     Performance
	log      *zap.Logger
	validate *validator.Validate
}

// NewServer creates a Server. A nil logger discards logs.
func NewServer(sessions Sessions, modules Modules, perf Performance, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		sessions: sessions,
		modules:  modules,
		perf:     perf,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.startSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Get("/summary", s.sessionSummary)
			r.Post("/answer", s.submitAnswer)
			r.Post("/advance", s.advance)
			r.Post("/retry", s.retry)
			r.Post("/skip", s.skip)
			r.Post("/end", s.end)
			r.Post("/persist", s.retryPersist)
		})

		r.Get("/modules", s.listModules)
		r.Get("/modules/{id}", s.getModule)
		r.Get("/users/{userID}/modules/{moduleID}/performance", s.modulePerformance)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// StartRequest is the body of POST /api/sessions.
type StartRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	ModuleID       string `json:"module_id" validate:"required"`
	TargetLanguage string `json:"target_language" validate:"required,bcp47_language_tag"`
	SourceLanguage string `json:"source_language" validate:"required,bcp47_language_tag"`
}

// AnswerRequest is the body of POST /api/sessions/{id}/answer. An empty
// answer is allowed; a missing one is not.
type AnswerRequest struct {
	Answer *string `json:"answer" validate:"required"`
}

// AnswerResponse carries the judgement and, when it is ready, the next
// question.
type AnswerResponse struct {
	Mark             marking.Result  `json:"mark"`
	NextStep         *session.Step   `json:"next_step"`
	NextQuestionData json.RawMessage `json:"next_question_data"`
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		badRequest(w, err.Error())
		return false
	}
	return true
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, ok, err := s.modules.GetModule(req.ModuleID, ""); err != nil {
		s.writeError(w, r, err, nil)
		return
	} else if !ok {
		notFound(w, fmt.Sprintf("module %q not found", req.ModuleID))
		return
	}

	view, err := s.sessions.Start(r.Context(), session.StartParams{
		UserID:         req.UserID,
		ModuleID:       req.ModuleID,
		TargetLanguage: req.TargetLanguage,
		SourceLanguage: req.SourceLanguage,
	})
	if err != nil {
		var state *session.StateView
		if view.SessionID != "" {
			state = &view
		}
		s.writeError(w, r, err, state)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// lookup resolves the {id} session or writes a 404.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Orchestrator, bool) {
	o, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return nil, false
	}
	return o, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

func (s *Server) sessionSummary(w http.ResponseWriter, r *http.Request) {
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sum, err := s.perf.SessionSummary(r.Context(), o.ID())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req AnswerRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := o.Submit(r.Context(), *req.Answer)
	if err != nil {
		view := o.Snapshot()
		s.writeError(w, r, err, &view)
		return
	}
	resp := AnswerResponse{Mark: res.Mark, NextStep: res.NextStep}
	if res.NextStep != nil {
		resp.NextQuestionData = res.NextStep.QuestionData
	}
	writeJSON(w, http.StatusOK, resp)
}

// transition runs a state-changing operation and responds with the state
// it leaves behind.
func (s *Server) transition(op func(*session.Orchestrator, context.Context) (session.StateView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, ok := s.lookup(w, r)
		if !ok {
			return
		}
		view, err := op(o, r.Context())
		if err != nil {
			s.writeError(w, r, err, &view)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	s.transition((*session.Orchestrator).Advance)(w, r)
}

func (s *Server) retry(w http.ResponseWriter, r *http.Request) {
	s.transition((*session.Orchestrator).Retry)(w, r)
}

func (s *Server) skip(w http.ResponseWriter, r *http.Request) {
	s.transition((*session.Orchestrator).Skip)(w, r)
}

func (s *Server) end(w http.ResponseWriter, r *http.Request) {
	s.transition((*session.Orchestrator).End)(w, r)
}

func (s *Server) retryPersist(w http.ResponseWriter, r *http.Request) {
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}
	err := o.RetryPersist(r.Context())
	view := o.Snapshot()
	if err != nil {
		s.writeError(w, r, err, &view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) listModules(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	var (
		mods []catalog.ModuleView
		err  error
	)
	if lang == "" {
		mods, err = s.modules.GetAllModules(lang)
	} else {
		mods, err = s.modules.GetModulesForLanguage(lang)
	}
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if mods == nil {
		mods = []catalog.ModuleView{}
	}
	writeJSON(w, http.StatusOK, mods)
}

func (s *Server) getModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mod, ok, err := s.modules.GetModule(id, r.URL.Query().Get("lang"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if !ok {
		notFound(w, fmt.Sprintf("module %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

func (s *Server) modulePerformance(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	if _, ok, err := s.modules.GetModule(moduleID, ""); err != nil {
		s.writeError(w, r, err, nil)
		return
	} else if !ok {
		notFound(w, fmt.Sprintf("module %q not found", moduleID))
		return
	}
	perf, err := s.perf.ModulePerformance(r.Context(), chi.URLParam(r, "userID"), moduleID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}
