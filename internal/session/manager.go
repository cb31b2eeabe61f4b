// Package session runs learner sessions: a small state machine per
// session that asks for a question, marks the answer while pre-fetching
// the next question, and advances. Sessions are isolated from each other
// and keyed by id.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/catalog"
	"github.com/abhisek/lingua/internal/store"
)

// StartParams identifies the learner and what they want to practise.
type StartParams struct {
	UserID         string
	ModuleID       string
	TargetLanguage string
	SourceLanguage string
}

// Manager owns the live sessions.
type Manager struct {
	deps *Deps
	cfg  Config
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Orchestrator

	newID func() string
}

// NewManager creates a Manager. Deps.Log may be nil.
func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Manager{
		deps:     &deps,
		cfg:      cfg,
		log:      deps.Log,
		sessions: make(map[string]*Orchestrator),
		newID:    uuid.NewString,
	}
}

// Start persists a new session and generates its first question. The
// session is kept even when generation fails; it is then in PhaseError and
// the generation error is returned alongside its state.
func (m *Manager) Start(ctx context.Context, p StartParams) (StateView, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return StateView{}, fmt.Errorf("%w: user id is required", ErrInvalidParams)
	}
	mod, err := m.deps.Modules.Module(p.ModuleID)
	if err != nil {
		return StateView{}, err
	}
	target, err := catalog.CanonicalLanguage(p.TargetLanguage)
	if err != nil {
		return StateView{}, fmt.Errorf("%w: target language %q: %v", ErrInvalidParams, p.TargetLanguage, err)
	}
	source, err := catalog.CanonicalLanguage(p.SourceLanguage)
	if err != nil {
		return StateView{}, fmt.Errorf("%w: source language %q: %v", ErrInvalidParams, p.SourceLanguage, err)
	}
	if !mod.OffersLanguage(source) {
		m.log.Warn("module not offered in source language",
			zap.String("module", mod.ID), zap.String("source_language", source))
	}

	rec := store.SessionRecord{
		ID:             m.newID(),
		UserID:         p.UserID,
		ModuleID:       mod.ID,
		TargetLanguage: target,
		SourceLanguage: source,
		StartTime:      m.deps.now(),
	}
	if err := m.deps.Sessions.CreateSession(ctx, rec); err != nil {
		return StateView{}, &apperr.PersistenceError{Op: "create session", Err: err}
	}

	o := newOrchestrator(m.deps, m.cfg, rec)
	m.mu.Lock()
	m.sessions[rec.ID] = o
	m.mu.Unlock()

	m.log.Info("session started",
		zap.String("session_id", rec.ID),
		zap.String("user_id", rec.UserID),
		zap.String("module", rec.ModuleID))

	return o.start(ctx)
}

// Get returns the live session with the given id.
func (m *Manager) Get(id string) (*Orchestrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return o, nil
}

// IDs returns the ids of all live sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Prune forgets sessions that are ended or have been idle longer than
// maxIdle. Idle sessions are ended first so their end time is recorded.
// It returns the number of sessions removed.
func (m *Manager) Prune(ctx context.Context, maxIdle time.Duration) int {
	now := m.deps.now()

	m.mu.RLock()
	var victims []*Orchestrator
	for _, o := range m.sessions {
		last, phase := o.idleSince()
		if phase == PhaseEnded || (maxIdle > 0 && now.Sub(last) > maxIdle) {
			victims = append(victims, o)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, o := range victims {
		if _, err := o.End(ctx); err != nil {
			m.log.Warn("prune: session end not persisted, keeping session",
				zap.String("session_id", o.ID()), zap.Error(err))
			continue
		}
		if err := o.RetryPersist(ctx); err != nil {
			m.log.Warn("prune: session events not persisted, keeping session",
				zap.String("session_id", o.ID()), zap.Error(err))
			continue
		}
		m.mu.Lock()
		delete(m.sessions, o.ID())
		m.mu.Unlock()
		removed++
	}
	return removed
}
