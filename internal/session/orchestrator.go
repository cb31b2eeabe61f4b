package session

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/catalog"
	"github.com/abhisek/lingua/internal/contentgen"
	"github.com/abhisek/lingua/internal/interaction"
	"github.com/abhisek/lingua/internal/llm"
	"github.com/abhisek/lingua/internal/marking"
	"github.com/abhisek/lingua/internal/picker"
	"github.com/abhisek/lingua/internal/store"
)

// ModuleSource looks up catalog modules.
type ModuleSource interface {
	Module(id string) (catalog.Module, error)
}

// SchemaSource looks up interaction schemas.
type SchemaSource interface {
	GetSchema(id string) (interaction.Schema, error)
}

// Generator produces contract-valid question data.
type Generator interface {
	GenerateStructuredData(ctx context.Context, prompt string, contract *llm.Schema, label string, opts ...contentgen.Option) contentgen.Result
}

// Marker judges answers.
type Marker interface {
	MarkAnswer(ctx context.Context, in marking.Input) marking.Result
}

// Recorder appends session events.
type Recorder interface {
	Record(ctx context.Context, ev *store.SessionEvent) error
}

// Deps are the collaborators shared by every session. All of them must be
// safe for concurrent use.
type Deps struct {
	Modules   ModuleSource
	Schemas   SchemaSource
	Picker    picker.Strategy
	Generator Generator
	Marker    Marker
	Recorder  Recorder
	Sessions  store.SessionRepo
	Log       *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Config tunes session behaviour.
type Config struct {
	// BufferTTL is how long a pre-fetched next step stays usable. A stale
	// buffer is discarded and the next step generated on advance. Zero
	// disables expiry.
	BufferTTL time.Duration

	// MaxQuestions ends a session after that many answers. Zero means no
	// limit.
	MaxQuestions int
}

// DefaultConfig returns a 15 minute buffer TTL and no question limit.
func DefaultConfig() Config {
	return Config{BufferTTL: 15 * time.Minute}
}

// Orchestrator drives one session's state machine. Methods are safe for
// concurrent use; long operations run without holding the state lock so
// Snapshot stays responsive, and a busy flag rejects overlapping
// operations.
type Orchestrator struct {
	deps *Deps
	cfg  Config
	log  *zap.Logger

	mu          sync.Mutex
	state       State
	busy        bool
	history     []picker.HistoryEntry
	prefetchErr error
	pending     []*store.SessionEvent
	endPending  bool
	lastActive  time.Time

	// persistMu serializes RetryPersist callers.
	persistMu sync.Mutex
}

func newOrchestrator(deps *Deps, cfg Config, rec store.SessionRecord) *Orchestrator {
	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		log:  deps.Log.With(zap.String("session_id", rec.ID)),
		state: State{
			SessionID:      rec.ID,
			UserID:         rec.UserID,
			ModuleID:       rec.ModuleID,
			TargetLanguage: rec.TargetLanguage,
			SourceLanguage: rec.SourceLanguage,
			StartedAt:      rec.StartTime,
			Phase:          PhaseIdle,
		},
		lastActive: rec.StartTime,
	}
}

// ID returns the session id.
func (o *Orchestrator) ID() string {
	return o.state.SessionID
}

// begin takes the busy flag if the session is in one of the allowed
// phases. The caller must hold o.mu.
func (o *Orchestrator) begin(op string, allowed ...Phase) error {
	if o.busy {
		return ErrBusy
	}
	for _, p := range allowed {
		if o.state.Phase == p {
			o.busy = true
			o.lastActive = o.deps.now()
			return nil
		}
	}
	return fmt.Errorf("%s in phase %s: %w", op, o.state.Phase, ErrInvalidTransition)
}

// start generates the first question: Idle → AwaitingAnswer, or Error.
func (o *Orchestrator) start(ctx context.Context) (StateView, error) {
	o.mu.Lock()
	if err := o.begin("start", PhaseIdle); err != nil {
		o.mu.Unlock()
		return o.Snapshot(), err
	}
	o.mu.Unlock()

	return o.generateCurrent(ctx)
}

// Submit answers the current question: AwaitingAnswer → Marking →
// Answered. Marking and the next-step pre-fetch run concurrently; the
// state becomes Answered only after both finish. A failed event write
// comes back as *apperr.PersistenceError with the session already
// Answered; RetryPersist writes it again.
func (o *Orchestrator) Submit(ctx context.Context, answer string) (SubmitResult, error) {
	o.mu.Lock()
	if err := o.begin("submit", PhaseAwaitingAnswer); err != nil {
		o.mu.Unlock()
		return SubmitResult{}, err
	}
	cur := o.state.Current.clone()
	o.state.Phase = PhaseMarking
	o.state.UserAnswer = answer
	history := append([]picker.HistoryEntry(nil), o.history...)
	prefetch := o.cfg.MaxQuestions == 0 || o.state.TotalAnswered+1 < o.cfg.MaxQuestions
	o.mu.Unlock()

	in, err := o.markingInput(cur, answer)
	if err != nil {
		o.mu.Lock()
		o.busy = false
		if o.state.Phase == PhaseMarking {
			o.state.Phase = PhaseAwaitingAnswer
			o.state.UserAnswer = ""
		}
		o.mu.Unlock()
		return SubmitResult{}, err
	}

	var (
		mark        marking.Result
		next        *Step
		prefetchErr error
	)
	g, gctx := errgroup.WithContext(llm.WithSessionID(ctx, o.state.SessionID))
	g.Go(func() error {
		mark = o.deps.Marker.MarkAnswer(gctx, in)
		return nil
	})
	if prefetch {
		g.Go(func() error {
			next, prefetchErr = o.generateStep(gctx, history)
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	if err := ctx.Err(); err != nil {
		// The caller went away; a fallback judgement is not counted.
		o.busy = false
		if o.state.Phase == PhaseMarking {
			o.state.Phase = PhaseAwaitingAnswer
			o.state.UserAnswer = ""
		}
		o.mu.Unlock()
		return SubmitResult{}, fmt.Errorf("submit: %w", err)
	}
	if o.state.Phase != PhaseMarking {
		// Ended while marking; the judgement is dropped.
		o.busy = false
		o.mu.Unlock()
		return SubmitResult{Mark: mark}, fmt.Errorf("submit: %w", ErrInvalidTransition)
	}

	if prefetchErr != nil {
		o.log.Warn("next step pre-fetch failed", zap.Error(prefetchErr))
	}
	o.state.Mark = &mark
	o.state.Answered = true
	o.state.TotalAnswered++
	if mark.IsCorrect {
		o.state.CorrectCount++
	}
	o.state.Buffered = next
	o.prefetchErr = prefetchErr
	o.history = append(o.history, picker.HistoryEntry{
		SubmoduleID: cur.SubmoduleID,
		SchemaID:    cur.SchemaID,
		IsCorrect:   mark.IsCorrect,
	})
	o.state.Phase = PhaseAnswered
	res := SubmitResult{Mark: mark, NextStep: next.clone()}
	o.mu.Unlock()

	// Busy stays set until the write finishes. The answer is already
	// counted, so the write does not follow the caller's cancellation.
	ev := &store.SessionEvent{
		SessionID:     o.state.SessionID,
		SubmoduleID:   cur.SubmoduleID,
		ModalSchemaID: cur.SchemaID,
		QuestionData:  cur.QuestionData,
		UserAnswer:    answer,
		Mark: store.Mark{
			IsCorrect:     mark.IsCorrect,
			Score:         mark.Score,
			Feedback:      mark.Feedback,
			CorrectAnswer: mark.CorrectAnswer,
		},
		Marked:    true,
		Timestamp: o.deps.now(),
	}
	recErr := o.deps.Recorder.Record(context.WithoutCancel(ctx), ev)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	if recErr != nil {
		o.pending = append(o.pending, ev)
		o.log.Error("session event not persisted", zap.Error(recErr))
		return res, recErr
	}
	return res, nil
}

// Advance moves to the next question: Answered → AwaitingAnswer when a
// next step is available, Answered → Ended when the session has run its
// course. A stale or missing pre-fetch is replaced by a fresh generation;
// if that fails the session enters Error.
func (o *Orchestrator) Advance(ctx context.Context) (StateView, error) {
	o.mu.Lock()
	if err := o.begin("advance", PhaseAnswered); err != nil {
		o.mu.Unlock()
		return o.Snapshot(), err
	}

	buf := o.state.Buffered
	o.state.Buffered = nil
	switch {
	case buf != nil && !o.stale(buf):
		o.adopt(buf)
		o.busy = false
		o.mu.Unlock()
		return o.Snapshot(), nil

	case buf == nil && o.prefetchErr == nil:
		o.busy = false
		o.mu.Unlock()
		return o.End(ctx)

	case buf != nil:
		o.log.Info("discarding stale next step",
			zap.Duration("age", o.deps.now().Sub(buf.PreparedAt)),
			zap.Duration("ttl", o.cfg.BufferTTL))
	}
	o.prefetchErr = nil
	o.mu.Unlock()

	return o.generateCurrent(ctx)
}

// Retry regenerates the current question after a generation failure:
// Error → AwaitingAnswer. Counters are kept.
func (o *Orchestrator) Retry(ctx context.Context) (StateView, error) {
	o.mu.Lock()
	if err := o.begin("retry", PhaseError); err != nil {
		o.mu.Unlock()
		return o.Snapshot(), err
	}
	o.mu.Unlock()

	return o.generateCurrent(ctx)
}

// Skip records the current question as skipped and moves on without a
// judgement. Skipped questions do not count toward accuracy.
func (o *Orchestrator) Skip(ctx context.Context) (StateView, error) {
	o.mu.Lock()
	if err := o.begin("skip", PhaseAwaitingAnswer); err != nil {
		o.mu.Unlock()
		return o.Snapshot(), err
	}
	cur := o.state.Current.clone()
	o.mu.Unlock()

	ev := &store.SessionEvent{
		SessionID:     o.state.SessionID,
		SubmoduleID:   cur.SubmoduleID,
		ModalSchemaID: cur.SchemaID,
		QuestionData:  cur.QuestionData,
		Timestamp:     o.deps.now(),
	}
	if err := o.deps.Recorder.Record(ctx, ev); err != nil {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
		return o.Snapshot(), err
	}

	return o.generateCurrent(ctx)
}

// End finishes the session from any phase and records its end time.
// Ending an ended session only retries a failed end-time write.
func (o *Orchestrator) End(ctx context.Context) (StateView, error) {
	o.mu.Lock()
	if o.state.Phase == PhaseEnded {
		pending := o.endPending
		o.mu.Unlock()
		if pending {
			return o.Snapshot(), o.finalize(ctx)
		}
		return o.Snapshot(), nil
	}
	o.state.Phase = PhaseEnded
	o.state.Buffered = nil
	o.endPending = true
	o.lastActive = o.deps.now()
	o.mu.Unlock()

	err := o.finalize(ctx)
	return o.Snapshot(), err
}

func (o *Orchestrator) finalize(ctx context.Context) error {
	if err := o.deps.Sessions.EndSession(ctx, o.state.SessionID, o.deps.now()); err != nil {
		o.log.Error("session end not persisted", zap.Error(err))
		return &apperr.PersistenceError{Op: "end session", Err: err}
	}
	o.mu.Lock()
	o.endPending = false
	o.mu.Unlock()
	return nil
}

// RetryPersist retries writes that failed earlier: answer events, in
// order, then the session end time. It does not replay the session.
// Concurrent callers are serialized, so each event is written once.
func (o *Orchestrator) RetryPersist(ctx context.Context) error {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	pending := slices.Clone(o.pending)
	end := o.endPending
	o.mu.Unlock()

	for _, ev := range pending {
		if err := o.deps.Recorder.Record(ctx, ev); err != nil {
			return err
		}
		o.mu.Lock()
		o.pending = lo.Without(o.pending, ev)
		o.mu.Unlock()
	}
	if end {
		return o.finalize(ctx)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() StateView {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.state
	v := StateView{
		SessionID:      s.SessionID,
		UserID:         s.UserID,
		ModuleID:       s.ModuleID,
		TargetLanguage: s.TargetLanguage,
		SourceLanguage: s.SourceLanguage,
		Phase:          s.Phase,
		Current:        s.Current.clone(),
		UserAnswer:     s.UserAnswer,
		Answered:       s.Answered,
		HasNext:        s.Buffered != nil,
		CorrectCount:   s.CorrectCount,
		TotalAnswered:  s.TotalAnswered,
		PersistPending: len(o.pending) > 0 || o.endPending,
	}
	if s.Mark != nil {
		m := *s.Mark
		v.Mark = &m
	}
	if s.LastError != nil {
		v.LastError = s.LastError.Error()
	}
	return v
}

// idleSince reports when the session last changed.
func (o *Orchestrator) idleSince() (time.Time, Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActive, o.state.Phase
}

func (o *Orchestrator) stale(s *Step) bool {
	return o.cfg.BufferTTL > 0 && o.deps.now().Sub(s.PreparedAt) > o.cfg.BufferTTL
}

// adopt makes s the current question. The caller must hold o.mu.
func (o *Orchestrator) adopt(s *Step) {
	o.state.Current = s
	o.state.UserAnswer = ""
	o.state.Answered = false
	o.state.Mark = nil
	o.state.LastError = nil
	o.state.Phase = PhaseAwaitingAnswer
}

// generateCurrent generates a new current question outside the lock and
// applies the outcome. The caller must have taken the busy flag.
func (o *Orchestrator) generateCurrent(ctx context.Context) (StateView, error) {
	o.mu.Lock()
	history := append([]picker.HistoryEntry(nil), o.history...)
	o.mu.Unlock()

	step, err := o.generateStep(llm.WithSessionID(ctx, o.state.SessionID), history)

	o.mu.Lock()
	o.busy = false
	if o.state.Phase == PhaseEnded {
		o.mu.Unlock()
		return o.Snapshot(), nil
	}
	if err != nil {
		o.state.Current = nil
		o.state.UserAnswer = ""
		o.state.Answered = false
		o.state.Mark = nil
		o.state.Phase = PhaseError
		o.state.LastError = err
		o.mu.Unlock()
		o.log.Warn("question generation failed", zap.Error(err))
		return o.Snapshot(), err
	}
	o.adopt(step)
	o.mu.Unlock()
	return o.Snapshot(), nil
}

// generateStep picks the next (submodule, schema) pair and generates its
// question data.
func (o *Orchestrator) generateStep(ctx context.Context, history []picker.HistoryEntry) (*Step, error) {
	pick, err := o.deps.Picker.PickNext(ctx, picker.PickContext{
		ModuleID:       o.state.ModuleID,
		TargetLanguage: o.state.TargetLanguage,
		History:        history,
	})
	if err != nil {
		return nil, err
	}

	mod, sub, schema, err := o.resolve(pick.SubmoduleID, pick.SchemaID)
	if err != nil {
		return nil, err
	}

	pc := o.promptContext(mod, sub)
	var prompt string
	if ov, ok := sub.Override(schema.ID); ok && strings.TrimSpace(ov.GenerationPrompt) != "" {
		prompt = interaction.Render(ov.GenerationPrompt, pc)
	} else {
		prompt = schema.Generation.BuildPrompt(pc)
	}

	res := o.deps.Generator.GenerateStructuredData(ctx, prompt, schema.Generation.Contract, "generate:"+schema.ID)
	if !res.OK() {
		return nil, res.Err
	}

	return &Step{
		SubmoduleID:  sub.ID,
		SchemaID:     schema.ID,
		Title:        sub.TitleFor(o.state.SourceLanguage),
		Component:    schema.Component,
		QuestionData: res.Data,
		PreparedAt:   o.deps.now(),
	}, nil
}

func (o *Orchestrator) resolve(submoduleID, schemaID string) (catalog.Module, catalog.Submodule, interaction.Schema, error) {
	mod, err := o.deps.Modules.Module(o.state.ModuleID)
	if err != nil {
		return catalog.Module{}, catalog.Submodule{}, interaction.Schema{}, err
	}
	sub, ok := mod.Submodule(submoduleID)
	if !ok {
		return catalog.Module{}, catalog.Submodule{}, interaction.Schema{},
			apperr.Configf("submodule "+mod.ID+"/"+submoduleID, "not in catalog")
	}
	if !sub.Supports(schemaID) {
		return catalog.Module{}, catalog.Submodule{}, interaction.Schema{},
			apperr.Configf("submodule "+mod.ID+"/"+submoduleID, "does not offer schema %q", schemaID)
	}
	schema, err := o.deps.Schemas.GetSchema(schemaID)
	if err != nil {
		return catalog.Module{}, catalog.Submodule{}, interaction.Schema{}, err
	}
	return mod, sub, schema, nil
}

func (o *Orchestrator) promptContext(mod catalog.Module, sub catalog.Submodule) interaction.PromptContext {
	return interaction.PromptContext{
		ModuleTitle:    mod.TitleFor(o.state.SourceLanguage),
		SubmoduleTitle: sub.TitleFor(o.state.SourceLanguage),
		Context:        sub.Context,
		TargetLanguage: o.state.TargetLanguage,
		SourceLanguage: o.state.SourceLanguage,
	}
}

func (o *Orchestrator) markingInput(cur *Step, answer string) (marking.Input, error) {
	mod, sub, schema, err := o.resolve(cur.SubmoduleID, cur.SchemaID)
	if err != nil {
		return marking.Input{}, err
	}
	return marking.Input{
		Module:         mod,
		Submodule:      sub,
		Schema:         schema,
		QuestionData:   json.RawMessage(cur.QuestionData),
		UserAnswer:     answer,
		TargetLanguage: o.state.TargetLanguage,
		SourceLanguage: o.state.SourceLanguage,
	}, nil
}
