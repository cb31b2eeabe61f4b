// Package stats records answered steps and aggregates learner performance.
// Writes are append-only; reads recompute from the event log so they are
// always consistent with what was recorded.
package stats

import (
	"context"
	"math"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/interaction"
	"github.com/abhisek/lingua/internal/store"
)

// Tally counts answers and the rounded accuracy percentage.
type Tally struct {
	Total    int `json:"total"`
	Correct  int `json:"correct"`
	Accuracy int `json:"accuracy"`
}

func (t *Tally) add(correct bool) {
	t.Total++
	if correct {
		t.Correct++
	}
	t.Accuracy = Accuracy(t.Correct, t.Total)
}

// ModulePerformance is a learner's performance on a module, overall and
// per skill.
type ModulePerformance struct {
	Overall Tally                       `json:"overall"`
	BySkill map[interaction.Skill]Tally `json:"by_skill"`
}

// Accuracy returns round(correct/total*100), or 0 when total is 0.
func Accuracy(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// SkillLookup resolves an interaction schema id to its skill.
type SkillLookup interface {
	SkillOf(schemaID string) (interaction.Skill, bool, error)
}

// Aggregator writes session events and computes performance.
type Aggregator struct {
	events store.EventRepo
	skills SkillLookup
	log    *zap.Logger
}

// NewAggregator creates an Aggregator. A nil logger discards logs.
func NewAggregator(events store.EventRepo, skills SkillLookup, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{events: events, skills: skills, log: log}
}

// Record appends one event. Failures come back as *apperr.PersistenceError.
func (a *Aggregator) Record(ctx context.Context, ev *store.SessionEvent) error {
	if err := a.events.AppendSessionEvent(ctx, ev); err != nil {
		return &apperr.PersistenceError{Op: "record session event", Err: err}
	}
	return nil
}

// ModulePerformance aggregates every marked event of userID on moduleID.
func (a *Aggregator) ModulePerformance(ctx context.Context, userID, moduleID string) (ModulePerformance, error) {
	events, err := a.events.ModuleEvents(ctx, userID, moduleID)
	if err != nil {
		return ModulePerformance{}, &apperr.PersistenceError{Op: "query module events", Err: err}
	}
	return a.aggregate(events)
}

// SessionSummary aggregates the marked events of one session.
func (a *Aggregator) SessionSummary(ctx context.Context, sessionID string) (ModulePerformance, error) {
	events, err := a.events.SessionEvents(ctx, sessionID)
	if err != nil {
		return ModulePerformance{}, &apperr.PersistenceError{Op: "query session events", Err: err}
	}
	return a.aggregate(events)
}

func (a *Aggregator) aggregate(events []store.SessionEvent) (ModulePerformance, error) {
	perf := ModulePerformance{BySkill: make(map[interaction.Skill]Tally)}

	marked := lo.Filter(events, func(ev store.SessionEvent, _ int) bool { return ev.Marked })
	for _, ev := range marked {
		perf.Overall.add(ev.IsCorrect)

		skill, ok, err := a.skills.SkillOf(ev.ModalSchemaID)
		if err != nil {
			return ModulePerformance{}, err
		}
		if !ok {
			a.log.Warn("event references unknown interaction schema",
				zap.Int64("event_id", ev.ID), zap.String("schema", ev.ModalSchemaID))
			continue
		}
		t := perf.BySkill[skill]
		t.add(ev.IsCorrect)
		perf.BySkill[skill] = t
	}
	return perf, nil
}
