package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/lingua/internal/apperr"
	"github.com/abhisek/lingua/internal/interaction"
	"github.com/abhisek/lingua/internal/store"
)

func setup(t *testing.T) (*Aggregator, *store.Store) {
	t.Helper()
	s, err := store.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := interaction.NewRegistry()
	if err := reg.Initialize(interaction.Builtins()); err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewAggregator(s.EventRepo(), reg, nil), s
}

func startSession(t *testing.T, s *store.Store, id, user, module string) {
	t.Helper()
	err := s.SessionRepo().CreateSession(context.Background(), store.SessionRecord{
		ID: id, UserID: user, ModuleID: module, TargetLanguage: "fr", SourceLanguage: "en", StartTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
}

func record(t *testing.T, a *Aggregator, sessionID, schemaID string, correct bool) {
	t.Helper()
	ev := &store.SessionEvent{
		SessionID:     sessionID,
		SubmoduleID:   "sub",
		ModalSchemaID: schemaID,
		QuestionData:  []byte(`{}`),
		UserAnswer:    "x",
		Mark:          store.Mark{IsCorrect: correct, Score: 50, Feedback: "f"},
		Marked:        true,
		Timestamp:     time.Now(),
	}
	if err := a.Record(context.Background(), ev); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{0, 0, 0},
		{0, 5, 0},
		{5, 5, 100},
		{2, 3, 67},
		{1, 3, 33},
		{1, 8, 13}, // 12.5 rounds half away from zero
		{1, 200, 1},
	}
	for _, tt := range tests {
		if got := Accuracy(tt.correct, tt.total); got != tt.want {
			t.Errorf("Accuracy(%d, %d) = %d, want %d", tt.correct, tt.total, got, tt.want)
		}
	}
}

// Three events on one module, two correct: a writing skill answered
// correctly twice and a reading skill answered wrongly once.
func TestModulePerformance_BySkill(t *testing.T) {
	a, s := setup(t)
	startSession(t, s, "s1", "u1", "M1")

	record(t, a, "s1", interaction.GapFill, true)
	record(t, a, "s1", interaction.Translation, true)
	record(t, a, "s1", interaction.MultipleChoice, false)

	perf, err := a.ModulePerformance(context.Background(), "u1", "M1")
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if perf.Overall != (Tally{Total: 3, Correct: 2, Accuracy: 67}) {
		t.Errorf("overall = %+v", perf.Overall)
	}
	if got := perf.BySkill[interaction.SkillWriting]; got != (Tally{Total: 2, Correct: 2, Accuracy: 100}) {
		t.Errorf("writing = %+v", got)
	}
	if got := perf.BySkill[interaction.SkillReading]; got != (Tally{Total: 1, Correct: 0, Accuracy: 0}) {
		t.Errorf("reading = %+v", got)
	}
	if _, ok := perf.BySkill[interaction.SkillSpeaking]; ok {
		t.Error("unanswered skills should be absent")
	}
}

func TestModulePerformance_MixedSkills(t *testing.T) {
	a, s := setup(t)
	startSession(t, s, "s1", "u1", "M1")

	for _, c := range []bool{true, true, true, false} {
		record(t, a, "s1", interaction.MultipleChoice, c)
	}
	for _, c := range []bool{true, true, true, false, false, false} {
		record(t, a, "s1", interaction.GapFill, c)
	}

	perf, err := a.ModulePerformance(context.Background(), "u1", "M1")
	if err != nil {
		t.Fatal(err)
	}
	if perf.Overall != (Tally{Total: 10, Correct: 6, Accuracy: 60}) {
		t.Errorf("overall = %+v", perf.Overall)
	}
	if got := perf.BySkill[interaction.SkillReading]; got != (Tally{Total: 4, Correct: 3, Accuracy: 75}) {
		t.Errorf("reading = %+v", got)
	}
	if got := perf.BySkill[interaction.SkillWriting]; got != (Tally{Total: 6, Correct: 3, Accuracy: 50}) {
		t.Errorf("writing = %+v", got)
	}
}

func TestModulePerformance_ScopedToUserAndModule(t *testing.T) {
	a, s := setup(t)
	startSession(t, s, "s1", "u1", "M1")
	startSession(t, s, "s2", "u2", "M1")
	startSession(t, s, "s3", "u1", "M2")

	record(t, a, "s1", interaction.GapFill, true)
	record(t, a, "s2", interaction.GapFill, false)
	record(t, a, "s3", interaction.GapFill, false)

	perf, err := a.ModulePerformance(context.Background(), "u1", "M1")
	if err != nil {
		t.Fatal(err)
	}
	if perf.Overall.Total != 1 || perf.Overall.Correct != 1 {
		t.Errorf("overall = %+v, want only u1/M1 events", perf.Overall)
	}
}

func TestModulePerformance_Empty(t *testing.T) {
	a, _ := setup(t)
	perf, err := a.ModulePerformance(context.Background(), "nobody", "M1")
	if err != nil {
		t.Fatal(err)
	}
	if perf.Overall != (Tally{}) || len(perf.BySkill) != 0 {
		t.Errorf("expected zero performance, got %+v", perf)
	}
}

func TestModulePerformance_SkipsUnmarkedAndUnknown(t *testing.T) {
	a, s := setup(t)
	startSession(t, s, "s1", "u1", "M1")

	record(t, a, "s1", interaction.GapFill, true)
	record(t, a, "s1", "retired-schema", false)
	skipped := &store.SessionEvent{
		SessionID: "s1", SubmoduleID: "sub", ModalSchemaID: interaction.GapFill,
		QuestionData: []byte(`{}`), Timestamp: time.Now(),
	}
	if err := a.Record(context.Background(), skipped); err != nil {
		t.Fatal(err)
	}

	perf, err := a.ModulePerformance(context.Background(), "u1", "M1")
	if err != nil {
		t.Fatal(err)
	}
	// Unknown schemas still count overall; skipped questions never do.
	if perf.Overall.Total != 2 {
		t.Errorf("overall total = %d, want 2", perf.Overall.Total)
	}
	if perf.BySkill[interaction.SkillWriting].Total != 1 {
		t.Errorf("writing = %+v", perf.BySkill[interaction.SkillWriting])
	}
}

func TestModulePerformance_MonotonicInCorrectAnswers(t *testing.T) {
	a, s := setup(t)
	startSession(t, s, "s1", "u1", "M1")

	prevCorrect := 0
	prevAcc := 0
	pattern := []bool{false, true, true, false, true, true, true, false}
	for i, correct := range pattern {
		record(t, a, "s1", interaction.GapFill, correct)
		perf, err := a.ModulePerformance(context.Background(), "u1", "M1")
		if err != nil {
			t.Fatal(err)
		}
		if perf.Overall.Correct < prevCorrect {
			t.Fatalf("step %d: correct count decreased", i)
		}
		if correct && perf.Overall.Accuracy < prevAcc {
			t.Fatalf("step %d: a correct answer lowered accuracy from %d to %d", i, prevAcc, perf.Overall.Accuracy)
		}
		prevCorrect = perf.Overall.Correct
		prevAcc = perf.Overall.Accuracy
	}
}

func TestSessionSummary(t *testing.T) {
	a, s := setup(t)
	startSession(t, s, "s1", "u1", "M1")
	startSession(t, s, "s2", "u1", "M1")

	record(t, a, "s1", interaction.SpokenResponse, true)
	record(t, a, "s2", interaction.SpokenResponse, false)

	sum, err := a.SessionSummary(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Overall != (Tally{Total: 1, Correct: 1, Accuracy: 100}) {
		t.Errorf("summary = %+v", sum.Overall)
	}
	if sum.BySkill[interaction.SkillSpeaking].Total != 1 {
		t.Errorf("speaking = %+v", sum.BySkill[interaction.SkillSpeaking])
	}
}

type failingRepo struct{ store.EventRepo }

var errDisk = errors.New("disk full")

func (failingRepo) AppendSessionEvent(context.Context, *store.SessionEvent) error { return errDisk }

func (failingRepo) ModuleEvents(context.Context, string, string) ([]store.SessionEvent, error) {
	return nil, errDisk
}

func TestPersistenceErrors(t *testing.T) {
	a := NewAggregator(failingRepo{}, interaction.NewRegistry(), nil)

	err := a.Record(context.Background(), &store.SessionEvent{})
	if !apperr.IsPersistence(err) || !errors.Is(err, errDisk) {
		t.Errorf("Record: expected persistence error wrapping cause, got %v", err)
	}
	_, err = a.ModulePerformance(context.Background(), "u", "m")
	if !apperr.IsPersistence(err) {
		t.Errorf("ModulePerformance: expected persistence error, got %v", err)
	}
}
