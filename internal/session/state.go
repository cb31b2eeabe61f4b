package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/abhisek/lingua/internal/marking"
)

// Phase is the position of a session in its state machine.
type Phase int

const (
	PhaseIdle           Phase = iota // Created, first question not ready
	PhaseAwaitingAnswer              // Current question shown, no answer yet
	PhaseMarking                     // Answer submitted, judgement pending
	PhaseAnswered                    // Judgement available
	PhaseEnded                       // Finished; no further transitions
	PhaseError                       // Question generation failed; Retry or End
)

var phaseNames = [...]string{"idle", "awaiting_answer", "marking", "answered", "ended", "error"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// MarshalText renders the phase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Errors returned for operations the current phase does not allow.
var (
	ErrInvalidTransition = errors.New("operation not allowed in current phase")
	ErrBusy              = errors.New("session is busy with another operation")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidParams     = errors.New("invalid session parameters")
)

// Step is one exercise: where it comes from and its generated content.
type Step struct {
	SubmoduleID  string          `json:"submodule_id"`
	SchemaID     string          `json:"schema_id"`
	Title        string          `json:"title"`
	Component    string          `json:"component"`
	QuestionData json.RawMessage `json:"question_data"`
	PreparedAt   time.Time       `json:"prepared_at"`
}

func (s *Step) clone() *Step {
	if s == nil {
		return nil
	}
	c := *s
	c.QuestionData = append(json.RawMessage(nil), s.QuestionData...)
	return &c
}

// State is the in-memory state of one session. It is owned by an
// Orchestrator and never shared.
type State struct {
	SessionID      string
	UserID         string
	ModuleID       string
	TargetLanguage string
	SourceLanguage string
	StartedAt      time.Time

	Current    *Step
	UserAnswer string
	Answered   bool
	Mark       *marking.Result

	// Buffered is the pre-fetched next step. It is set only between a
	// successful mark and the advance that consumes it.
	Buffered *Step

	CorrectCount  int
	TotalAnswered int

	Phase     Phase
	LastError error
}

// StateView is a copy of a session's state safe to hand to callers.
type StateView struct {
	SessionID      string          `json:"session_id"`
	UserID         string          `json:"user_id"`
	ModuleID       string          `json:"module_id"`
	TargetLanguage string          `json:"target_language"`
	SourceLanguage string          `json:"source_language"`
	Phase          Phase           `json:"phase"`
	Current        *Step           `json:"current,omitempty"`
	UserAnswer     string          `json:"user_answer,omitempty"`
	Answered       bool            `json:"answered"`
	Mark           *marking.Result `json:"mark,omitempty"`
	HasNext        bool            `json:"has_next"`
	CorrectCount   int             `json:"correct_count"`
	TotalAnswered  int             `json:"total_answered"`
	LastError      string          `json:"last_error,omitempty"`

	// PersistPending is set when the last answer's event could not be
	// written; RetryPersist writes it again.
	PersistPending bool `json:"persist_pending"`
}

// SubmitResult is what Submit returns to the caller.
type SubmitResult struct {
	Mark     marking.Result `json:"mark"`
	NextStep *Step          `json:"next_step"`
}
