package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit     int       // max results (0 = unlimited)
	Purpose   string    // exact purpose match ("" = any)
	SessionID string    // exact session match ("" = any)
	From      time.Time // timestamp >= From
	To        time.Time // timestamp <= To
}

// SessionRecord is the persisted header of a learner session.
type SessionRecord struct {
	ID             string
	UserID         string
	ModuleID       string
	TargetLanguage string
	SourceLanguage string
	StartTime      time.Time
	EndTime        time.Time // zero while the session is open
}

// Mark is the judgement stored with an answered question.
type Mark struct {
	IsCorrect     bool   `json:"is_correct"`
	Score         int    `json:"score"`
	Feedback      string `json:"feedback"`
	CorrectAnswer string `json:"correct_answer"`
}

// SessionEvent is one answered (or skipped) question. Events are append-only.
type SessionEvent struct {
	ID            int64
	Sequence      int64
	SessionID     string
	SubmoduleID   string
	ModalSchemaID string
	QuestionData  json.RawMessage
	UserAnswer    string
	Mark          Mark

	// Marked is false for questions that were skipped without a judgement.
	// Unmarked events never count towards accuracy.
	Marked bool

	// IsCorrect mirrors Mark.IsCorrect so aggregates can filter on a column.
	IsCorrect bool
	Timestamp time.Time
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	SessionID    string
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEvent is a persisted LLM request event.
type LLMRequestEvent struct {
	ID        int64
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// LLMUsage aggregates LLM calls under one key (purpose or model).
type LLMUsage struct {
	Purpose      string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// SessionRepo persists session headers.
type SessionRepo interface {
	CreateSession(ctx context.Context, rec SessionRecord) error

	// EndSession stamps the end time. Ending an ended session is a no-op.
	EndSession(ctx context.Context, id string, at time.Time) error

	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
}

// EventRepo provides append and query access to session events.
type EventRepo interface {
	// AppendSessionEvent stores ev and fills in its ID and Sequence.
	AppendSessionEvent(ctx context.Context, ev *SessionEvent) error

	// ModuleEvents returns every event of the user's sessions on a module,
	// in sequence order.
	ModuleEvents(ctx context.Context, userID, moduleID string) ([]SessionEvent, error)

	// SessionEvents returns the events of one session in sequence order.
	SessionEvents(ctx context.Context, sessionID string) ([]SessionEvent, error)
}

// LLMEventRepo records and inspects LLM request events.
type LLMEventRepo interface {
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)

	// GetLLMEvent returns nil, nil for unknown ids.
	GetLLMEvent(ctx context.Context, id int64) (*LLMRequestEvent, error)

	LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error)
	LLMUsageByModel(ctx context.Context) ([]LLMUsage, error)
}
