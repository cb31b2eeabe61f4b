package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const (
	sessionsTable      = "sessions"
	sessionEventsTable = "session_events"
)

type sessionRepo struct {
	drv *entsql.Driver
}

func (r *sessionRepo) CreateSession(ctx context.Context, rec SessionRecord) error {
	query, args := entsql.Dialect(r.drv.Dialect()).
		Insert(sessionsTable).
		Columns("id", "user_id", "module_id", "target_language", "source_language", "start_time").
		Values(rec.ID, rec.UserID, rec.ModuleID, rec.TargetLanguage, rec.SourceLanguage, utc(rec.StartTime)).
		Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) EndSession(ctx context.Context, id string, at time.Time) error {
	query, args := entsql.Dialect(r.drv.Dialect()).
		Update(sessionsTable).
		Set("end_time", utc(at)).
		Where(entsql.And(entsql.EQ("id", id), entsql.IsNull("end_time"))).
		Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.GetSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *sessionRepo) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	b := entsql.Dialect(r.drv.Dialect())
	query, args := b.Select("id", "user_id", "module_id", "target_language", "source_language", "start_time", "end_time").
		From(b.Table(sessionsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query session: %w", err)
		}
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	var (
		rec SessionRecord
		end sql.NullTime
	)
	if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ModuleID, &rec.TargetLanguage, &rec.SourceLanguage, &rec.StartTime, &end); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	rec.StartTime = rec.StartTime.UTC()
	if end.Valid {
		rec.EndTime = end.Time.UTC()
	}
	return &rec, nil
}

// eventRepo implements EventRepo; appends are numbered from the global
// event sequence.
type eventRepo struct {
	drv *entsql.Driver
}

var sessionEventColumns = []string{
	"id", "sequence", "session_id", "submodule_id", "modal_schema_id",
	"question_data", "user_answer", "mark_data", "marked", "is_correct", "timestamp",
}

func (r *eventRepo) AppendSessionEvent(ctx context.Context, ev *SessionEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Timestamp = utc(ev.Timestamp)
	question := ev.QuestionData
	if len(question) == 0 {
		question = json.RawMessage("null")
	}
	mark, err := json.Marshal(ev.Mark)
	if err != nil {
		return fmt.Errorf("marshal mark: %w", err)
	}
	ev.IsCorrect = ev.Marked && ev.Mark.IsCorrect

	var id int64
	seq, err := appendSequenced(ctx, r.drv, func(tx dialect.Tx, seq int64) (err error) {
		id, err = insertEvent(ctx, tx, r.drv.Dialect(), sessionEventsTable, seq,
			[]string{"session_id", "submodule_id", "modal_schema_id", "question_data", "user_answer", "mark_data", "marked", "is_correct", "timestamp"},
			[]any{ev.SessionID, ev.SubmoduleID, ev.ModalSchemaID, string(question), ev.UserAnswer, string(mark), ev.Marked, ev.IsCorrect, ev.Timestamp},
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save session event: %w", err)
	}

	ev.ID = id
	ev.Sequence = seq
	return nil
}

func (r *eventRepo) ModuleEvents(ctx context.Context, userID, moduleID string) ([]SessionEvent, error) {
	b := entsql.Dialect(r.drv.Dialect())
	e := b.Table(sessionEventsTable).As("e")
	s := b.Table(sessionsTable).As("s")
	sel := b.Select(e.Columns(sessionEventColumns...)...).
		From(e).
		Join(s).On(s.C("id"), e.C("session_id")).
		Where(entsql.And(entsql.EQ(s.C("user_id"), userID), entsql.EQ(s.C("module_id"), moduleID))).
		OrderBy(e.C("sequence"))
	return r.query(ctx, sel)
}

func (r *eventRepo) SessionEvents(ctx context.Context, sessionID string) ([]SessionEvent, error) {
	b := entsql.Dialect(r.drv.Dialect())
	sel := b.Select(sessionEventColumns...).
		From(b.Table(sessionEventsTable)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("sequence")
	return r.query(ctx, sel)
}

func (r *eventRepo) query(ctx context.Context, sel *entsql.Selector) ([]SessionEvent, error) {
	query, args := sel.Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var out []SessionEvent
	for rows.Next() {
		var (
			ev       SessionEvent
			question string
			mark     string
		)
		if err := rows.Scan(&ev.ID, &ev.Sequence, &ev.SessionID, &ev.SubmoduleID, &ev.ModalSchemaID,
			&question, &ev.UserAnswer, &mark, &ev.Marked, &ev.IsCorrect, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		ev.QuestionData = json.RawMessage(question)
		if err := json.Unmarshal([]byte(mark), &ev.Mark); err != nil {
			return nil, fmt.Errorf("decode mark for event %d: %w", ev.ID, err)
		}
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session events: %w", err)
	}
	return out, nil
}
