package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// Every appended row, learner answer or LLM request, takes a number from the
// single global_sequence row, so a request event can be placed before or
// after the answer it produced. The number is drawn in the same transaction
// as the insert, so a failed insert gives it back.

const (
	sequenceTable = "global_sequence"
	nextSequence  = `UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`
)

// seedSequence inserts the counter row if it is missing.
func seedSequence(ctx context.Context, drv *entsql.Driver) error {
	query, args := entsql.Dialect(drv.Dialect()).
		Insert(sequenceTable).
		Columns("id", "next_val").
		Values(1, 1).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()
	var res sql.Result
	if err := drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	return nil
}

// appendSequenced runs insert inside a transaction with the next sequence
// number and returns that number.
func appendSequenced(ctx context.Context, drv *entsql.Driver, insert func(tx dialect.Tx, seq int64) error) (int64, error) {
	tx, err := drv.Tx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	seq, err := queryInt64(ctx, tx, nextSequence, []any{})
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	if err := insert(tx, seq); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

// insertEvent writes one event row and returns its id. Sequence numbers
// are unique, so the id is read back by sequence on both dialects.
func insertEvent(ctx context.Context, tx dialect.Tx, d string, table string, seq int64, columns []string, values []any) (int64, error) {
	b := entsql.Dialect(d)
	query, args := b.Insert(table).
		Columns(append([]string{"sequence"}, columns...)...).
		Values(append([]any{seq}, values...)...).
		Query()
	var res sql.Result
	if err := tx.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}

	query, args = b.Select("id").
		From(b.Table(table)).
		Where(entsql.EQ("sequence", seq)).
		Query()
	return queryInt64(ctx, tx, query, args)
}

func queryInt64(ctx context.Context, q dialect.ExecQuerier, query string, args []any) (int64, error) {
	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	return entsql.ScanInt64(rows)
}

// utc strips the location and monotonic reading before a time is written.
func utc(t time.Time) time.Time {
	return t.UTC().Round(0)
}
