package store

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// Conn runs repository queries against either the database handle or an
// open transaction. All repository methods hang off Conn so the same code
// serves both.
type Conn struct {
	eq      dialect.ExecQuerier
	dialect string
}

// Dialect returns the ent dialect name ("sqlite3" or "postgres").
func (c *Conn) Dialect() string {
	return c.dialect
}

func (c *Conn) builder() *entsql.DialectBuilder {
	return entsql.Dialect(c.dialect)
}

// exec runs a statement and returns the number of affected rows.
func (c *Conn) exec(ctx context.Context, query string, args []any) (int64, error) {
	var res entsql.Result
	if err := c.eq.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// query runs a SELECT and calls scan once per row.
func (c *Conn) query(ctx context.Context, query string, args []any, scan func(rows *entsql.Rows) error) error {
	rows := &entsql.Rows{}
	if err := c.eq.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Global sequence.
//
// Ledger entries, answers and session events live in separate tables, so
// per-table auto-increment IDs can't order them against each other. A single
// counter row assigns one increasing sequence to every appended row. The
// UPDATE ... RETURNING runs inside the caller's transaction and holds the
// row lock until commit, which makes the increment atomic on both SQLite
// and Postgres.

func initSequence(ctx context.Context, eq dialect.ExecQuerier) error {
	var res entsql.Result
	err := eq.Exec(ctx,
		`INSERT INTO global_sequence (id, next_val) VALUES (1, 1) ON CONFLICT (id) DO NOTHING`,
		[]any{}, &res)
	if err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	return nil
}

// nextSequence returns the next global sequence number.
func (c *Conn) nextSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := c.query(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
		[]any{},
		func(rows *entsql.Rows) error { return rows.Scan(&seq) },
	)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	if seq == 0 {
		return 0, fmt.Errorf("next sequence: counter row missing")
	}
	return seq, nil
}

// Millis converts t to the unix-millisecond form stored in *_at columns.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
