package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// AppendLedgerEntry appends an immutable balance change to the heart or
// currency ledger and returns its global sequence number.
func (c *Conn) AppendLedgerEntry(ctx context.Context, kind LedgerKind, e LedgerEntry) (int64, error) {
	seq, err := c.nextSequence(ctx)
	if err != nil {
		return 0, err
	}

	var attemptID any
	if e.AttemptID != "" {
		attemptID = e.AttemptID
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query, args := c.builder().Insert(string(kind)).
		Columns("sequence", "user_id", "type", "amount", "reason", "attempt_id", "created_at").
		Values(seq, e.UserID, e.Type, e.Amount, e.Reason, attemptID, Millis(createdAt)).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return 0, fmt.Errorf("append %s entry: %w", kind, err)
	}
	return seq, nil
}

// LedgerEntries returns a user's entries from one ledger, newest first.
func (c *Conn) LedgerEntries(ctx context.Context, kind LedgerKind, userID string, opts QueryOpts) ([]LedgerEntry, error) {
	preds := []*entsql.Predicate{entsql.EQ("user_id", userID)}
	if opts.After > 0 {
		preds = append(preds, entsql.GT("sequence", opts.After))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", Millis(opts.From)))
	}

	sel := c.builder().Select("sequence", "user_id", "type", "amount", "reason", "attempt_id", "created_at").
		From(entsql.Table(string(kind))).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("sequence"))
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	var entries []LedgerEntry
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var (
			e         LedgerEntry
			attemptID sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.Sequence, &e.UserID, &e.Type, &e.Amount, &e.Reason, &attemptID, &createdAt); err != nil {
			return err
		}
		e.AttemptID = attemptID.String
		e.CreatedAt = FromMillis(createdAt)
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	return entries, nil
}

// LedgerSum returns the net amount recorded in one ledger for a user.
func (c *Conn) LedgerSum(ctx context.Context, kind LedgerKind, userID string) (int, error) {
	query, args := c.builder().Select("COALESCE(SUM(amount), 0)").
		From(entsql.Table(string(kind))).
		Where(entsql.EQ("user_id", userID)).
		Query()

	var sum int
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		return rows.Scan(&sum)
	})
	if err != nil {
		return 0, fmt.Errorf("sum %s: %w", kind, err)
	}
	return sum, nil
}
