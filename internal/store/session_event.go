package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// AppendSessionEvent records a session lifecycle event.
func (c *Conn) AppendSessionEvent(ctx context.Context, data SessionEventData) error {
	seqNum, err := c.nextSequence(ctx)
	if err != nil {
		return err
	}

	query, args := c.builder().Insert("session_events").
		Columns("sequence", "attempt_id", "user_id", "action", "questions_served",
			"correct_answers", "duration_secs", "detail", "created_at").
		Values(seqNum, data.AttemptID, data.UserID, data.Action, data.QuestionsServed,
			data.CorrectAnswers, data.DurationSecs, data.Detail, Millis(time.Now())).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("save session event: %w", err)
	}
	return nil
}

// SessionEvents returns the events of one attempt in sequence order.
func (c *Conn) SessionEvents(ctx context.Context, attemptID string) ([]SessionEventRecord, error) {
	query, args := c.builder().Select("sequence", "attempt_id", "user_id", "action",
		"questions_served", "correct_answers", "duration_secs", "detail", "created_at").
		From(entsql.Table("session_events")).
		Where(entsql.EQ("attempt_id", attemptID)).
		OrderBy("sequence").
		Query()

	var out []SessionEventRecord
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var (
			r  SessionEventRecord
			at int64
		)
		if err := rows.Scan(&r.Sequence, &r.AttemptID, &r.UserID, &r.Action,
			&r.QuestionsServed, &r.CorrectAnswers, &r.DurationSecs, &r.Detail, &at); err != nil {
			return err
		}
		r.CreatedAt = FromMillis(at)
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	return out, nil
}
