package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var attemptColumns = []string{
	"id", "user_id", "kind", "source_id", "status", "question_ids", "checkpoint",
	"started_at", "completed_at", "score", "correct_answers", "total_questions",
	"passed", "experience_gained", "elapsed_secs", "zaps_awarded", "certificate_eligible",
	"last_activity_at",
}

// CreateAttempt inserts a new in-progress attempt.
func (c *Conn) CreateAttempt(ctx context.Context, a AttemptRow) error {
	ids, err := json.Marshal(a.QuestionIDs)
	if err != nil {
		return fmt.Errorf("marshal question ids: %w", err)
	}
	status := a.Status
	if status == "" {
		status = StatusInProgress
	}

	query, args := c.builder().Insert("attempts").
		Columns("id", "user_id", "kind", "source_id", "status", "question_ids", "started_at", "last_activity_at").
		Values(a.ID, a.UserID, a.Kind, a.SourceID, status, string(ids), Millis(a.StartedAt), Millis(a.StartedAt)).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("create attempt %s: %w", a.ID, err)
	}
	return nil
}

// GetAttempt returns an attempt or ErrNotFound.
func (c *Conn) GetAttempt(ctx context.Context, id string) (*AttemptRow, error) {
	query, args := c.builder().Select(attemptColumns...).
		From(entsql.Table("attempts")).
		Where(entsql.EQ("id", id)).
		Query()
	rows, err := c.scanAttempts(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return &rows[0], nil
}

// LatestInProgress returns the user's newest in-progress attempt for a
// source, or ErrNotFound.
func (c *Conn) LatestInProgress(ctx context.Context, userID, kind, sourceID string) (*AttemptRow, error) {
	query, args := c.builder().Select(attemptColumns...).
		From(entsql.Table("attempts")).
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.EQ("kind", kind),
			entsql.EQ("source_id", sourceID),
			entsql.EQ("status", StatusInProgress),
		)).
		OrderBy(entsql.Desc("started_at")).
		Limit(1).
		Query()
	rows, err := c.scanAttempts(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("in-progress %s attempt for %s: %w", kind, sourceID, ErrNotFound)
	}
	return &rows[0], nil
}

// AttemptsForUser lists a user's attempts, newest first.
func (c *Conn) AttemptsForUser(ctx context.Context, userID string, limit int) ([]AttemptRow, error) {
	sel := c.builder().Select(attemptColumns...).
		From(entsql.Table("attempts")).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("started_at"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()
	return c.scanAttempts(ctx, query, args)
}

// SaveCheckpoint stores the resumable position of an in-progress attempt
// and marks it active at the given time. It reports false when the attempt
// is no longer in progress.
func (c *Conn) SaveCheckpoint(ctx context.Context, attemptID string, cp Checkpoint, at time.Time) (bool, error) {
	b, err := json.Marshal(cp)
	if err != nil {
		return false, fmt.Errorf("marshal checkpoint: %w", err)
	}
	query, args := c.builder().Update("attempts").
		Set("checkpoint", string(b)).
		Set("last_activity_at", Millis(at)).
		Where(entsql.And(
			entsql.EQ("id", attemptID),
			entsql.EQ("status", StatusInProgress),
		)).
		Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("save checkpoint: %w", err)
	}
	return n == 1, nil
}

// CompleteAttempt moves an attempt from in_progress to completed and writes
// its result. It reports false when the attempt was already finished, which
// lets callers grant completion rewards exactly once.
func (c *Conn) CompleteAttempt(ctx context.Context, attemptID string, res AttemptResult, at time.Time) (bool, error) {
	query, args := c.builder().Update("attempts").
		Set("status", StatusCompleted).
		Set("completed_at", Millis(at)).
		Set("score", res.Score).
		Set("correct_answers", res.CorrectAnswers).
		Set("total_questions", res.TotalQuestions).
		Set("passed", res.Passed).
		Set("experience_gained", res.ExperienceGained).
		Set("elapsed_secs", res.ElapsedSecs).
		Set("zaps_awarded", res.ZapsAwarded).
		Set("certificate_eligible", res.CertificateEligible).
		Where(entsql.And(
			entsql.EQ("id", attemptID),
			entsql.EQ("status", StatusInProgress),
		)).
		Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return false, fmt.Errorf("complete attempt: %w", err)
	}
	return n == 1, nil
}

// AbandonStale marks in-progress attempts with no activity since cutoff as
// abandoned and returns how many were changed. Activity is the start, any
// answer, or any checkpoint.
func (c *Conn) AbandonStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args := c.builder().Update("attempts").
		Set("status", StatusAbandoned).
		Where(entsql.And(
			entsql.EQ("status", StatusInProgress),
			entsql.LT("started_at", Millis(cutoff)),
			entsql.LT("last_activity_at", Millis(cutoff)),
		)).
		Query()
	n, err := c.exec(ctx, query, args)
	if err != nil {
		return 0, fmt.Errorf("abandon stale attempts: %w", err)
	}
	return n, nil
}

// AppendAnswer records one graded submission and marks its attempt
// active.
func (c *Conn) AppendAnswer(ctx context.Context, a AnswerRow) (int64, error) {
	seqNum, err := c.nextSequence(ctx)
	if err != nil {
		return 0, err
	}
	at := a.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}

	query, args := c.builder().Insert("attempt_answers").
		Columns("sequence", "attempt_id", "user_id", "question_id", "answer", "correct", "elapsed_ms", "created_at").
		Values(seqNum, a.AttemptID, a.UserID, a.QuestionID, a.Answer, a.Correct, a.ElapsedMs, Millis(at)).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return 0, fmt.Errorf("save answer: %w", err)
	}

	query, args = c.builder().Update("attempts").
		Set("last_activity_at", Millis(at)).
		Where(entsql.EQ("id", a.AttemptID)).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return 0, fmt.Errorf("touch attempt: %w", err)
	}
	return seqNum, nil
}

// AnswersForAttempt returns an attempt's answers in submission order.
func (c *Conn) AnswersForAttempt(ctx context.Context, attemptID string) ([]AnswerRow, error) {
	query, args := c.answerSelect().
		Where(entsql.EQ("attempt_id", attemptID)).
		OrderBy("sequence").
		Query()
	return c.scanAnswers(ctx, query, args)
}

// UserAnswerHistory returns a user's answers, newest first.
func (c *Conn) UserAnswerHistory(ctx context.Context, userID string, opts QueryOpts) ([]AnswerRow, error) {
	preds := []*entsql.Predicate{entsql.EQ("user_id", userID)}
	if opts.After > 0 {
		preds = append(preds, entsql.GT("sequence", opts.After))
	}
	if !opts.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", Millis(opts.From)))
	}
	sel := c.answerSelect().
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("sequence"))
	if opts.Limit > 0 {
		sel = sel.Limit(opts.Limit)
	}
	query, args := sel.Query()
	return c.scanAnswers(ctx, query, args)
}

func (c *Conn) answerSelect() *entsql.Selector {
	return c.builder().Select("sequence", "attempt_id", "user_id", "question_id",
		"answer", "correct", "elapsed_ms", "created_at").
		From(entsql.Table("attempt_answers"))
}

func (c *Conn) scanAnswers(ctx context.Context, query string, args []any) ([]AnswerRow, error) {
	var out []AnswerRow
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var (
			a  AnswerRow
			at int64
		)
		if err := rows.Scan(&a.Sequence, &a.AttemptID, &a.UserID, &a.QuestionID,
			&a.Answer, &a.Correct, &a.ElapsedMs, &at); err != nil {
			return err
		}
		a.CreatedAt = FromMillis(at)
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	return out, nil
}

func (c *Conn) scanAttempts(ctx context.Context, query string, args []any) ([]AttemptRow, error) {
	var out []AttemptRow
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var (
			a                            AttemptRow
			ids                          []byte
			cp                           sql.NullString
			started, completed, activity int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Kind, &a.SourceID, &a.Status, &ids, &cp,
			&started, &completed, &a.Result.Score, &a.Result.CorrectAnswers,
			&a.Result.TotalQuestions, &a.Result.Passed, &a.Result.ExperienceGained,
			&a.Result.ElapsedSecs, &a.Result.ZapsAwarded, &a.Result.CertificateEligible, &activity); err != nil {
			return err
		}
		if err := json.Unmarshal(ids, &a.QuestionIDs); err != nil {
			return fmt.Errorf("unmarshal question ids: %w", err)
		}
		if cp.Valid && cp.String != "" {
			var checkpoint Checkpoint
			if err := json.Unmarshal([]byte(cp.String), &checkpoint); err != nil {
				return fmt.Errorf("unmarshal checkpoint: %w", err)
			}
			a.Checkpoint = &checkpoint
		}
		a.StartedAt = FromMillis(started)
		a.CompletedAt = FromMillis(completed)
		a.LastActivityAt = FromMillis(activity)
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return out, nil
}
