package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

// AddQuestionReport stores a learner's problem report.
func (c *Conn) AddQuestionReport(ctx context.Context, r QuestionReport) error {
	query, args := c.builder().Insert("question_reports").
		Columns("id", "user_id", "question_id", "reason", "description", "created_at").
		Values(r.ID, r.UserID, r.QuestionID, r.Reason, r.Description, Millis(r.CreatedAt)).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("save question report: %w", err)
	}
	return nil
}

// ReportsForQuestion lists reports filed against a question, oldest first.
func (c *Conn) ReportsForQuestion(ctx context.Context, questionID string) ([]QuestionReport, error) {
	query, args := c.builder().Select("id", "user_id", "question_id", "reason", "description", "created_at").
		From(entsql.Table("question_reports")).
		Where(entsql.EQ("question_id", questionID)).
		OrderBy("created_at", "id").
		Query()

	var out []QuestionReport
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var (
			r  QuestionReport
			at int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.QuestionID, &r.Reason, &r.Description, &at); err != nil {
			return err
		}
		r.CreatedAt = FromMillis(at)
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query question reports: %w", err)
	}
	return out, nil
}
