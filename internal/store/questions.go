package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

var questionColumns = []string{"id", "unit_id", "type", "content", "ord"}

// UpsertUnit inserts a unit or updates its curriculum, title and order.
func (c *Conn) UpsertUnit(ctx context.Context, u Unit) error {
	query, args := c.builder().Insert("units").
		Columns("id", "curriculum_id", "title", "ord").
		Values(u.ID, u.CurriculumID, u.Title, u.Order).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return fmt.Errorf("upsert unit %s: %w", u.ID, err)
	}
	return nil
}

// UpsertQuestion inserts a question or replaces its type, content and order.
// It reports whether a new row was created.
func (c *Conn) UpsertQuestion(ctx context.Context, q QuestionRow) (bool, error) {
	existing, err := c.QuestionsByIDs(ctx, []string{q.ID})
	if err != nil {
		return false, err
	}

	if len(existing) == 0 {
		query, args := c.builder().Insert("questions").
			Columns(questionColumns...).
			Values(q.ID, q.UnitID, q.Type, string(q.Content), q.Order).
			Query()
		if _, err := c.exec(ctx, query, args); err != nil {
			return false, fmt.Errorf("insert question %s: %w", q.ID, err)
		}
		return true, nil
	}

	query, args := c.builder().Update("questions").
		Set("unit_id", q.UnitID).
		Set("type", q.Type).
		Set("content", string(q.Content)).
		Set("ord", q.Order).
		Where(entsql.EQ("id", q.ID)).
		Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return false, fmt.Errorf("update question %s: %w", q.ID, err)
	}
	return false, nil
}

// QuestionsForUnit returns a unit's questions in authored order.
func (c *Conn) QuestionsForUnit(ctx context.Context, unitID string) ([]QuestionRow, error) {
	query, args := c.builder().Select(questionColumns...).
		From(entsql.Table("questions")).
		Where(entsql.EQ("unit_id", unitID)).
		OrderBy("ord", "id").
		Query()
	return c.scanQuestions(ctx, query, args)
}

// QuestionsForCurriculum returns every question of every unit in a
// curriculum, ordered by unit order and then question order.
func (c *Conn) QuestionsForCurriculum(ctx context.Context, curriculumID string) ([]QuestionRow, error) {
	units, err := c.UnitsForCurriculum(ctx, curriculumID)
	if err != nil {
		return nil, err
	}

	var all []QuestionRow
	for _, u := range units {
		qs, err := c.QuestionsForUnit(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, qs...)
	}
	return all, nil
}

// QuestionsByIDs returns the questions with the given ids, preserving the
// order of ids. Unknown ids are skipped.
func (c *Conn) QuestionsByIDs(ctx context.Context, ids []string) ([]QuestionRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query, qargs := c.builder().Select(questionColumns...).
		From(entsql.Table("questions")).
		Where(entsql.In("id", args...)).
		Query()

	rows, err := c.scanQuestions(ctx, query, qargs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]QuestionRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	ordered := make([]QuestionRow, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered, nil
}

// UnitsForCurriculum returns a curriculum's units in order.
func (c *Conn) UnitsForCurriculum(ctx context.Context, curriculumID string) ([]Unit, error) {
	query, args := c.builder().Select("id", "curriculum_id", "title", "ord").
		From(entsql.Table("units")).
		Where(entsql.EQ("curriculum_id", curriculumID)).
		OrderBy("ord", "id").
		Query()

	var units []Unit
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var u Unit
		if err := rows.Scan(&u.ID, &u.CurriculumID, &u.Title, &u.Order); err != nil {
			return err
		}
		units = append(units, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	return units, nil
}

// GetUnit returns a unit or ErrNotFound.
func (c *Conn) GetUnit(ctx context.Context, id string) (*Unit, error) {
	query, args := c.builder().Select("id", "curriculum_id", "title", "ord").
		From(entsql.Table("units")).
		Where(entsql.EQ("id", id)).
		Query()

	var unit *Unit
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var u Unit
		if err := rows.Scan(&u.ID, &u.CurriculumID, &u.Title, &u.Order); err != nil {
			return err
		}
		unit = &u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get unit %s: %w", id, err)
	}
	if unit == nil {
		return nil, fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	return unit, nil
}

func (c *Conn) scanQuestions(ctx context.Context, query string, args []any) ([]QuestionRow, error) {
	var out []QuestionRow
	err := c.query(ctx, query, args, func(rows *entsql.Rows) error {
		var (
			q       QuestionRow
			content []byte
		)
		if err := rows.Scan(&q.ID, &q.UnitID, &q.Type, &content, &q.Order); err != nil {
			return err
		}
		q.Content = append([]byte(nil), content...)
		out = append(out, q)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	return out, nil
}
