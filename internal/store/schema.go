package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table definitions for auto-migration. Every appended row carries the
// global sequence number and a unix-millisecond timestamp.

var (
	globalSequenceColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt},
		{Name: "next_val", Type: field.TypeInt64, Default: 1},
	}
	globalSequenceTable = &schema.Table{
		Name:       "global_sequence",
		Columns:    globalSequenceColumns,
		PrimaryKey: []*schema.Column{globalSequenceColumns[0]},
	}

	usersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "hearts", Type: field.TypeInt},
		{Name: "zaps", Type: field.TypeInt},
		{Name: "xp", Type: field.TypeInt64, Default: 0},
		{Name: "last_heart_reset", Type: field.TypeInt64, Default: 0},
		{Name: "created_at", Type: field.TypeInt64},
	}
	usersTable = &schema.Table{
		Name:       "users",
		Columns:    usersColumns,
		PrimaryKey: []*schema.Column{usersColumns[0]},
	}

	heartTxColumns    = ledgerColumns()
	heartTransactions = ledgerTable("heart_transactions", heartTxColumns)

	currencyTxColumns    = ledgerColumns()
	currencyTransactions = ledgerTable("currency_transactions", currencyTxColumns)

	unitsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "curriculum_id", Type: field.TypeString, Size: 64},
		{Name: "title", Type: field.TypeString, Size: 255, Default: ""},
		{Name: "ord", Type: field.TypeInt, Default: 0},
	}
	unitsTable = &schema.Table{
		Name:       "units",
		Columns:    unitsColumns,
		PrimaryKey: []*schema.Column{unitsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "units_curriculum_id", Columns: []*schema.Column{unitsColumns[1]}},
		},
	}

	questionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "unit_id", Type: field.TypeString, Size: 64},
		{Name: "type", Type: field.TypeString, Size: 32},
		{Name: "content", Type: field.TypeJSON},
		{Name: "ord", Type: field.TypeInt, Default: 0},
	}
	questionsTable = &schema.Table{
		Name:       "questions",
		Columns:    questionsColumns,
		PrimaryKey: []*schema.Column{questionsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "questions_unit_id", Columns: []*schema.Column{questionsColumns[1]}},
		},
	}

	attemptsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "user_id", Type: field.TypeString, Size: 64},
		{Name: "kind", Type: field.TypeString, Size: 16},
		{Name: "source_id", Type: field.TypeString, Size: 64, Default: ""},
		{Name: "status", Type: field.TypeString, Size: 16},
		{Name: "question_ids", Type: field.TypeJSON},
		{Name: "checkpoint", Type: field.TypeJSON, Nullable: true},
		{Name: "started_at", Type: field.TypeInt64},
		{Name: "completed_at", Type: field.TypeInt64, Default: 0},
		{Name: "score", Type: field.TypeFloat64, Default: 0},
		{Name: "correct_answers", Type: field.TypeInt, Default: 0},
		{Name: "total_questions", Type: field.TypeInt, Default: 0},
		{Name: "passed", Type: field.TypeBool, Default: false},
		{Name: "experience_gained", Type: field.TypeInt, Default: 0},
		{Name: "elapsed_secs", Type: field.TypeInt, Default: 0},
		{Name: "zaps_awarded", Type: field.TypeInt, Default: 0},
		{Name: "certificate_eligible", Type: field.TypeBool, Default: false},
		{Name: "last_activity_at", Type: field.TypeInt64, Default: 0},
	}
	attemptsTable = &schema.Table{
		Name:       "attempts",
		Columns:    attemptsColumns,
		PrimaryKey: []*schema.Column{attemptsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "attempts_user_id_status", Columns: []*schema.Column{attemptsColumns[1], attemptsColumns[4]}},
			{Name: "attempts_status_last_activity_at", Columns: []*schema.Column{attemptsColumns[4], attemptsColumns[17]}},
		},
	}

	answersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "attempt_id", Type: field.TypeString, Size: 64},
		{Name: "user_id", Type: field.TypeString, Size: 64},
		{Name: "question_id", Type: field.TypeString, Size: 64},
		{Name: "answer", Type: field.TypeString, Size: 2048},
		{Name: "correct", Type: field.TypeBool},
		{Name: "elapsed_ms", Type: field.TypeInt64, Default: 0},
		{Name: "created_at", Type: field.TypeInt64},
	}
	answersTable = &schema.Table{
		Name:       "attempt_answers",
		Columns:    answersColumns,
		PrimaryKey: []*schema.Column{answersColumns[0]},
		Indexes: []*schema.Index{
			{Name: "attempt_answers_attempt_id", Columns: []*schema.Column{answersColumns[2]}},
			{Name: "attempt_answers_user_id", Columns: []*schema.Column{answersColumns[3]}},
		},
	}

	sessionEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "attempt_id", Type: field.TypeString, Size: 64},
		{Name: "user_id", Type: field.TypeString, Size: 64},
		{Name: "action", Type: field.TypeString, Size: 32},
		{Name: "questions_served", Type: field.TypeInt, Default: 0},
		{Name: "correct_answers", Type: field.TypeInt, Default: 0},
		{Name: "duration_secs", Type: field.TypeInt, Default: 0},
		{Name: "detail", Type: field.TypeString, Size: 512, Default: ""},
		{Name: "created_at", Type: field.TypeInt64},
	}
	sessionEventsTable = &schema.Table{
		Name:       "session_events",
		Columns:    sessionEventsColumns,
		PrimaryKey: []*schema.Column{sessionEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "session_events_attempt_id", Columns: []*schema.Column{sessionEventsColumns[2]}},
			{Name: "session_events_action", Columns: []*schema.Column{sessionEventsColumns[4]}},
		},
	}

	reportsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 64},
		{Name: "user_id", Type: field.TypeString, Size: 64},
		{Name: "question_id", Type: field.TypeString, Size: 64},
		{Name: "reason", Type: field.TypeString, Size: 64},
		{Name: "description", Type: field.TypeString, Size: 2048, Default: ""},
		{Name: "created_at", Type: field.TypeInt64},
	}
	reportsTable = &schema.Table{
		Name:       "question_reports",
		Columns:    reportsColumns,
		PrimaryKey: []*schema.Column{reportsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "question_reports_question_id", Columns: []*schema.Column{reportsColumns[2]}},
		},
	}

	llmEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "provider", Type: field.TypeString, Size: 64},
		{Name: "model", Type: field.TypeString, Size: 128},
		{Name: "purpose", Type: field.TypeString, Size: 64},
		{Name: "input_tokens", Type: field.TypeInt, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt, Default: 0},
		{Name: "latency_ms", Type: field.TypeInt64, Default: 0},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Size: 1024, Default: ""},
		{Name: "created_at", Type: field.TypeInt64},
	}
	llmEventsTable = &schema.Table{
		Name:       "llm_events",
		Columns:    llmEventsColumns,
		PrimaryKey: []*schema.Column{llmEventsColumns[0]},
	}

	tables = []*schema.Table{
		globalSequenceTable,
		usersTable,
		heartTransactions,
		currencyTransactions,
		unitsTable,
		questionsTable,
		attemptsTable,
		answersTable,
		sessionEventsTable,
		reportsTable,
		llmEventsTable,
	}
)

func ledgerColumns() []*schema.Column {
	return []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "user_id", Type: field.TypeString, Size: 64},
		{Name: "type", Type: field.TypeString, Size: 32},
		{Name: "amount", Type: field.TypeInt},
		{Name: "reason", Type: field.TypeString, Size: 255},
		{Name: "attempt_id", Type: field.TypeString, Size: 64, Nullable: true},
		{Name: "created_at", Type: field.TypeInt64},
	}
}

func ledgerTable(name string, cols []*schema.Column) *schema.Table {
	return &schema.Table{
		Name:       name,
		Columns:    cols,
		PrimaryKey: []*schema.Column{cols[0]},
		Indexes: []*schema.Index{
			{Name: name + "_user_id", Columns: []*schema.Column{cols[2]}},
		},
	}
}

// migrate creates or updates every table.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}
