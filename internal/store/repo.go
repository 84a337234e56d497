package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// QueryOpts configures list queries with filtering and pagination.
type QueryOpts struct {
	Limit int       // max results (0 = unlimited)
	After int64     // sequence > After
	From  time.Time // timestamp >= From
}

// User is a learner's balance row. Hearts and Zaps are cached projections
// of the heart and currency ledgers.
type User struct {
	ID             string
	Hearts         int
	Zaps           int
	XP             int64
	LastHeartReset time.Time
	CreatedAt      time.Time
}

// LedgerKind selects the heart or currency ledger.
type LedgerKind string

const (
	LedgerHearts   LedgerKind = "heart_transactions"
	LedgerCurrency LedgerKind = "currency_transactions"
)

// LedgerEntry is one append-only balance change.
type LedgerEntry struct {
	Sequence  int64
	UserID    string
	Type      string
	Amount    int
	Reason    string
	AttemptID string
	CreatedAt time.Time
}

// Unit groups questions inside a curriculum.
type Unit struct {
	ID           string
	CurriculumID string
	Title        string
	Order        int
}

// QuestionRow is the persisted form of a question.
type QuestionRow struct {
	ID      string
	UnitID  string
	Type    string
	Content []byte
	Order   int
}

// Attempt statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusAbandoned  = "abandoned"
)

// AttemptRow is the persisted form of one quiz playthrough.
type AttemptRow struct {
	ID          string
	UserID      string
	Kind        string
	SourceID    string
	Status      string
	QuestionIDs []string
	Checkpoint  *Checkpoint
	StartedAt   time.Time
	CompletedAt time.Time
	Result      AttemptResult

	// LastActivityAt is the newest of start, answer and checkpoint.
	LastActivityAt time.Time
}

// AttemptResult holds the columns written on completion.
type AttemptResult struct {
	Score               float64
	CorrectAnswers      int
	TotalQuestions      int
	Passed              bool
	ExperienceGained    int
	ElapsedSecs         int
	ZapsAwarded         int
	CertificateEligible bool
}

// Checkpoint is the resumable position of an in-progress attempt.
type Checkpoint struct {
	Queue          []string                    `json:"queue"`
	Cursor         int                         `json:"cursor"`
	FirstPassCount int                         `json:"first_pass_count"`
	Failed         []string                    `json:"failed"`
	Answers        map[string]CheckpointAnswer `json:"answers,omitempty"`
	Blocked        bool                        `json:"blocked,omitempty"`
}

// CheckpointAnswer is a graded answer still on screen when the checkpoint
// was taken.
type CheckpointAnswer struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// AnswerRow is one graded submission.
type AnswerRow struct {
	Sequence   int64
	AttemptID  string
	UserID     string
	QuestionID string
	Answer     string
	Correct    bool
	ElapsedMs  int64
	CreatedAt  time.Time
}

// SessionEventData captures a session lifecycle event (start, streak, exit, end).
type SessionEventData struct {
	AttemptID       string
	UserID          string
	Action          string
	QuestionsServed int
	CorrectAnswers  int
	DurationSecs    int
	Detail          string
}

// SessionEventRecord is a persisted session event.
type SessionEventRecord struct {
	SessionEventData
	Sequence  int64
	CreatedAt time.Time
}

// QuestionReport is a learner's complaint about a question.
type QuestionReport struct {
	ID          string
	UserID      string
	QuestionID  string
	Reason      string
	Description string
	CreatedAt   time.Time
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
}

// EventRepo appends observability events. Implemented by *Conn; consumers
// depend on this narrow interface so tests can stub it.
type EventRepo interface {
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
	AppendSessionEvent(ctx context.Context, data SessionEventData) error
}
