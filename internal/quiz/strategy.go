package quiz

import (
	"context"
	"time"
)

// Strategy supplies the mode-specific halves of a session: where the
// questions come from and how the finished attempt is persisted.
type Strategy interface {
	Mode() Mode
	FetchQuestions(ctx context.Context) (*Attempt, error)
	CompleteAttempt(ctx context.Context, attemptID string) (*Result, error)
}

// Backend grades answers and stores progress.
type Backend interface {
	SubmitAnswer(ctx context.Context, attemptID, questionID, answer string, elapsed time.Duration) (Grade, error)
	Checkpoint(ctx context.Context, attemptID string, cp Checkpoint) error
}

// HeartLedger removes a heart after an incorrect answer.
type HeartLedger interface {
	DecrementHeartOnFailure(ctx context.Context, userID, attemptID string) (int, error)
}
