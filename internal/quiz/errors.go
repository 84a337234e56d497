package quiz

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition means the action is not allowed in the current phase.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnknownQuestion means the submission is not for the question under the cursor.
	ErrUnknownQuestion = errors.New("question is not the current question")

	// ErrNoQuestions means the strategy returned an empty queue.
	ErrNoQuestions = errors.New("attempt has no questions")

	// ErrNotAnswered means Advance was called before the current question was answered.
	ErrNotAnswered = errors.New("current question not answered")

	// ErrAlreadyAnswered means the current presentation already has an answer.
	ErrAlreadyAnswered = errors.New("current question already answered")
)

// BackendError wraps a failed call to the content backend or the ledger.
// The session state is unchanged and the same action may be retried.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Retryable reports that the failed action may be repeated.
func (e *BackendError) Retryable() bool { return true }

func invalidTransition(action string, p Phase) error {
	return fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, action, p)
}
