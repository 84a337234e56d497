package content

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOwner means the attempt belongs to another user.
	ErrNotOwner = errors.New("attempt belongs to another user")

	// ErrAttemptClosed means the attempt is no longer in progress.
	ErrAttemptClosed = errors.New("attempt is not in progress")

	// ErrQuestionNotInAttempt means the question was not served by the attempt.
	ErrQuestionNotInAttempt = errors.New("question is not part of the attempt")

	// ErrWrongKind means a completion call does not match the attempt kind.
	ErrWrongKind = errors.New("wrong attempt kind")

	// ErrInvalidSource means the source reference lacks the id its mode needs.
	ErrInvalidSource = errors.New("invalid attempt source")

	// ErrInvalidReason means a problem report used an unknown reason.
	ErrInvalidReason = errors.New("invalid report reason")
)

// InvalidContentError is returned when a question payload does not match
// the schema of its type.
type InvalidContentError struct {
	Type string
	Err  error
}

func (e *InvalidContentError) Error() string {
	return fmt.Sprintf("invalid %s content: %v", e.Type, e.Err)
}

func (e *InvalidContentError) Unwrap() error { return e.Err }
