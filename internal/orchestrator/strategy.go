package orchestrator

import (
	"context"

	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/quiz"
)

// attemptSource fetches a fresh attempt or resumes a stored one. It is the
// question-fetching half shared by every mode.
type attemptSource struct {
	content  *content.Service
	userID   string
	src      content.SourceRef
	resumeID string
}

func (a attemptSource) FetchQuestions(ctx context.Context) (*quiz.Attempt, error) {
	if a.resumeID != "" {
		return a.content.ResumeAttempt(ctx, a.resumeID, a.userID)
	}
	return a.content.StartAttempt(ctx, a.userID, a.src)
}

// unitStrategy serves one unit's questions in authored order.
type unitStrategy struct{ attemptSource }

func (unitStrategy) Mode() quiz.Mode { return quiz.ModeUnit }

func (s unitStrategy) CompleteAttempt(ctx context.Context, attemptID string) (*quiz.Result, error) {
	return s.content.CompleteAttempt(ctx, attemptID)
}

// finalStrategy serves every question of a curriculum and persists through
// the final quiz completion, which can earn a certificate.
type finalStrategy struct{ attemptSource }

func (finalStrategy) Mode() quiz.Mode { return quiz.ModeFinal }

func (s finalStrategy) CompleteAttempt(ctx context.Context, attemptID string) (*quiz.Result, error) {
	return s.content.CompleteFinalAttempt(ctx, attemptID)
}

// reviewStrategy serves previously missed questions and completes like a
// unit quiz.
type reviewStrategy struct{ attemptSource }

func (reviewStrategy) Mode() quiz.Mode { return quiz.ModeReview }

func (s reviewStrategy) CompleteAttempt(ctx context.Context, attemptID string) (*quiz.Result, error) {
	return s.content.CompleteAttempt(ctx, attemptID)
}

func newStrategy(src attemptSource) (quiz.Strategy, error) {
	switch src.src.Mode {
	case quiz.ModeUnit:
		return unitStrategy{src}, nil
	case quiz.ModeFinal:
		return finalStrategy{src}, nil
	case quiz.ModeReview:
		return reviewStrategy{src}, nil
	}
	return nil, ErrUnknownMode
}
