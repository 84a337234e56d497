package content

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/quiz"
)

// Judge decides whether a free-text answer means the same as an expected
// answer. Used for fill-in-blank answers that fail exact matching.
type Judge interface {
	Equivalent(ctx context.Context, req JudgeRequest) (bool, error)
}

// JudgeRequest is the input to a Judge.
type JudgeRequest struct {
	Prompt   string
	Expected []string
	Given    string
}

// Verdict is the outcome of grading one answer.
type Verdict struct {
	Correct  bool
	Solution string

	// Judged is true when the Judge decided the verdict.
	Judged bool
}

// Grader checks answers against question payloads.
type Grader struct {
	judge Judge
	log   logrus.FieldLogger
}

// NewGrader creates a Grader. judge may be nil for exact grading only.
func NewGrader(judge Judge, log logrus.FieldLogger) *Grader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Grader{judge: judge, log: log}
}

// Grade checks answer against q. Blank answers are always incorrect.
func (g *Grader) Grade(ctx context.Context, q quiz.Question, answer string) (Verdict, error) {
	p, err := DecodePayload(q.Type, q.Content)
	if err != nil {
		return Verdict{}, err
	}

	v := Verdict{Correct: p.Check(answer), Solution: p.Solution()}
	if v.Correct || g.judge == nil || normalizeText(answer, false) == "" {
		return v, nil
	}

	fib, ok := p.(*FillInBlankPayload)
	if !ok {
		return v, nil
	}

	// Exact matching already said no; a judge failure keeps that verdict.
	equivalent, err := g.judge.Equivalent(ctx, JudgeRequest{
		Prompt:   fib.Prompt,
		Expected: fib.Answers,
		Given:    answer,
	})
	if err != nil {
		g.log.WithError(err).WithField("question_id", q.ID).Warn("answer judge failed")
		return v, nil
	}
	v.Correct = equivalent
	v.Judged = true
	return v, nil
}
