package content

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/store"
)

type testEnv struct {
	svc    *Service
	store  *store.Store
	ledger *economy.Ledger
	now    time.Time
}

func (e *testEnv) clock() time.Time { return e.now }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.Config{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "content.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	env := &testEnv{store: s, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	log := quietLogger()
	env.ledger = economy.NewLedger(s, economy.DefaultConfig(), log, economy.WithClock(env.clock))
	env.svc = NewService(s, env.ledger, NewGrader(nil, log), DefaultConfig(), log, WithClock(env.clock))

	require.NoError(t, s.UpsertUnit(ctx, store.Unit{ID: "u-1", CurriculumID: "c-1", Title: "Basics", Order: 1}))
	require.NoError(t, s.UpsertUnit(ctx, store.Unit{ID: "u-2", CurriculumID: "c-1", Title: "Animals", Order: 2}))
	for _, q := range []store.QuestionRow{
		{ID: "q1", UnitID: "u-1", Type: string(quiz.MultipleChoice), Content: []byte(mcContent), Order: 1},
		{ID: "q2", UnitID: "u-1", Type: string(quiz.TrueFalse), Content: []byte(tfContent), Order: 2},
		{ID: "q3", UnitID: "u-1", Type: string(quiz.FillInBlank), Content: []byte(fibContent), Order: 3},
		{ID: "q4", UnitID: "u-1", Type: string(quiz.OrderWords), Content: []byte(orderContent), Order: 4},
		{ID: "q5", UnitID: "u-2", Type: string(quiz.Matching), Content: []byte(matchingContent), Order: 1},
	} {
		_, err := s.UpsertQuestion(ctx, q)
		require.NoError(t, err)
	}
	require.NoError(t, env.ledger.EnsureUser(ctx, "u1"))
	require.NoError(t, env.ledger.EnsureUser(ctx, "u2"))
	return env
}

var rightAnswers = map[string]string{
	"q1": "cat",
	"q2": "true",
	"q3": "apple",
	"q4": "I am here",
	"q5": `{"dog":"perro","cat":"gato"}`,
}

func (e *testEnv) submit(t *testing.T, attemptID, questionID string, correct bool) quiz.Grade {
	t.Helper()
	answer := rightAnswers[questionID]
	if !correct {
		answer = "definitely wrong"
	}
	g, err := e.svc.SubmitAnswer(context.Background(), attemptID, questionID, answer, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, correct, g.Correct)
	return g
}

func questionIDs(qs []quiz.Question) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

func TestStartAttemptUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2", "q3", "q4"}, questionIDs(att.Questions))
	assert.Equal(t, 5, att.Hearts)
	assert.False(t, att.Resumed)

	row, err := env.store.GetAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, row.Status)
	assert.Equal(t, "unit", row.Kind)
	assert.Equal(t, "u-1", row.SourceID)

	id, err := env.svc.ResumableAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, att.ID, id)
}

func TestStartAttemptErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit})
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeFinal, CurriculumID: "empty"})
	assert.ErrorIs(t, err, quiz.ErrNoQuestions)

	_, err = env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeReview})
	assert.ErrorIs(t, err, quiz.ErrNoQuestions, "no history means nothing to review")
}

func TestSubmitAnswer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	g := env.submit(t, att.ID, "q1", false)
	assert.Equal(t, "cat", g.CorrectAnswer)
	assert.Equal(t, 4, g.Hearts)
	assert.True(t, g.HeartCharged)

	g = env.submit(t, att.ID, "q2", true)
	assert.Empty(t, g.CorrectAnswer)
	assert.False(t, g.HeartCharged)
	assert.Equal(t, 4, g.Hearts)

	_, err = env.svc.SubmitAnswer(ctx, att.ID, "q5", "x", time.Second)
	assert.ErrorIs(t, err, ErrQuestionNotInAttempt)

	answers, err := env.store.AnswersForAttempt(ctx, att.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "q1", answers[0].QuestionID)
	assert.False(t, answers[0].Correct)
	assert.Equal(t, int64(5000), answers[0].ElapsedMs)
}

func TestSubmitAnswerFailureLeavesNothingBehind(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	boom := errors.New("connection reset")
	env.svc.afterAnswer = func() error { return boom }
	_, err = env.svc.SubmitAnswer(ctx, att.ID, "q1", "dog", time.Second)
	require.ErrorIs(t, err, boom)

	answers, err := env.store.AnswersForAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.Empty(t, answers)
	bal, err := env.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, bal.Hearts)

	// The repeated submission is the only one on record.
	env.svc.afterAnswer = nil
	g := env.submit(t, att.ID, "q1", false)
	assert.Equal(t, 4, g.Hearts)
	for _, id := range []string{"q2", "q3", "q4", "q1"} {
		env.submit(t, att.ID, id, true)
	}

	answers, err = env.store.AnswersForAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.Len(t, answers, 5)

	res, err := env.svc.CompleteAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, res.Score, 0.001)
	assert.Equal(t, 42, res.ExperienceGained, "one wrong row, not two")
}

func TestSubmitAnswerAtZeroHearts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.EnsureUser(ctx, "broke", 0, 0, env.now))
	att, err := env.svc.StartAttempt(ctx, "broke", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	g, err := env.svc.SubmitAnswer(ctx, att.ID, "q1", "dog", time.Second)
	require.NoError(t, err)
	assert.False(t, g.Correct)
	assert.True(t, g.HeartCharged)
	assert.Zero(t, g.Hearts)

	answers, err := env.store.AnswersForAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.Len(t, answers, 1)
}

func TestCompleteAttemptScoresFirstPass(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	env.submit(t, att.ID, "q1", false)
	env.submit(t, att.ID, "q2", true)
	env.submit(t, att.ID, "q3", true)
	env.submit(t, att.ID, "q4", true)
	env.submit(t, att.ID, "q1", true) // retry

	res, err := env.svc.CompleteAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.InDelta(t, 75.0, res.Score, 0.001)
	assert.Equal(t, 3, res.CorrectAnswers)
	assert.Equal(t, 4, res.TotalQuestions)
	assert.True(t, res.Passed)
	// accuracy 0.8, full speed bonus, retry factor 0.8.
	assert.Equal(t, 42, res.ExperienceGained)
	assert.Equal(t, 25, res.TimeElapsedSeconds)
	assert.Equal(t, 10, res.ZapsAwarded)
	assert.False(t, res.CertificateEligible)

	bal, err := env.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, bal.Zaps)
	assert.Equal(t, int64(42), bal.XP)

	// Completing again returns the stored result and credits nothing.
	again, err := env.svc.CompleteAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, res, again)
	bal, err = env.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, bal.Zaps)
	assert.Equal(t, int64(42), bal.XP)

	err = env.svc.Checkpoint(ctx, att.ID, quiz.Checkpoint{Queue: []string{"q1"}})
	assert.ErrorIs(t, err, ErrAttemptClosed)
}

type recordingBoard struct {
	xp    map[string]int
	calls int
}

func (b *recordingBoard) Record(_ context.Context, userID string, xp int) error {
	b.calls++
	b.xp[userID] += xp
	return nil
}

func TestCompleteAttemptRecordsLeaderboardOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	board := &recordingBoard{xp: map[string]int{}}
	WithLeaderboard(board)(env.svc)

	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	for _, id := range []string{"q1", "q2", "q3", "q4"} {
		env.submit(t, att.ID, id, true)
	}

	res, err := env.svc.CompleteAttempt(ctx, att.ID)
	require.NoError(t, err)
	_, err = env.svc.CompleteAttempt(ctx, att.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, board.calls)
	assert.Equal(t, res.ExperienceGained, board.xp["u1"])
}

func TestCompleteAttemptFailedGetsNoReward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	env.submit(t, att.ID, "q1", false)
	env.submit(t, att.ID, "q2", false)
	env.submit(t, att.ID, "q3", true)
	env.submit(t, att.ID, "q4", true)
	env.submit(t, att.ID, "q1", true)
	env.submit(t, att.ID, "q2", true)

	res, err := env.svc.CompleteAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, res.Score, 0.001)
	assert.False(t, res.Passed)
	assert.Zero(t, res.ZapsAwarded)

	history, err := env.ledger.History(ctx, "u1", 10)
	require.NoError(t, err)
	for _, h := range history {
		assert.NotEqual(t, economy.TxCompletionReward, h.Type)
	}
}

func TestCompleteFinalAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeFinal, CurriculumID: "c-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"q1", "q2", "q3", "q4", "q5"}, questionIDs(att.Questions))

	for _, q := range att.Questions {
		env.submit(t, att.ID, q.ID, true)
	}

	_, err = env.svc.CompleteAttempt(ctx, att.ID)
	assert.ErrorIs(t, err, ErrWrongKind)

	res, err := env.svc.CompleteFinalAttempt(ctx, att.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.Score, 0.001)
	assert.True(t, res.CertificateEligible)
	assert.Equal(t, 25, res.ZapsAwarded)
	assert.Equal(t, 100, res.ExperienceGained)
}

func TestResumeAttemptFromCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	// Never checkpointed: restart the first pass.
	fresh, err := env.svc.ResumeAttempt(ctx, att.ID, "u1")
	require.NoError(t, err)
	assert.False(t, fresh.Resumed)
	assert.Equal(t, []string{"q1", "q2", "q3", "q4"}, questionIDs(fresh.Questions))

	require.NoError(t, env.svc.Checkpoint(ctx, att.ID, quiz.Checkpoint{
		Queue:          []string{"q1", "q2", "q3", "q4", "q1"},
		Cursor:         2,
		FirstPassCount: 4,
		Failed:         []string{"q1"},
		Answers:        map[string]quiz.Answer{"q3": {Text: "apple", Correct: true}},
	}))

	resumed, err := env.svc.ResumeAttempt(ctx, att.ID, "u1")
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)
	assert.Equal(t, []string{"q1", "q2", "q3", "q4", "q1"}, questionIDs(resumed.Questions))
	assert.Equal(t, 2, resumed.Cursor)
	assert.Equal(t, 4, resumed.FirstPassCount)
	assert.Equal(t, []string{"q1"}, resumed.Failed)
	assert.Equal(t, quiz.Answer{Text: "apple", Correct: true}, resumed.Answers["q3"])

	_, err = env.svc.ResumeAttempt(ctx, att.ID, "u2")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestReviewSelectsLatestWrongAnswers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	env.submit(t, first.ID, "q1", false)
	env.submit(t, first.ID, "q2", false)
	env.submit(t, first.ID, "q3", true)

	second, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	env.submit(t, second.ID, "q2", true)

	review, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeReview})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, questionIDs(review.Questions))

	env.submit(t, review.ID, "q1", true)
	res, err := env.svc.CompleteAttempt(ctx, review.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.Score, 0.001)
	assert.Zero(t, res.ZapsAwarded, "reviews earn XP only")
	assert.Positive(t, res.ExperienceGained)

	_, err = env.svc.StartAttempt(ctx, "u2", SourceRef{Mode: quiz.ModeReview})
	assert.ErrorIs(t, err, quiz.ErrNoQuestions)
}

func TestReportQuestionProblem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.ReportQuestionProblem(ctx, "u1", "q1", "boring", "")
	assert.ErrorIs(t, err, ErrInvalidReason)

	err = env.svc.ReportQuestionProblem(ctx, "u1", "missing", "typo", "")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, env.svc.ReportQuestionProblem(ctx, "u1", "q1", "typo", "options misspelled"))
	reports, err := env.store.ReportsForQuestion(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "typo", reports[0].Reason)
	assert.Equal(t, "options misspelled", reports[0].Description)
	assert.NotEmpty(t, reports[0].ID)
}

func TestAbandonStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	n, err := env.svc.AbandonStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.now = env.now.Add(73 * time.Hour)
	n, err = env.svc.AbandonStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.svc.SubmitAnswer(ctx, att.ID, "q1", "cat", time.Second)
	assert.ErrorIs(t, err, ErrAttemptClosed)
	_, err = env.svc.CompleteAttempt(ctx, att.ID)
	assert.ErrorIs(t, err, ErrAttemptClosed)
}

func TestAbandonStaleKeepsActiveAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	env.now = env.now.Add(72*time.Hour - time.Minute)
	env.submit(t, att.ID, "q1", true)
	require.NoError(t, env.svc.Checkpoint(ctx, att.ID, quiz.Checkpoint{
		Queue:          []string{"q1", "q2", "q3", "q4"},
		Cursor:         1,
		FirstPassCount: 4,
		Answers:        map[string]quiz.Answer{"q1": {Text: "cat", Correct: true}},
	}))

	env.now = env.now.Add(2 * time.Minute)
	n, err := env.svc.AbandonStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	env.submit(t, att.ID, "q2", true)

	env.now = env.now.Add(env.svc.Config().StaleAfter + time.Minute)
	n, err = env.svc.AbandonStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQuestionContentRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	att, err := env.svc.StartAttempt(context.Background(), "u1", SourceRef{Mode: quiz.ModeUnit, UnitID: "u-2"})
	require.NoError(t, err)
	require.Len(t, att.Questions, 1)
	assert.Equal(t, quiz.Matching, att.Questions[0].Type)
	assert.JSONEq(t, matchingContent, string(att.Questions[0].Content))
	assert.True(t, json.Valid(att.Questions[0].Content))
}

func TestAttemptSource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	att, err := env.svc.StartAttempt(ctx, "u1", SourceRef{Mode: quiz.ModeFinal, CurriculumID: "c-1"})
	require.NoError(t, err)

	owner, src, err := env.svc.AttemptSource(ctx, att.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)
	assert.Equal(t, SourceRef{Mode: quiz.ModeFinal, CurriculumID: "c-1"}, src)

	_, _, err = env.svc.AttemptSource(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
