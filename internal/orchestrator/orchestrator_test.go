package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/gems"
	"github.com/abhisek/zapquiz/internal/leaderboard"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	o      *Orchestrator
	store  *store.Store
	ledger *economy.Ledger
	clock  *clock
}

var answers = map[string]string{
	"q1": "cat",
	"q2": "true",
	"q3": "apple",
	"q4": "I am here",
	"q5": `{"dog":"perro","cat":"gato"}`,
}

func newHarness(t *testing.T, cfg Config, opts ...content.Option) *harness {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.Config{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "orchestrator.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	ledger := economy.NewLedger(s, economy.DefaultConfig(), log, economy.WithClock(clk.Now))
	opts = append([]content.Option{content.WithClock(clk.Now)}, opts...)
	svc := content.NewService(s, ledger, content.NewGrader(nil, log), content.DefaultConfig(), log, opts...)

	require.NoError(t, s.UpsertUnit(ctx, store.Unit{ID: "u-1", CurriculumID: "c-1", Order: 1}))
	require.NoError(t, s.UpsertUnit(ctx, store.Unit{ID: "u-2", CurriculumID: "c-1", Order: 2}))
	for _, q := range []store.QuestionRow{
		{ID: "q1", UnitID: "u-1", Type: "multiple_choice", Content: []byte(`{"prompt":"Pick the noun","options":["run","cat"],"answer":"cat"}`), Order: 1},
		{ID: "q2", UnitID: "u-1", Type: "true_false", Content: []byte(`{"statement":"Cats purr","answer":true}`), Order: 2},
		{ID: "q3", UnitID: "u-1", Type: "fill_in_blank", Content: []byte(`{"prompt":"The ___ is red","answers":["apple"]}`), Order: 3},
		{ID: "q4", UnitID: "u-1", Type: "order_words", Content: []byte(`{"words":["am","I","here"],"answer":["I","am","here"]}`), Order: 4},
		{ID: "q5", UnitID: "u-2", Type: "matching", Content: []byte(`{"pairs":[{"left":"dog","right":"perro"},{"left":"cat","right":"gato"}]}`), Order: 1},
	} {
		_, err := s.UpsertQuestion(ctx, q)
		require.NoError(t, err)
	}

	o := New(Deps{
		Content: svc,
		Ledger:  ledger,
		Events:  s,
		Gems:    gems.NewService(s, log),
		Board:   leaderboard.NewStoreBoard(s),
		Log:     log,
	}, cfg, WithClock(clk.Now))
	return &harness{o: o, store: s, ledger: ledger, clock: clk}
}

// play answers the current question and advances.
func (h *harness) play(t *testing.T, sess *Session, correct bool) SubmitResult {
	t.Helper()
	ctx := context.Background()
	v := sess.View()
	require.NotNil(t, v.Question, "no question in phase %s", v.Phase)
	answer := answers[v.Question.ID]
	if !correct {
		answer = "wrong"
	}
	res, err := sess.Submit(ctx, v.Question.ID, answer)
	require.NoError(t, err)
	require.Equal(t, correct, res.Correct)
	if res.Status == quiz.StatusBlocked {
		return res
	}
	_, err = sess.Advance(ctx)
	require.NoError(t, err)
	return res
}

func (h *harness) actions(t *testing.T, attemptID string) []string {
	t.Helper()
	events, err := h.store.SessionEvents(context.Background(), attemptID)
	require.NoError(t, err)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}

func (h *harness) setHearts(t *testing.T, userID string, hearts int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.ledger.EnsureUser(ctx, userID))
	for i := 5; i > hearts; i-- {
		ok, err := h.store.DecrementHeart(ctx, userID)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestUnitSessionWithMistakeReview(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	sess, view, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, quiz.PhaseTesting, view.Phase)
	assert.Equal(t, 4, view.QueueLength)
	assert.Equal(t, 1, h.o.OpenSessions())

	res := h.play(t, sess, false)
	assert.True(t, res.Requeued)
	assert.Equal(t, 4, res.Hearts)
	assert.Equal(t, "cat", res.CorrectAnswer)
	h.play(t, sess, true)
	h.play(t, sess, true)
	h.play(t, sess, true)

	view = sess.View()
	assert.Equal(t, quiz.PhaseMistakeReview, view.Phase)
	assert.True(t, view.ReviewIntroPending)
	_, err = sess.AcknowledgeReviewIntro()
	require.NoError(t, err)

	h.play(t, sess, true)
	assert.Equal(t, quiz.PhaseCompleting, sess.View().Phase)

	done, err := sess.Complete(ctx)
	require.NoError(t, err)
	require.NotNil(t, done.Result)
	assert.InDelta(t, 75.0, done.Result.Score, 0.001)
	assert.True(t, done.Result.Passed)
	require.Len(t, done.Gems, 1)
	assert.Equal(t, gems.GemSession, done.Gems[0].Type)
	assert.Equal(t, gems.RarityEpic, done.Gems[0].Rarity)

	dup, err := sess.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusDuplicate, dup.Status)
	assert.Empty(t, dup.Gems)

	view, err = sess.Dismiss()
	require.NoError(t, err)
	assert.Equal(t, quiz.PhaseClosed, view.Phase)
	assert.Zero(t, h.o.OpenSessions())

	assert.Equal(t, []string{ActionStart, ActionEnd, gems.ActionGem}, h.actions(t, sess.AttemptID()))

	bal, err := h.o.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, bal.Hearts)
	assert.Equal(t, 10, bal.Zaps)
}

// gatedBoard holds Record until gate is closed.
type gatedBoard struct {
	entered chan struct{}
	gate    chan struct{}

	mu sync.Mutex
	xp map[string]int
}

func (b *gatedBoard) Record(_ context.Context, userID string, xp int) error {
	b.entered <- struct{}{}
	<-b.gate
	b.mu.Lock()
	defer b.mu.Unlock()
	b.xp[userID] += xp
	return nil
}

func TestExitDuringCompletionStillRanksXP(t *testing.T) {
	board := &gatedBoard{entered: make(chan struct{}), gate: make(chan struct{}), xp: map[string]int{}}
	h := newHarness(t, DefaultConfig(), content.WithLeaderboard(board))
	ctx := context.Background()

	sess, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		h.play(t, sess, true)
	}
	_, err = sess.Continue()
	require.NoError(t, err)

	done := make(chan CompleteResult)
	go func() {
		out, _ := sess.Complete(ctx)
		done <- out
	}()
	<-board.entered
	assert.True(t, sess.RequestExit())
	sess.Exit(ctx)
	close(board.gate)
	out := <-done

	assert.Equal(t, quiz.StatusDiscarded, out.Status)
	assert.Empty(t, out.Gems)

	bal, err := h.o.Balance(ctx, "u1")
	require.NoError(t, err)
	require.Positive(t, bal.XP)
	board.mu.Lock()
	defer board.mu.Unlock()
	assert.Equal(t, int(bal.XP), board.xp["u1"])
}

func TestFinalSessionStreakAndCertificate(t *testing.T) {
	h := newHarness(t, Config{Interstitial: true})
	ctx := context.Background()

	sess, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeFinal, CurriculumID: "c-1"})
	require.NoError(t, err)

	var streakGem *gems.GemAward
	for i := 0; i < 5; i++ {
		res := h.play(t, sess, true)
		if res.StreakReached {
			streakGem = res.Gem
		}
	}
	require.NotNil(t, streakGem, "five correct answers raise a streak")
	assert.Equal(t, gems.GemStreak, streakGem.Type)
	assert.True(t, sess.View().StreakPending)
	assert.False(t, sess.AcknowledgeStreak().StreakPending)

	assert.Equal(t, quiz.PhaseSuccessCelebration, sess.View().Phase)
	_, err = sess.Continue()
	require.NoError(t, err)

	done, err := sess.Complete(ctx)
	require.NoError(t, err)
	assert.True(t, done.Result.CertificateEligible)
	types := make([]gems.GemType, len(done.Gems))
	for i, g := range done.Gems {
		types[i] = g.Type
	}
	assert.Equal(t, []gems.GemType{gems.GemSession, gems.GemPerfect, gems.GemCertificate}, types)

	view, err := sess.Dismiss()
	require.NoError(t, err)
	assert.Equal(t, quiz.PhasePostResult, view.Phase)
	assert.Equal(t, 1, h.o.OpenSessions())
	view, err = sess.Dismiss()
	require.NoError(t, err)
	assert.Equal(t, quiz.PhaseClosed, view.Phase)
	assert.Zero(t, h.o.OpenSessions())

	top, err := h.o.Leaderboard(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "u1", top[0].UserID)
	assert.Equal(t, int64(done.Result.ExperienceGained), top[0].XP)
}

func TestPurchaseHeartResumesBlockedSession(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	h.setHearts(t, "u1", 1)
	require.NoError(t, h.store.CreditZaps(ctx, "u1", 60))

	sess, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	res := h.play(t, sess, false)
	assert.Equal(t, quiz.StatusBlocked, res.Status)
	assert.Equal(t, quiz.PhaseBlocked, sess.View().Phase)

	bought, err := sess.PurchaseHeart(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bought.Balance.Hearts)
	assert.Equal(t, 10, bought.Balance.Zaps)
	assert.Equal(t, quiz.PhaseTesting, bought.View.Phase)
	require.NotNil(t, bought.View.Question)
	assert.Equal(t, "q1", bought.View.Question.ID)
	assert.Nil(t, bought.View.Answer, "the missed question is asked again")

	_, err = sess.PurchaseHeart(ctx)
	assert.ErrorIs(t, err, economy.ErrInsufficientFunds)
}

func TestHeartModalClosedWithoutHeartsExits(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	h.setHearts(t, "u1", 1)

	sess, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	h.play(t, sess, false)
	require.Equal(t, quiz.PhaseBlocked, sess.View().Phase)

	view, err := sess.HeartModalClosed(ctx)
	require.NoError(t, err)
	assert.Equal(t, quiz.PhaseClosed, view.Phase)
	_, err = h.o.Session(sess.AttemptID(), "u1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// A heart regenerates; the attempt picks up where it stopped.
	h.clock.Advance(4 * time.Hour)
	resumed, view, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1", ResumeLatest: true})
	require.NoError(t, err)
	assert.Equal(t, sess.AttemptID(), resumed.AttemptID())
	assert.Equal(t, quiz.PhaseTesting, view.Phase)
	assert.Equal(t, 1, view.Hearts)
	assert.Equal(t, 5, view.QueueLength)
	assert.Equal(t, 1, view.FailedCount)

	assert.Equal(t, []string{ActionStart, ActionExit, ActionResume}, h.actions(t, sess.AttemptID()))
}

func TestSessionOwnership(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	sess, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	got, err := h.o.Session(sess.AttemptID(), "u1")
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = h.o.Session(sess.AttemptID(), "u2")
	assert.ErrorIs(t, err, content.ErrNotOwner)

	_, _, err = h.o.Start(ctx, "u2", StartRequest{ResumeAttemptID: sess.AttemptID()})
	assert.ErrorIs(t, err, content.ErrNotOwner)
}

func TestResumeReplacesOpenSession(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	first, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)
	h.play(t, first, true)

	second, view, err := h.o.Start(ctx, "u1", StartRequest{ResumeAttemptID: first.AttemptID()})
	require.NoError(t, err)
	assert.Equal(t, quiz.ModeUnit, second.Mode())
	assert.Equal(t, 2, view.Position)
	assert.Equal(t, quiz.PhaseClosed, first.View().Phase)
	assert.Equal(t, 1, h.o.OpenSessions())

	// Exiting the replaced session leaves the new one registered.
	first.Exit(ctx)
	got, err := h.o.Session(first.AttemptID(), "u1")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestStartErrors(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	_, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, _, err = h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeReview})
	assert.ErrorIs(t, err, quiz.ErrNoQuestions)
	assert.Zero(t, h.o.OpenSessions())
}

func TestCloseIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	sess, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	assert.Zero(t, h.o.CloseIdle(ctx))

	h.clock.Advance(25 * time.Minute)
	assert.Equal(t, 1, h.o.CloseIdle(ctx))
	assert.Zero(t, h.o.OpenSessions())
	assert.Equal(t, quiz.PhaseClosed, sess.View().Phase)
	assert.Contains(t, h.actions(t, sess.AttemptID()), ActionTimeout)
}

func TestReportAndAdReward(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	sess, _, err := h.o.Start(ctx, "u1", StartRequest{Mode: quiz.ModeUnit, UnitID: "u-1"})
	require.NoError(t, err)

	require.NoError(t, sess.ReportProblem(ctx, "q1", "unclear", "two nouns?"))
	reports, err := h.store.ReportsForQuestion(ctx, "q1")
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	bal, err := sess.ClaimAdReward(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, bal.Zaps)
	assert.True(t, sess.RequestExit())
}
