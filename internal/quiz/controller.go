package quiz

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/economy"
)

// Defaults for Config.
const (
	DefaultStreakThreshold = 5
	DefaultPassThreshold   = 70.0
)

// scoreTolerance is how far the backend score may drift from the local
// first-pass score before the mismatch is logged.
const scoreTolerance = 0.01

// Config parameterizes a Controller.
type Config struct {
	UserID string

	// StreakThreshold is the consecutive-correct count that raises the
	// streak signal. Default: 5.
	StreakThreshold int

	// PassThreshold is the minimum score in percent to pass. Default: 70.
	PassThreshold float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the state machine for one quiz attempt. It is safe for
// concurrent use. The mutex guards state only and is released while the
// backend or the ledger is called, so Exit is never stuck behind a slow
// network call. A generation counter, bumped by Exit, makes responses that
// arrive afterwards stale.
type Controller struct {
	cfg      Config
	strategy Strategy
	backend  Backend
	ledger   HeartLedger
	log      logrus.FieldLogger
	now      func() time.Time

	mu  sync.Mutex
	gen uint64

	phase Phase
	// resumePhase is where Resume returns to from PhaseBlocked.
	resumePhase Phase
	starting    bool
	submitting  bool

	attemptID string
	queue     []Question
	firstPass int
	cursor    int
	answers   map[string]Answer
	failed    map[string]struct{}
	// failedOrder keeps failed ids in first-failure order for checkpoints.
	failedOrder []string

	startedAt   time.Time
	presentedAt time.Time
	hearts      int

	streak             int
	streakPending      bool
	reviewIntroPending bool

	correctCount   int
	incorrectCount int

	result *Result
}

// New creates a controller in PhaseIdle.
func New(cfg Config, strategy Strategy, backend Backend, ledger HeartLedger, opts ...Option) *Controller {
	if cfg.StreakThreshold <= 0 {
		cfg.StreakThreshold = DefaultStreakThreshold
	}
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = DefaultPassThreshold
	}
	c := &Controller{
		cfg:      cfg,
		strategy: strategy,
		backend:  backend,
		ledger:   ledger,
		log:      logrus.StandardLogger(),
		now:      time.Now,
		phase:    PhaseIdle,
		answers:  make(map[string]Answer),
		failed:   make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.WithFields(logrus.Fields{
		"component": "quiz",
		"user_id":   cfg.UserID,
		"mode":      strategy.Mode(),
	})
	return c
}

// Start fetches the attempt and enters PhaseTesting, or the phase implied
// by a resumed attempt. With no hearts left the session starts blocked.
func (c *Controller) Start(ctx context.Context) (View, error) {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		defer c.mu.Unlock()
		return c.viewLocked(), invalidTransition("start", c.phase)
	}
	if c.starting {
		defer c.mu.Unlock()
		return c.viewLocked(), invalidTransition("start", c.phase)
	}
	c.starting = true
	gen := c.gen
	c.mu.Unlock()

	att, err := c.strategy.FetchQuestions(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false
	if gen != c.gen {
		return c.viewLocked(), nil
	}
	if err != nil {
		return c.viewLocked(), &BackendError{Op: "fetch questions", Err: err}
	}
	if att == nil || len(att.Questions) == 0 {
		return c.viewLocked(), ErrNoQuestions
	}

	c.load(att)
	c.log.WithFields(logrus.Fields{
		"attempt_id": c.attemptID,
		"questions":  c.firstPass,
		"resumed":    att.Resumed,
		"phase":      c.phase,
	}).Info("session started")
	return c.viewLocked(), nil
}

// load installs a fetched attempt. Caller holds mu.
func (c *Controller) load(att *Attempt) {
	c.attemptID = att.ID
	c.queue = append([]Question(nil), att.Questions...)
	c.firstPass = len(c.queue)
	c.startedAt = att.StartedAt
	if c.startedAt.IsZero() {
		c.startedAt = c.now()
	}
	c.hearts = att.Hearts
	c.phase = PhaseTesting

	if att.Resumed {
		if att.FirstPassCount > 0 && att.FirstPassCount <= len(c.queue) {
			c.firstPass = att.FirstPassCount
		}
		c.cursor = max(0, min(att.Cursor, len(c.queue)))
		for _, id := range att.Failed {
			c.markFailed(id)
		}
		for id, a := range att.Answers {
			c.answers[id] = a
		}
		// A question that drained the hearts is presented again, as
		// Resume does for a live session.
		if att.Blocked && c.cursor < len(c.queue) {
			delete(c.answers, c.queue[c.cursor].ID)
		}
		switch {
		case c.cursor >= len(c.queue):
			c.phase = PhaseCompleting
		case c.cursor >= c.firstPass:
			c.phase = PhaseMistakeReview
		}
	}

	c.presentedAt = c.now()
	if c.phase.answering() && c.hearts <= 0 {
		c.block()
	}
}

// Submit grades the answer to the question under the cursor. An incorrect
// answer costs a heart and, during the first pass, requeues the question
// at the tail once.
func (c *Controller) Submit(ctx context.Context, questionID, answer string) (SubmitOutcome, error) {
	c.mu.Lock()
	if c.phase == PhaseBlocked {
		defer c.mu.Unlock()
		return SubmitOutcome{Status: StatusBlocked, Hearts: c.hearts, View: c.viewLocked()}, nil
	}
	if !c.phase.answering() || c.reviewIntroPending {
		defer c.mu.Unlock()
		return SubmitOutcome{View: c.viewLocked()}, invalidTransition("submit", c.phase)
	}
	if c.submitting {
		defer c.mu.Unlock()
		return SubmitOutcome{Status: StatusBusy, View: c.viewLocked()}, nil
	}
	q := c.queue[c.cursor]
	if q.ID != questionID {
		defer c.mu.Unlock()
		return SubmitOutcome{View: c.viewLocked()}, ErrUnknownQuestion
	}
	if _, done := c.answers[q.ID]; done {
		defer c.mu.Unlock()
		return SubmitOutcome{View: c.viewLocked()}, ErrAlreadyAnswered
	}
	c.submitting = true
	gen := c.gen
	attemptID := c.attemptID
	elapsed := c.now().Sub(c.presentedAt)
	c.mu.Unlock()

	grade, err := c.backend.SubmitAnswer(ctx, attemptID, q.ID, answer, elapsed)
	if err == nil && !grade.Correct && !grade.HeartCharged && !c.stale(gen) {
		var hearts int
		hearts, err = c.ledger.DecrementHeartOnFailure(ctx, c.cfg.UserID, attemptID)
		if errors.Is(err, economy.ErrInsufficientResource) {
			hearts, err = 0, nil
		}
		grade.Hearts = hearts
		if err != nil {
			err = &BackendError{Op: "decrement heart", Err: err}
		}
	} else if err != nil {
		err = &BackendError{Op: "submit answer", Err: err}
	}

	c.mu.Lock()
	if gen != c.gen {
		defer c.mu.Unlock()
		c.log.WithField("question_id", q.ID).Debug("discarding grade for closed session")
		return SubmitOutcome{Status: StatusDiscarded, View: c.viewLocked()}, nil
	}
	c.submitting = false
	if err != nil {
		defer c.mu.Unlock()
		c.log.WithError(err).WithField("question_id", q.ID).Warn("submit failed")
		return SubmitOutcome{View: c.viewLocked()}, err
	}

	out := SubmitOutcome{
		Correct:       grade.Correct,
		CorrectAnswer: grade.CorrectAnswer,
		Hearts:        grade.Hearts,
	}
	c.answers[q.ID] = Answer{Text: answer, Correct: grade.Correct}
	c.hearts = grade.Hearts

	if grade.Correct {
		c.correctCount++
		c.streak++
		if c.streak == c.cfg.StreakThreshold && !c.streakPending {
			c.streakPending = true
			out.StreakReached = true
		}
	} else {
		c.incorrectCount++
		c.streak = 0
		if c.phase == PhaseTesting {
			c.markFailed(q.ID)
			if !c.queuedAfterCursor(q.ID) {
				c.queue = append(c.queue, q)
				out.Requeued = true
			}
		}
		if c.hearts <= 0 {
			c.block()
			out.Status = StatusBlocked
		}
	}

	c.log.WithFields(logrus.Fields{
		"attempt_id":  c.attemptID,
		"question_id": q.ID,
		"correct":     grade.Correct,
		"hearts":      c.hearts,
		"requeued":    out.Requeued,
	}).Debug("answer graded")

	cp := c.checkpointLocked()
	out.View = c.viewLocked()
	c.mu.Unlock()

	c.saveCheckpoint(ctx, attemptID, cp)
	return out, nil
}

// Advance leaves the current question. Leaving the last first-pass
// question moves to PhaseMistakeReview when anything failed, otherwise to
// PhaseSuccessCelebration. Leaving the end of the queue moves to
// PhaseCompleting.
func (c *Controller) Advance(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.phase == PhaseBlocked {
		defer c.mu.Unlock()
		return Outcome{Status: StatusBlocked, View: c.viewLocked()}, nil
	}
	if !c.phase.answering() || c.reviewIntroPending {
		defer c.mu.Unlock()
		return Outcome{View: c.viewLocked()}, invalidTransition("advance", c.phase)
	}
	if c.submitting {
		defer c.mu.Unlock()
		return Outcome{Status: StatusBusy, View: c.viewLocked()}, nil
	}
	q := c.queue[c.cursor]
	if _, ok := c.answers[q.ID]; !ok {
		defer c.mu.Unlock()
		return Outcome{View: c.viewLocked()}, ErrNotAnswered
	}

	// A requeued question is answered fresh.
	delete(c.answers, q.ID)
	from := c.phase
	next := c.cursor + 1

	switch {
	case c.phase == PhaseTesting && c.cursor == c.firstPass-1:
		switch {
		case len(c.failed) == 0:
			c.phase = PhaseSuccessCelebration
		case next < len(c.queue):
			c.phase = PhaseMistakeReview
			c.reviewIntroPending = true
		default:
			c.phase = PhaseCompleting
		}
	case next >= len(c.queue):
		c.phase = PhaseCompleting
	}
	c.cursor = next
	c.presentedAt = c.now()

	if c.phase != from {
		c.log.WithFields(logrus.Fields{
			"attempt_id": c.attemptID,
			"from":       from,
			"to":         c.phase,
		}).Info("phase changed")
	}

	attemptID := c.attemptID
	cp := c.checkpointLocked()
	out := Outcome{View: c.viewLocked()}
	c.mu.Unlock()

	c.saveCheckpoint(ctx, attemptID, cp)
	return out, nil
}

// AcknowledgeReviewIntro dismisses the mistake review interstitial.
func (c *Controller) AcknowledgeReviewIntro() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseMistakeReview || !c.reviewIntroPending {
		return c.viewLocked(), invalidTransition("acknowledge review intro", c.phase)
	}
	c.reviewIntroPending = false
	c.presentedAt = c.now()
	return c.viewLocked(), nil
}

// AcknowledgeStreak clears a raised streak signal and restarts the count.
func (c *Controller) AcknowledgeStreak() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.streakPending {
		c.streakPending = false
		c.streak = 0
	}
	return c.viewLocked()
}

// ContinueAfterCelebration moves from PhaseSuccessCelebration to
// PhaseCompleting.
func (c *Controller) ContinueAfterCelebration() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseSuccessCelebration {
		return c.viewLocked(), invalidTransition("continue", c.phase)
	}
	c.phase = PhaseCompleting
	return c.viewLocked(), nil
}

// Complete finalizes the attempt. Only the first call from PhaseCompleting
// reaches the backend; calls made while it is in flight or after it
// succeeded report StatusDuplicate. On failure the session returns to
// PhaseCompleting so the call can be retried. The score is always the
// first-pass score, whatever the backend returned.
func (c *Controller) Complete(ctx context.Context) (CompleteOutcome, error) {
	c.mu.Lock()
	switch c.phase {
	case PhaseFinalizing, PhaseResults, PhasePostResult:
		defer c.mu.Unlock()
		return CompleteOutcome{Status: StatusDuplicate, Result: c.result, View: c.viewLocked()}, nil
	case PhaseCompleting:
	default:
		defer c.mu.Unlock()
		return CompleteOutcome{View: c.viewLocked()}, invalidTransition("complete", c.phase)
	}
	c.phase = PhaseFinalizing
	gen := c.gen
	attemptID := c.attemptID
	c.mu.Unlock()

	res, err := c.strategy.CompleteAttempt(ctx, attemptID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return CompleteOutcome{Status: StatusDiscarded, View: c.viewLocked()}, nil
	}
	if err != nil || res == nil {
		if err == nil {
			err = errors.New("empty result")
		}
		c.phase = PhaseCompleting
		c.log.WithError(err).WithField("attempt_id", attemptID).Warn("completion failed")
		return CompleteOutcome{View: c.viewLocked()}, &BackendError{Op: "complete attempt", Err: err}
	}

	final := *res
	score := economy.FirstPassScore(c.firstPass, len(c.failed))
	if math.Abs(final.Score-score) > scoreTolerance {
		c.log.WithFields(logrus.Fields{
			"attempt_id":    attemptID,
			"backend_score": final.Score,
			"score":         score,
		}).Warn("backend score differs from first-pass score")
	}
	final.Score = score
	final.Passed = economy.Passed(score, c.cfg.PassThreshold)
	c.result = &final
	c.phase = PhaseResults

	c.log.WithFields(logrus.Fields{
		"attempt_id": attemptID,
		"score":      final.Score,
		"passed":     final.Passed,
		"xp":         final.ExperienceGained,
	}).Info("session completed")
	return CompleteOutcome{Result: c.result, View: c.viewLocked()}, nil
}

// DismissResults leaves PhaseResults, showing the interstitial first when
// requested.
func (c *Controller) DismissResults(interstitial bool) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseResults {
		return c.viewLocked(), invalidTransition("dismiss results", c.phase)
	}
	if interstitial {
		c.phase = PhasePostResult
	} else {
		c.closeLocked()
	}
	return c.viewLocked(), nil
}

// DismissInterstitial closes the session from PhasePostResult.
func (c *Controller) DismissInterstitial() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhasePostResult {
		return c.viewLocked(), invalidTransition("dismiss interstitial", c.phase)
	}
	c.closeLocked()
	return c.viewLocked(), nil
}

// Resume leaves PhaseBlocked once hearts are available again. The question
// under the cursor is presented again with its wrong answer cleared.
func (c *Controller) Resume(hearts int) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseBlocked {
		return Outcome{View: c.viewLocked()}, invalidTransition("resume", c.phase)
	}
	if hearts <= 0 {
		return Outcome{Status: StatusBlocked, View: c.viewLocked()}, nil
	}
	c.hearts = hearts
	c.phase = c.resumePhase
	if c.cursor < len(c.queue) {
		delete(c.answers, c.queue[c.cursor].ID)
	}
	c.presentedAt = c.now()
	c.log.WithFields(logrus.Fields{
		"attempt_id": c.attemptID,
		"hearts":     hearts,
		"phase":      c.phase,
	}).Info("session resumed")
	return Outcome{View: c.viewLocked()}, nil
}

// RequestExit reports whether leaving now would lose progress, so the
// caller should confirm first.
func (c *Controller) RequestExit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase {
	case PhaseTesting, PhaseMistakeReview, PhaseBlocked,
		PhaseSuccessCelebration, PhaseCompleting, PhaseFinalizing:
		return true
	}
	return false
}

// Exit closes the session from any phase. The attempt is left as it is;
// in-flight results that arrive later are discarded. It reports whether the
// session was open.
func (c *Controller) Exit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseClosed {
		return false
	}
	from := c.phase
	c.closeLocked()
	c.log.WithFields(logrus.Fields{
		"attempt_id": c.attemptID,
		"from":       from,
	}).Info("session exited")
	return true
}

// View returns a snapshot of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Stats returns the submission counts and elapsed time so far.
func (c *Controller) Stats() (correct, incorrect int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.correctCount, c.incorrectCount, c.now().Sub(c.startedAt)
}

// AttemptID returns the attempt id, empty before Start.
func (c *Controller) AttemptID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptID
}

// stale reports whether the session was closed after gen was taken.
func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.gen
}

func (c *Controller) closeLocked() {
	c.phase = PhaseClosed
	c.gen++
	c.submitting = false
	c.starting = false
}

func (c *Controller) block() {
	c.resumePhase = c.phase
	c.phase = PhaseBlocked
	c.log.WithField("attempt_id", c.attemptID).Info("out of hearts")
}

func (c *Controller) markFailed(id string) {
	if _, ok := c.failed[id]; ok {
		return
	}
	c.failed[id] = struct{}{}
	c.failedOrder = append(c.failedOrder, id)
}

// queuedAfterCursor reports whether id appears after the cursor.
func (c *Controller) queuedAfterCursor(id string) bool {
	for i := c.cursor + 1; i < len(c.queue); i++ {
		if c.queue[i].ID == id {
			return true
		}
	}
	return false
}

func (c *Controller) checkpointLocked() Checkpoint {
	ids := make([]string, len(c.queue))
	for i, q := range c.queue {
		ids[i] = q.ID
	}
	cp := Checkpoint{
		Queue:          ids,
		Cursor:         c.cursor,
		FirstPassCount: c.firstPass,
		Failed:         append([]string(nil), c.failedOrder...),
		Blocked:        c.phase == PhaseBlocked,
	}
	if len(c.answers) > 0 {
		cp.Answers = make(map[string]Answer, len(c.answers))
		for id, a := range c.answers {
			cp.Answers[id] = a
		}
	}
	return cp
}

// saveCheckpoint stores progress. Failures only cost resumability, so they
// are logged and not returned.
func (c *Controller) saveCheckpoint(ctx context.Context, attemptID string, cp Checkpoint) {
	if err := c.backend.Checkpoint(ctx, attemptID, cp); err != nil {
		c.log.WithError(err).WithField("attempt_id", attemptID).Warn("checkpoint failed")
	}
}

func (c *Controller) viewLocked() View {
	v := View{
		AttemptID:          c.attemptID,
		Mode:               c.strategy.Mode(),
		Phase:              c.phase,
		QueueLength:        len(c.queue),
		FirstPassCount:     c.firstPass,
		FailedCount:        len(c.failed),
		Hearts:             c.hearts,
		Streak:             c.streak,
		StreakPending:      c.streakPending,
		ReviewIntroPending: c.reviewIntroPending,
		Submitting:         c.submitting,
		Result:             c.result,
	}
	if (c.phase.answering() || c.phase == PhaseBlocked) && c.cursor < len(c.queue) {
		q := c.queue[c.cursor]
		v.Question = &q
		v.Position = c.cursor + 1
		if a, ok := c.answers[q.ID]; ok {
			v.Answer = &a
			v.CanAdvance = c.phase.answering() && !c.submitting && !c.reviewIntroPending
		}
	}
	return v
}
