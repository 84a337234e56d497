package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/store"
)

// SourceRef names where an attempt's questions come from.
type SourceRef struct {
	Mode         quiz.Mode
	UnitID       string
	CurriculumID string
}

// SourceID is the id persisted with the attempt: the unit for unit quizzes,
// the curriculum for finals, empty for reviews.
func (r SourceRef) SourceID() string {
	switch r.Mode {
	case quiz.ModeUnit:
		return r.UnitID
	case quiz.ModeFinal:
		return r.CurriculumID
	}
	return ""
}

func (r SourceRef) validate() error {
	switch r.Mode {
	case quiz.ModeUnit:
		if r.UnitID == "" {
			return fmt.Errorf("%w: unit quiz needs a unit id", ErrInvalidSource)
		}
	case quiz.ModeFinal:
		if r.CurriculumID == "" {
			return fmt.Errorf("%w: final quiz needs a curriculum id", ErrInvalidSource)
		}
	case quiz.ModeReview:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidSource, r.Mode)
	}
	return nil
}

// Report reasons accepted by ReportQuestionProblem.
var ReportReasons = []string{"wrong_answer", "typo", "unclear", "offensive", "other"}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// XPRecorder receives experience as it is granted.
type XPRecorder interface {
	Record(ctx context.Context, userID string, xp int) error
}

// WithLeaderboard records granted XP on r once per completed attempt.
func WithLeaderboard(r XPRecorder) Option {
	return func(s *Service) { s.board = r }
}

// Service is the content and progress backend: it serves questions,
// grades answers, stores progress and finalizes attempts.
type Service struct {
	store  *store.Store
	ledger *economy.Ledger
	grader *Grader
	cfg    Config
	log    logrus.FieldLogger
	now    func() time.Time
	board  XPRecorder

	// afterAnswer runs between the answer write and the heart charge of a
	// wrong answer. Returning an error aborts the submission.
	afterAnswer func() error
}

// NewService creates a Service.
func NewService(s *store.Store, ledger *economy.Ledger, grader *Grader, cfg Config, log logrus.FieldLogger, opts ...Option) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if grader == nil {
		grader = NewGrader(nil, log)
	}
	svc := &Service{
		store:  s,
		ledger: ledger,
		grader: grader,
		cfg:    cfg.withDefaults(),
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// StartAttempt creates a fresh attempt for userID. It returns
// quiz.ErrNoQuestions when the source has nothing to ask.
func (s *Service) StartAttempt(ctx context.Context, userID string, src SourceRef) (*quiz.Attempt, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}

	var (
		rows []store.QuestionRow
		err  error
	)
	switch src.Mode {
	case quiz.ModeUnit:
		if _, err = s.store.GetUnit(ctx, src.UnitID); err != nil {
			return nil, err
		}
		rows, err = s.store.QuestionsForUnit(ctx, src.UnitID)
	case quiz.ModeFinal:
		rows, err = s.store.QuestionsForCurriculum(ctx, src.CurriculumID)
	case quiz.ModeReview:
		rows, err = s.reviewQuestions(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(rows) == 0 {
		return nil, quiz.ErrNoQuestions
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	row := store.AttemptRow{
		ID:          uuid.NewString(),
		UserID:      userID,
		Kind:        string(src.Mode),
		SourceID:    src.SourceID(),
		QuestionIDs: ids,
		StartedAt:   s.now(),
	}
	if err := s.store.CreateAttempt(ctx, row); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"attempt_id": row.ID,
		"user_id":    userID,
		"mode":       src.Mode,
		"questions":  len(ids),
	}).Info("attempt started")

	return &quiz.Attempt{
		ID:        row.ID,
		Questions: toQuestions(rows),
		StartedAt: row.StartedAt,
		Hearts:    user.Hearts,
	}, nil
}

// ResumableAttempt returns the id of the user's newest in-progress attempt
// for src, or "" when there is none.
func (s *Service) ResumableAttempt(ctx context.Context, userID string, src SourceRef) (string, error) {
	row, err := s.store.LatestInProgress(ctx, userID, string(src.Mode), src.SourceID())
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

// AttemptSource returns the owner and source of an attempt.
func (s *Service) AttemptSource(ctx context.Context, attemptID string) (string, SourceRef, error) {
	row, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return "", SourceRef{}, err
	}
	src := SourceRef{Mode: quiz.Mode(row.Kind)}
	switch src.Mode {
	case quiz.ModeUnit:
		src.UnitID = row.SourceID
	case quiz.ModeFinal:
		src.CurriculumID = row.SourceID
	}
	return row.UserID, src, nil
}

// ResumeAttempt reloads an in-progress attempt from its last checkpoint.
// An attempt that never checkpointed restarts its first pass.
func (s *Service) ResumeAttempt(ctx context.Context, attemptID, userID string) (*quiz.Attempt, error) {
	row, err := s.openAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if row.UserID != userID {
		return nil, ErrNotOwner
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	att := &quiz.Attempt{
		ID:        row.ID,
		StartedAt: row.StartedAt,
		Hearts:    user.Hearts,
	}

	cp := row.Checkpoint
	if cp == nil || len(cp.Queue) == 0 {
		qs, err := s.store.QuestionsByIDs(ctx, row.QuestionIDs)
		if err != nil {
			return nil, err
		}
		if len(qs) != len(row.QuestionIDs) {
			return nil, fmt.Errorf("attempt %s: %d of %d questions no longer exist", attemptID, len(row.QuestionIDs)-len(qs), len(row.QuestionIDs))
		}
		att.Questions = toQuestions(qs)
		return att, nil
	}

	qs, err := s.store.QuestionsByIDs(ctx, cp.Queue)
	if err != nil {
		return nil, err
	}
	if len(qs) != len(cp.Queue) {
		return nil, fmt.Errorf("attempt %s: checkpoint references missing questions", attemptID)
	}
	att.Questions = toQuestions(qs)
	att.Resumed = true
	att.Cursor = cp.Cursor
	att.FirstPassCount = cp.FirstPassCount
	att.Failed = append([]string(nil), cp.Failed...)
	att.Blocked = cp.Blocked
	if len(cp.Answers) > 0 {
		att.Answers = make(map[string]quiz.Answer, len(cp.Answers))
		for id, a := range cp.Answers {
			att.Answers[id] = quiz.Answer{Text: a.Text, Correct: a.Correct}
		}
	}

	s.log.WithFields(logrus.Fields{
		"attempt_id": attemptID,
		"cursor":     cp.Cursor,
		"queue":      len(cp.Queue),
	}).Info("attempt resumed")
	return att, nil
}

// SubmitAnswer grades and records one answer. A wrong answer's row and its
// heart are written in one transaction, so a failed submission leaves
// nothing behind and can be repeated.
func (s *Service) SubmitAnswer(ctx context.Context, attemptID, questionID, answer string, elapsed time.Duration) (quiz.Grade, error) {
	row, err := s.openAttempt(ctx, attemptID)
	if err != nil {
		return quiz.Grade{}, err
	}
	if !slices.Contains(row.QuestionIDs, questionID) {
		return quiz.Grade{}, ErrQuestionNotInAttempt
	}

	qs, err := s.store.QuestionsByIDs(ctx, []string{questionID})
	if err != nil {
		return quiz.Grade{}, err
	}
	if len(qs) == 0 {
		return quiz.Grade{}, fmt.Errorf("question %s: %w", questionID, store.ErrNotFound)
	}

	v, err := s.grader.Grade(ctx, toQuestion(qs[0]), answer)
	if err != nil {
		return quiz.Grade{}, fmt.Errorf("grade %s: %w", questionID, err)
	}

	g := quiz.Grade{Correct: v.Correct}
	if !v.Correct {
		g.CorrectAnswer = v.Solution
	}
	err = s.store.WithTx(ctx, func(tx *store.Conn) error {
		if _, err := tx.AppendAnswer(ctx, store.AnswerRow{
			AttemptID:  attemptID,
			UserID:     row.UserID,
			QuestionID: questionID,
			Answer:     answer,
			Correct:    v.Correct,
			ElapsedMs:  elapsed.Milliseconds(),
			CreatedAt:  s.now(),
		}); err != nil {
			return err
		}
		if s.afterAnswer != nil {
			if err := s.afterAnswer(); err != nil {
				return err
			}
		}

		if !v.Correct {
			hearts, err := s.ledger.DecrementHeartTx(ctx, tx, row.UserID, attemptID)
			if err == nil {
				g.Hearts, g.HeartCharged = hearts, true
				return nil
			}
			if !errors.Is(err, economy.ErrInsufficientResource) {
				return err
			}
			// Already at zero hearts; nothing left to take.
			g.HeartCharged = true
		}
		user, err := tx.GetUser(ctx, row.UserID)
		if err != nil {
			return err
		}
		g.Hearts = user.Hearts
		return nil
	})
	if err != nil {
		return quiz.Grade{}, fmt.Errorf("record answer: %w", err)
	}
	return g, nil
}

// Checkpoint stores the controller's resumable progress.
func (s *Service) Checkpoint(ctx context.Context, attemptID string, cp quiz.Checkpoint) error {
	scp := store.Checkpoint{
		Queue:          cp.Queue,
		Cursor:         cp.Cursor,
		FirstPassCount: cp.FirstPassCount,
		Failed:         cp.Failed,
		Blocked:        cp.Blocked,
	}
	if len(cp.Answers) > 0 {
		scp.Answers = make(map[string]store.CheckpointAnswer, len(cp.Answers))
		for id, a := range cp.Answers {
			scp.Answers[id] = store.CheckpointAnswer{Text: a.Text, Correct: a.Correct}
		}
	}
	ok, err := s.store.SaveCheckpoint(ctx, attemptID, scp, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrAttemptClosed
	}
	return nil
}

// CompleteAttempt finalizes a unit or review attempt.
func (s *Service) CompleteAttempt(ctx context.Context, attemptID string) (*quiz.Result, error) {
	return s.complete(ctx, attemptID, quiz.ModeUnit, quiz.ModeReview)
}

// CompleteFinalAttempt finalizes a final quiz attempt.
func (s *Service) CompleteFinalAttempt(ctx context.Context, attemptID string) (*quiz.Result, error) {
	return s.complete(ctx, attemptID, quiz.ModeFinal)
}

// complete scores the attempt from its recorded answers, credits XP and
// the pass reward, and marks it completed, all in one transaction.
// Completing an already completed attempt returns the stored result
// without crediting anything again.
func (s *Service) complete(ctx context.Context, attemptID string, kinds ...quiz.Mode) (*quiz.Result, error) {
	var (
		res     *quiz.Result
		userID  string
		granted bool
	)
	err := s.store.WithTx(ctx, func(tx *store.Conn) error {
		row, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if !slices.Contains(kinds, quiz.Mode(row.Kind)) {
			return fmt.Errorf("%w: %s attempt", ErrWrongKind, row.Kind)
		}
		switch row.Status {
		case store.StatusCompleted:
			res = resultFromRow(row.Result)
			return nil
		case store.StatusInProgress:
		default:
			return ErrAttemptClosed
		}

		answers, err := tx.AnswersForAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		ar := s.score(quiz.Mode(row.Kind), row.QuestionIDs, answers)

		ok, err := tx.CompleteAttempt(ctx, attemptID, ar, s.now())
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with another completion.
			fresh, err := tx.GetAttempt(ctx, attemptID)
			if err != nil {
				return err
			}
			res = resultFromRow(fresh.Result)
			return nil
		}

		if ar.ExperienceGained > 0 {
			if err := tx.AddXP(ctx, row.UserID, ar.ExperienceGained); err != nil {
				return err
			}
		}
		if ar.ZapsAwarded > 0 {
			reason := fmt.Sprintf("passed %s quiz", row.Kind)
			if err := s.ledger.CreditCurrencyTx(ctx, tx, row.UserID, economy.TxCompletionReward, ar.ZapsAwarded, reason, attemptID); err != nil {
				return err
			}
		}
		res = resultFromRow(ar)
		userID = row.UserID
		granted = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete attempt %s: %w", attemptID, err)
	}

	if granted {
		s.log.WithFields(logrus.Fields{
			"attempt_id": attemptID,
			"score":      res.Score,
			"passed":     res.Passed,
			"xp":         res.ExperienceGained,
			"zaps":       res.ZapsAwarded,
		}).Info("attempt completed")
		s.recordXP(ctx, userID, attemptID, res.ExperienceGained)
	}
	return res, nil
}

// recordXP mirrors a grant onto the leaderboard. The users table stays the
// source of truth, so a failure is logged and not returned.
func (s *Service) recordXP(ctx context.Context, userID, attemptID string, xp int) {
	if s.board == nil || xp <= 0 {
		return
	}
	if err := s.board.Record(ctx, userID, xp); err != nil {
		s.log.WithError(err).WithField("attempt_id", attemptID).Warn("failed to record leaderboard xp")
	}
}

// score derives the result columns. The score counts first-pass questions
// that were never answered wrong; XP also weighs retries and pace.
func (s *Service) score(kind quiz.Mode, questionIDs []string, answers []store.AnswerRow) store.AttemptResult {
	failed := make(map[string]bool)
	var (
		correct, incorrect int
		elapsedMs          int64
	)
	for _, a := range answers {
		elapsedMs += a.ElapsedMs
		if a.Correct {
			correct++
		} else {
			incorrect++
			failed[a.QuestionID] = true
		}
	}

	firstPass := len(questionIDs)
	score := economy.FirstPassScore(firstPass, len(failed))
	passed := economy.Passed(score, s.cfg.PassThreshold)
	elapsed := time.Duration(elapsedMs) * time.Millisecond

	maxXP, reward := s.cfg.UnitMaxXP, s.cfg.UnitReward
	switch kind {
	case quiz.ModeFinal:
		maxXP, reward = s.cfg.FinalMaxXP, s.cfg.FinalReward
	case quiz.ModeReview:
		maxXP, reward = s.cfg.ReviewMaxXP, 0
	}

	ar := store.AttemptResult{
		Score:          score,
		CorrectAnswers: firstPass - min(len(failed), firstPass),
		TotalQuestions: firstPass,
		Passed:         passed,
		ExperienceGained: economy.ScoreAttempt(economy.ScoreInput{
			Correct:        correct,
			Incorrect:      incorrect,
			Elapsed:        elapsed,
			TotalQuestions: firstPass,
			TotalAttempts:  len(answers),
			MaxXP:          maxXP,
		}),
		ElapsedSecs: int(math.Round(elapsed.Seconds())),
	}
	if passed {
		ar.ZapsAwarded = reward
	}
	if kind == quiz.ModeFinal {
		ar.CertificateEligible = passed && score >= s.cfg.CertificateThreshold
	}
	return ar
}

// ReportQuestionProblem files a learner's complaint about a question.
func (s *Service) ReportQuestionProblem(ctx context.Context, userID, questionID, reason, description string) error {
	if !slices.Contains(ReportReasons, reason) {
		return fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	qs, err := s.store.QuestionsByIDs(ctx, []string{questionID})
	if err != nil {
		return err
	}
	if len(qs) == 0 {
		return fmt.Errorf("question %s: %w", questionID, store.ErrNotFound)
	}
	return s.store.AddQuestionReport(ctx, store.QuestionReport{
		ID:          uuid.NewString(),
		UserID:      userID,
		QuestionID:  questionID,
		Reason:      reason,
		Description: description,
		CreatedAt:   s.now(),
	})
}

// AbandonStale marks attempts untouched for longer than StaleAfter as
// abandoned.
func (s *Service) AbandonStale(ctx context.Context) (int64, error) {
	n, err := s.store.AbandonStale(ctx, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.WithField("count", n).Info("abandoned stale attempts")
	}
	return n, nil
}

// reviewQuestions picks questions whose most recent answer was wrong,
// most recently missed first.
func (s *Service) reviewQuestions(ctx context.Context, userID string) ([]store.QuestionRow, error) {
	history, err := s.store.UserAnswerHistory(ctx, userID, store.QueryOpts{Limit: s.cfg.ReviewScanLimit})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, a := range history {
		if seen[a.QuestionID] {
			continue
		}
		seen[a.QuestionID] = true
		if !a.Correct {
			ids = append(ids, a.QuestionID)
			if len(ids) == s.cfg.ReviewSize {
				break
			}
		}
	}
	return s.store.QuestionsByIDs(ctx, ids)
}

func (s *Service) openAttempt(ctx context.Context, attemptID string) (*store.AttemptRow, error) {
	row, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if row.Status != store.StatusInProgress {
		return nil, ErrAttemptClosed
	}
	return row, nil
}

func toQuestion(r store.QuestionRow) quiz.Question {
	return quiz.Question{
		ID:      r.ID,
		UnitID:  r.UnitID,
		Type:    quiz.QuestionType(r.Type),
		Content: json.RawMessage(r.Content),
		Order:   r.Order,
	}
}

func toQuestions(rows []store.QuestionRow) []quiz.Question {
	qs := make([]quiz.Question, len(rows))
	for i, r := range rows {
		qs[i] = toQuestion(r)
	}
	return qs
}

func resultFromRow(r store.AttemptResult) *quiz.Result {
	return &quiz.Result{
		Score:               r.Score,
		CorrectAnswers:      r.CorrectAnswers,
		TotalQuestions:      r.TotalQuestions,
		Passed:              r.Passed,
		ExperienceGained:    r.ExperienceGained,
		TimeElapsedSeconds:  r.ElapsedSecs,
		ZapsAwarded:         r.ZapsAwarded,
		CertificateEligible: r.CertificateEligible,
	}
}

var _ quiz.Backend = (*Service)(nil)
