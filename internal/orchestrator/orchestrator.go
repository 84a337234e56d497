// Package orchestrator wires quiz sessions to the content backend, the
// economy ledger and rewards, and keeps the open sessions of a process.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/gems"
	"github.com/abhisek/zapquiz/internal/leaderboard"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/store"
)

var (
	// ErrSessionNotFound means no open session has the attempt id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownMode means the start request named no valid mode.
	ErrUnknownMode = errors.New("unknown quiz mode")
)

// Session event actions.
const (
	ActionStart   = "start"
	ActionResume  = "resume"
	ActionStreak  = "streak"
	ActionEnd     = "end"
	ActionExit    = "exit"
	ActionTimeout = "timeout"
)

// Config tunes session behavior.
type Config struct {
	// StreakThreshold is the run of correct answers that raises a streak.
	StreakThreshold int `mapstructure:"streak_threshold"`

	// Interstitial shows a post-result screen before closing.
	Interstitial bool `mapstructure:"interstitial"`

	// IdleTimeout closes sessions without activity. Default: 30m.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{
		StreakThreshold: quiz.DefaultStreakThreshold,
		IdleTimeout:     30 * time.Minute,
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Content *content.Service
	Ledger  *economy.Ledger
	Events  store.EventRepo
	Gems    *gems.Service
	Board   leaderboard.Board
	Log     logrus.FieldLogger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator starts sessions and looks them up by attempt id.
type Orchestrator struct {
	Deps
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, opts ...Option) *Orchestrator {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Gems == nil {
		deps.Gems = gems.NewService(deps.Events, deps.Log)
	}
	if cfg.StreakThreshold <= 0 {
		cfg.StreakThreshold = quiz.DefaultStreakThreshold
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	o := &Orchestrator{
		Deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartRequest selects what to play. ResumeAttemptID continues a stored
// attempt, in which case the mode and source come from the attempt.
// ResumeLatest continues the newest in-progress attempt for the source
// when there is one.
type StartRequest struct {
	Mode            quiz.Mode `json:"mode" validate:"omitempty,oneof=unit final review"`
	UnitID          string    `json:"unit_id"`
	CurriculumID    string    `json:"curriculum_id"`
	ResumeAttemptID string    `json:"resume_attempt_id"`
	ResumeLatest    bool      `json:"resume_latest"`
}

// Start regenerates the user's hearts, starts or resumes an attempt and
// registers its session.
func (o *Orchestrator) Start(ctx context.Context, userID string, req StartRequest) (*Session, quiz.View, error) {
	if err := o.Ledger.EnsureUser(ctx, userID); err != nil {
		return nil, quiz.View{}, err
	}
	if _, err := o.Ledger.RegenerateHearts(ctx, userID); err != nil {
		return nil, quiz.View{}, err
	}

	src := attemptSource{
		content:  o.Content,
		userID:   userID,
		src:      content.SourceRef{Mode: req.Mode, UnitID: req.UnitID, CurriculumID: req.CurriculumID},
		resumeID: req.ResumeAttemptID,
	}
	if src.resumeID != "" {
		owner, ref, err := o.Content.AttemptSource(ctx, src.resumeID)
		if err != nil {
			return nil, quiz.View{}, err
		}
		if owner != userID {
			return nil, quiz.View{}, content.ErrNotOwner
		}
		src.src = ref
	} else if req.ResumeLatest {
		id, err := o.Content.ResumableAttempt(ctx, userID, src.src)
		if err != nil {
			return nil, quiz.View{}, err
		}
		src.resumeID = id
	}

	strategy, err := newStrategy(src)
	if err != nil {
		return nil, quiz.View{}, err
	}

	log := o.Log.WithField("user_id", userID)
	ctrl := quiz.New(quiz.Config{
		UserID:          userID,
		StreakThreshold: o.cfg.StreakThreshold,
		PassThreshold:   o.Content.Config().PassThreshold,
	}, strategy, o.Content, o.Ledger, quiz.WithLogger(log), quiz.WithClock(o.now))

	view, err := ctrl.Start(ctx)
	if err != nil {
		return nil, view, fmt.Errorf("start %s session: %w", strategy.Mode(), err)
	}

	s := &Session{
		o:          o,
		ctrl:       ctrl,
		userID:     userID,
		attemptID:  view.AttemptID,
		mode:       strategy.Mode(),
		lastActive: o.now(),
	}
	o.register(s)

	action := ActionStart
	if src.resumeID != "" {
		action = ActionResume
	}
	o.appendEvent(ctx, s, action, "")
	return s, view, nil
}

// Session returns the open session for attemptID owned by userID.
func (o *Orchestrator) Session(attemptID, userID string) (*Session, error) {
	o.mu.Lock()
	s, ok := o.sessions[attemptID]
	o.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.userID != userID {
		return nil, content.ErrNotOwner
	}
	return s, nil
}

// OpenSessions returns the number of registered sessions.
func (o *Orchestrator) OpenSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// CloseIdle exits sessions without activity for longer than IdleTimeout
// and returns how many were closed. Their attempts stay resumable.
func (o *Orchestrator) CloseIdle(ctx context.Context) int {
	cutoff := o.now().Add(-o.cfg.IdleTimeout)

	o.mu.Lock()
	var idle []*Session
	for _, s := range o.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	o.mu.Unlock()

	for _, s := range idle {
		if s.ctrl.Exit() {
			o.appendEvent(ctx, s, ActionTimeout, "")
		}
		o.evict(s)
	}
	return len(idle)
}

// Balance regenerates hearts and returns the user's balances.
func (o *Orchestrator) Balance(ctx context.Context, userID string) (economy.Balance, error) {
	if err := o.Ledger.EnsureUser(ctx, userID); err != nil {
		return economy.Balance{}, err
	}
	if _, err := o.Ledger.RegenerateHearts(ctx, userID); err != nil {
		return economy.Balance{}, err
	}
	return o.Ledger.Balance(ctx, userID)
}

// Leaderboard returns the top n learners.
func (o *Orchestrator) Leaderboard(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	if o.Board == nil {
		return nil, nil
	}
	return o.Board.Top(ctx, n)
}

// register adds s, closing any session still open for the same attempt.
func (o *Orchestrator) register(s *Session) {
	o.mu.Lock()
	old := o.sessions[s.attemptID]
	o.sessions[s.attemptID] = s
	o.mu.Unlock()

	if old != nil && old != s {
		old.ctrl.Exit()
	}
}

// evict removes s unless a newer session replaced it.
func (o *Orchestrator) evict(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions[s.attemptID] == s {
		delete(o.sessions, s.attemptID)
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, s *Session, action, detail string) {
	if o.Events == nil {
		return
	}
	correct, incorrect, elapsed := s.ctrl.Stats()
	err := o.Events.AppendSessionEvent(ctx, store.SessionEventData{
		AttemptID:       s.attemptID,
		UserID:          s.userID,
		Action:          action,
		QuestionsServed: correct + incorrect,
		CorrectAnswers:  correct,
		DurationSecs:    int(elapsed.Seconds()),
		Detail:          detail,
	})
	if err != nil {
		o.Log.WithError(err).WithFields(logrus.Fields{
			"attempt_id": s.attemptID,
			"action":     action,
		}).Warn("failed to record session event")
	}
}
