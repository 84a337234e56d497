// Package scheduler runs the periodic maintenance jobs: the heart
// regeneration sweep, stale attempt abandonment and idle session cleanup.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/economy"
)

// Config sets the job intervals. A zero interval disables the job.
type Config struct {
	// RegenEvery is the heart regeneration sweep interval. Default: 15m.
	RegenEvery time.Duration `mapstructure:"regen_every"`

	// StaleEvery is the stale attempt sweep interval. Default: 1h.
	StaleEvery time.Duration `mapstructure:"stale_every"`

	// IdleEvery is the idle session sweep interval. Default: 1m.
	IdleEvery time.Duration `mapstructure:"idle_every"`
}

// DefaultConfig returns the standard job intervals.
func DefaultConfig() Config {
	return Config{
		RegenEvery: 15 * time.Minute,
		StaleEvery: time.Hour,
		IdleEvery:  time.Minute,
	}
}

// HeartLedger regenerates hearts.
type HeartLedger interface {
	RegenerateHearts(ctx context.Context, userID string) (economy.Regen, error)
	Config() economy.Config
}

// UserLister finds users that are not at full hearts.
type UserLister interface {
	UsersBelowHearts(ctx context.Context, max int) ([]string, error)
}

// StaleAbandoner abandons in-progress attempts nobody touched for too long.
type StaleAbandoner interface {
	AbandonStale(ctx context.Context) (int64, error)
}

// IdleCloser closes sessions without recent activity.
type IdleCloser interface {
	CloseIdle(ctx context.Context) int
}

// Deps are the collaborators the jobs call. Nil members disable their job.
type Deps struct {
	Ledger   HeartLedger
	Users    UserLister
	Attempts StaleAbandoner
	Sessions IdleCloser
	Log      logrus.FieldLogger
}

// Scheduler owns a gocron scheduler running the maintenance jobs.
type Scheduler struct {
	Deps
	cfg   Config
	cron  *gocron.Scheduler
	ctx   context.Context
	close context.CancelFunc
}

// New creates a Scheduler. Jobs run once Start is called.
func New(deps Deps, cfg Config) *Scheduler {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	deps.Log = deps.Log.WithField("component", "scheduler")

	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{Deps: deps, cfg: cfg, cron: cron, ctx: ctx, close: cancel}
}

// Start registers the enabled jobs and starts them in the background.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name    string
		every   time.Duration
		enabled bool
		run     func(context.Context)
	}{
		{"regenerate hearts", s.cfg.RegenEvery, s.Ledger != nil && s.Users != nil, func(ctx context.Context) { s.RegenerateAll(ctx) }},
		{"abandon stale attempts", s.cfg.StaleEvery, s.Attempts != nil, func(ctx context.Context) { s.AbandonStale(ctx) }},
		{"close idle sessions", s.cfg.IdleEvery, s.Sessions != nil, func(ctx context.Context) { s.CloseIdle(ctx) }},
	}
	for _, j := range jobs {
		if !j.enabled || j.every <= 0 {
			continue
		}
		run := j.run
		if _, err := s.cron.Every(j.every).Do(func() { run(s.ctx) }); err != nil {
			return err
		}
		s.Log.WithFields(logrus.Fields{"job": j.name, "every": j.every}).Info("job scheduled")
	}
	s.cron.StartAsync()
	return nil
}

// Stop cancels running jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	s.close()
	s.cron.Stop()
}

// RegenerateAll applies heart regeneration to every user below the cap
// and returns how many balances changed. A failing user is logged and
// skipped.
func (s *Scheduler) RegenerateAll(ctx context.Context) int {
	ids, err := s.Users.UsersBelowHearts(ctx, s.Ledger.Config().MaxHearts)
	if err != nil {
		s.Log.WithError(err).Warn("failed to list users for regeneration")
		return 0
	}

	changed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		regen, err := s.Ledger.RegenerateHearts(ctx, id)
		if err != nil {
			s.Log.WithError(err).WithField("user_id", id).Warn("heart regeneration failed")
			continue
		}
		if regen.Changed {
			changed++
		}
	}
	if changed > 0 {
		s.Log.WithField("users", changed).Debug("hearts regenerated")
	}
	return changed
}

// AbandonStale runs one stale attempt sweep.
func (s *Scheduler) AbandonStale(ctx context.Context) int64 {
	n, err := s.Attempts.AbandonStale(ctx)
	if err != nil {
		s.Log.WithError(err).Warn("stale attempt sweep failed")
	}
	return n
}

// CloseIdle runs one idle session sweep.
func (s *Scheduler) CloseIdle(ctx context.Context) int {
	n := s.Sessions.CloseIdle(ctx)
	if n > 0 {
		s.Log.WithField("sessions", n).Info("closed idle sessions")
	}
	return n
}
