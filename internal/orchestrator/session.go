package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/gems"
	"github.com/abhisek/zapquiz/internal/quiz"
)

// Session is one open quiz session. Its handlers are what the presentation
// layer calls.
type Session struct {
	o         *Orchestrator
	ctrl      *quiz.Controller
	userID    string
	attemptID string
	mode      quiz.Mode

	mu         sync.Mutex
	streaks    int
	lastActive time.Time
}

// SubmitResult is a graded submission plus the gem a streak earned.
type SubmitResult struct {
	quiz.SubmitOutcome
	Gem *gems.GemAward `json:"gem,omitempty"`
}

// CompleteResult is the completion outcome plus the gems it earned.
type CompleteResult struct {
	quiz.CompleteOutcome
	Gems []gems.GemAward `json:"gems,omitempty"`
}

// PurchaseResult is the balance after a heart purchase and the session
// view, resumed when it was blocked.
type PurchaseResult struct {
	Balance economy.Balance `json:"balance"`
	View    quiz.View       `json:"view"`
}

// AttemptID returns the attempt the session plays.
func (s *Session) AttemptID() string { return s.attemptID }

// UserID returns the session owner.
func (s *Session) UserID() string { return s.userID }

// Mode returns the quiz mode.
func (s *Session) Mode() quiz.Mode { return s.mode }

// View returns the current session snapshot.
func (s *Session) View() quiz.View {
	return s.ctrl.View()
}

// Submit grades an answer. Reaching a streak awards a streak gem.
func (s *Session) Submit(ctx context.Context, questionID, answer string) (SubmitResult, error) {
	s.touch()
	out, err := s.ctrl.Submit(ctx, questionID, answer)
	res := SubmitResult{SubmitOutcome: out}
	if err != nil || !out.StreakReached {
		return res, err
	}

	s.mu.Lock()
	s.streaks++
	n := s.streaks
	s.mu.Unlock()

	s.o.appendEvent(ctx, s, ActionStreak, fmt.Sprintf(`{"streaks":%d}`, n))
	res.Gem = s.o.Gems.AwardStreak(ctx, s.userID, s.attemptID, s.o.cfg.StreakThreshold, n*s.o.cfg.StreakThreshold)
	return res, nil
}

// Advance moves past the answered question.
func (s *Session) Advance(ctx context.Context) (quiz.Outcome, error) {
	s.touch()
	return s.ctrl.Advance(ctx)
}

// AcknowledgeStreak dismisses the streak celebration.
func (s *Session) AcknowledgeStreak() quiz.View {
	s.touch()
	return s.ctrl.AcknowledgeStreak()
}

// AcknowledgeReviewIntro dismisses the mistake review introduction.
func (s *Session) AcknowledgeReviewIntro() (quiz.View, error) {
	s.touch()
	return s.ctrl.AcknowledgeReviewIntro()
}

// Continue leaves the success celebration.
func (s *Session) Continue() (quiz.View, error) {
	s.touch()
	return s.ctrl.ContinueAfterCelebration()
}

// Complete finalizes the attempt. The first successful completion appends
// the end event and awards completion gems. Duplicate calls return the
// result without repeating either.
func (s *Session) Complete(ctx context.Context) (CompleteResult, error) {
	s.touch()
	out, err := s.ctrl.Complete(ctx)
	res := CompleteResult{CompleteOutcome: out}
	if err != nil || out.Status != quiz.StatusOK || out.Result == nil {
		return res, err
	}

	r := *out.Result
	detail, _ := json.Marshal(r)
	s.o.appendEvent(ctx, s, ActionEnd, string(detail))
	res.Gems = s.o.Gems.AwardCompletion(ctx, s.userID, s.attemptID, r)
	return res, nil
}

// PurchaseHeart buys a heart with ZAPs and resumes a blocked session.
func (s *Session) PurchaseHeart(ctx context.Context) (PurchaseResult, error) {
	s.touch()
	bal, err := s.o.Ledger.PurchaseHeart(ctx, s.userID)
	if err != nil {
		return PurchaseResult{Balance: bal, View: s.ctrl.View()}, err
	}
	view := s.ctrl.View()
	if view.Phase == quiz.PhaseBlocked {
		out, err := s.ctrl.Resume(bal.Hearts)
		if err != nil {
			return PurchaseResult{Balance: bal, View: out.View}, err
		}
		view = out.View
	}
	return PurchaseResult{Balance: bal, View: view}, nil
}

// HeartModalClosed handles the out-of-hearts prompt being dismissed without
// a purchase. Hearts that regenerated meanwhile resume the session;
// otherwise the session is closed and stays resumable.
func (s *Session) HeartModalClosed(ctx context.Context) (quiz.View, error) {
	s.touch()
	if s.ctrl.View().Phase != quiz.PhaseBlocked {
		return s.ctrl.View(), nil
	}
	regen, err := s.o.Ledger.RegenerateHearts(ctx, s.userID)
	if err != nil {
		return s.ctrl.View(), err
	}
	if regen.Hearts > 0 {
		out, err := s.ctrl.Resume(regen.Hearts)
		return out.View, err
	}
	return s.Exit(ctx), nil
}

// ClaimAdReward credits the ad reward and returns the new balance.
func (s *Session) ClaimAdReward(ctx context.Context) (economy.Balance, error) {
	s.touch()
	if _, err := s.o.Ledger.ClaimAdReward(ctx, s.userID); err != nil {
		return economy.Balance{}, err
	}
	return s.o.Ledger.Balance(ctx, s.userID)
}

// Dismiss leaves the results, then the interstitial when one is shown.
// A closed session is unregistered.
func (s *Session) Dismiss() (quiz.View, error) {
	s.touch()
	var (
		view quiz.View
		err  error
	)
	if s.ctrl.View().Phase == quiz.PhasePostResult {
		view, err = s.ctrl.DismissInterstitial()
	} else {
		view, err = s.ctrl.DismissResults(s.o.cfg.Interstitial)
	}
	if err == nil && view.Phase == quiz.PhaseClosed {
		s.o.evict(s)
	}
	return view, err
}

// RequestExit reports whether leaving needs confirmation.
func (s *Session) RequestExit() bool {
	return s.ctrl.RequestExit()
}

// Exit closes the session. The attempt stays resumable.
func (s *Session) Exit(ctx context.Context) quiz.View {
	if s.ctrl.Exit() {
		s.o.appendEvent(ctx, s, ActionExit, "")
		s.o.Log.WithFields(logrus.Fields{
			"attempt_id": s.attemptID,
			"user_id":    s.userID,
		}).Info("session closed by user")
	}
	s.o.evict(s)
	return s.ctrl.View()
}

// ReportProblem files a problem report about a question.
func (s *Session) ReportProblem(ctx context.Context, questionID, reason, description string) error {
	s.touch()
	return s.o.Content.ReportQuestionProblem(ctx, s.userID, questionID, reason, description)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.o.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
