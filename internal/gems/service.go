package gems

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/store"
)

// ActionGem is the session event action under which awards are recorded.
const ActionGem = "gem"

// Service computes gem awards and records them as session events.
type Service struct {
	eventRepo store.EventRepo
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewService creates a gem Service. eventRepo may be nil.
func NewService(eventRepo store.EventRepo, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{eventRepo: eventRepo, log: log, now: time.Now}
}

// AwardStreak awards a streak gem. covered is the number of answers in
// all streaks of the attempt so far, so later streaks earn rarer gems.
func (s *Service) AwardStreak(ctx context.Context, userID, attemptID string, streakLength, covered int) *GemAward {
	award := &GemAward{
		Type:      GemStreak,
		Rarity:    StreakRarity(covered),
		UserID:    userID,
		AttemptID: attemptID,
		Reason:    fmt.Sprintf("%d correct in a row!", streakLength),
		AwardedAt: s.now(),
	}
	s.persist(ctx, award)
	return award
}

// AwardCompletion awards the gems earned by a finished attempt: a session
// gem always, a perfect-run gem for a score of 100 and a certificate gem
// when the result earns one.
func (s *Service) AwardCompletion(ctx context.Context, userID, attemptID string, res quiz.Result) []GemAward {
	awards := []GemAward{{
		Type:   GemSession,
		Rarity: SessionRarity(res.Score),
		Reason: fmt.Sprintf("Quiz complete (%.0f%%)", res.Score),
	}}
	if res.TotalQuestions > 0 && res.CorrectAnswers == res.TotalQuestions {
		awards = append(awards, GemAward{
			Type:   GemPerfect,
			Rarity: RarityEpic,
			Reason: "No mistakes",
		})
	}
	if res.CertificateEligible {
		awards = append(awards, GemAward{
			Type:   GemCertificate,
			Rarity: RarityLegendary,
			Reason: "Earned a certificate",
		})
	}

	now := s.now()
	for i := range awards {
		awards[i].UserID = userID
		awards[i].AttemptID = attemptID
		awards[i].AwardedAt = now
		s.persist(ctx, &awards[i])
	}
	return awards
}

func (s *Service) persist(ctx context.Context, award *GemAward) {
	if s.eventRepo == nil {
		return
	}
	detail, _ := json.Marshal(award)
	err := s.eventRepo.AppendSessionEvent(ctx, store.SessionEventData{
		AttemptID: award.AttemptID,
		UserID:    award.UserID,
		Action:    ActionGem,
		Detail:    string(detail),
	})
	if err != nil {
		s.log.WithError(err).WithField("gem", award.Type).Warn("failed to record gem")
	}
}
