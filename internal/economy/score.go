package economy

import (
	"math"
	"time"
)

// IdealTimePerQuestion is the per-question pace that earns the full speed bonus.
const IdealTimePerQuestion = 12 * time.Second

// XP weights. Reward balancing downstream depends on this split.
const (
	accuracyWeight = 0.7
	speedWeight    = 0.2
	retryWeight    = 0.1
)

// ScoreInput carries the attempt statistics used by ScoreAttempt.
type ScoreInput struct {
	Correct        int
	Incorrect      int
	Elapsed        time.Duration
	TotalQuestions int
	// TotalAttempts counts every submission, retries included.
	TotalAttempts int
	MaxXP         int
}

// ScoreAttempt returns the experience earned by an attempt.
func ScoreAttempt(in ScoreInput) int {
	answered := in.Correct + in.Incorrect
	if answered <= 0 || in.MaxXP <= 0 {
		return 0
	}
	accuracy := float64(in.Correct) / float64(answered)
	xp := float64(in.MaxXP) * (accuracyWeight*accuracy +
		speedWeight*SpeedBonus(in.Elapsed, in.TotalQuestions) +
		retryWeight*RetryFactor(in.TotalQuestions, in.TotalAttempts))
	return int(math.Round(xp))
}

// SpeedBonus is 1 within the ideal time, 0 at twice the ideal time or
// slower, and linear in between.
func SpeedBonus(elapsed time.Duration, totalQuestions int) float64 {
	ideal := time.Duration(totalQuestions) * IdealTimePerQuestion
	switch {
	case elapsed <= ideal:
		return 1
	case elapsed >= 2*ideal:
		return 0
	default:
		return float64(2*ideal-elapsed) / float64(ideal)
	}
}

// RetryFactor is totalQuestions/totalAttempts clamped to [0.5, 1].
func RetryFactor(totalQuestions, totalAttempts int) float64 {
	if totalAttempts <= 0 {
		return 1
	}
	f := float64(totalQuestions) / float64(totalAttempts)
	return math.Max(0.5, math.Min(1, f))
}

// FirstPassScore is the attempt score in percent: the share of first-pass
// questions that were never answered incorrectly. Retries of a failed
// question do not lower it further.
func FirstPassScore(firstPassCount, failed int) float64 {
	if firstPassCount <= 0 {
		return 0
	}
	if failed > firstPassCount {
		failed = firstPassCount
	}
	if failed < 0 {
		failed = 0
	}
	return float64(firstPassCount-failed) / float64(firstPassCount) * 100
}

// Passed reports whether score meets the pass threshold (both in percent).
func Passed(score, threshold float64) bool {
	return score >= threshold
}
