package player

import (
	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/orchestrator"
	"github.com/abhisek/zapquiz/internal/quiz"
)

// submittedMsg carries the grade of a submitted answer.
type submittedMsg struct {
	Result orchestrator.SubmitResult
	Err    error
}

// advancedMsg is sent when the session has moved past a question.
type advancedMsg struct {
	Outcome quiz.Outcome
	Err     error
}

// completedMsg carries the outcome of finalizing the attempt.
type completedMsg struct {
	Result orchestrator.CompleteResult
	Err    error
}

// balanceMsg carries the balance shown on the out-of-hearts card.
type balanceMsg struct {
	Balance economy.Balance
	Err     error
}

// purchasedMsg is sent after a heart purchase attempt.
type purchasedMsg struct {
	Result orchestrator.PurchaseResult
	Err    error
}

// adRewardMsg is sent after an ad reward claim.
type adRewardMsg struct {
	Balance economy.Balance
	Err     error
}

// modalClosedMsg is sent after the out-of-hearts card is dismissed.
type modalClosedMsg struct {
	View quiz.View
	Err  error
}

// exitedMsg is sent once the session has been closed.
type exitedMsg struct {
	View quiz.View
}
