package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/abhisek/zapquiz/internal/orchestrator"
	"github.com/abhisek/zapquiz/internal/store"
)

type submitRequest struct {
	QuestionID string `json:"question_id" validate:"required,max=128"`
	Answer     string `json:"answer" validate:"max=4000"`
}

type reportRequest struct {
	QuestionID  string `json:"question_id" validate:"required,max=128"`
	Reason      string `json:"reason" validate:"required,oneof=wrong_answer typo unclear offensive other"`
	Description string `json:"description" validate:"max=1000"`
}

type historyEntry struct {
	Ledger    store.LedgerKind `json:"ledger"`
	Sequence  int64            `json:"sequence"`
	Type      string           `json:"type"`
	Amount    int              `json:"amount"`
	Reason    string           `json:"reason,omitempty"`
	AttemptID string           `json:"attempt_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func listLimit(c *fiber.Ctx) int {
	n := c.QueryInt("limit", defaultListLimit)
	return max(1, min(n, maxListLimit))
}

func (s *Server) session(c *fiber.Ctx) (*orchestrator.Session, error) {
	return s.orch.Session(c.Params("id"), userID(c))
}

func (s *Server) balance(c *fiber.Ctx) error {
	bal, err := s.orch.Balance(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return newSuccess(bal).Send(c)
}

func (s *Server) history(c *fiber.Ctx) error {
	entries, err := s.orch.Ledger.History(c.UserContext(), userID(c), listLimit(c))
	if err != nil {
		return err
	}
	out := make([]historyEntry, len(entries))
	for i, e := range entries {
		out[i] = historyEntry{
			Ledger:    e.Ledger,
			Sequence:  e.Sequence,
			Type:      e.Type,
			Amount:    e.Amount,
			Reason:    e.Reason,
			AttemptID: e.AttemptID,
			CreatedAt: e.CreatedAt,
		}
	}
	return newSuccess(out).Send(c)
}

func (s *Server) claimAdReward(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if _, err := s.orch.Balance(ctx, userID(c)); err != nil {
		return err
	}
	if _, err := s.orch.Ledger.ClaimAdReward(ctx, userID(c)); err != nil {
		return err
	}
	return s.balance(c)
}

func (s *Server) leaderboard(c *fiber.Ctx) error {
	top, err := s.orch.Leaderboard(c.UserContext(), listLimit(c))
	if err != nil {
		return err
	}
	return newSuccess(top).Send(c)
}

func (s *Server) startSession(c *fiber.Ctx) error {
	var req orchestrator.StartRequest
	if err := s.validator.ParseAndValidate(c, &req); err != nil {
		return err
	}
	if req.Mode == "" && req.ResumeAttemptID == "" {
		return &FieldsError{Fields: map[string]string{"mode": "mode is required unless resuming an attempt"}}
	}
	_, view, err := s.orch.Start(c.UserContext(), userID(c), req)
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"view": view}).Send(c)
}

func (s *Server) view(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"view": sess.View()}).Send(c)
}

func (s *Server) submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := s.validator.ParseAndValidate(c, &req); err != nil {
		return err
	}
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	out, err := sess.Submit(c.UserContext(), req.QuestionID, req.Answer)
	if err != nil {
		return err
	}
	return newSuccess(out).Send(c)
}

func (s *Server) advance(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	out, err := sess.Advance(c.UserContext())
	if err != nil {
		return err
	}
	return newSuccess(out).Send(c)
}

func (s *Server) acknowledgeStreak(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"view": sess.AcknowledgeStreak()}).Send(c)
}

func (s *Server) acknowledgeReviewIntro(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	view, err := sess.AcknowledgeReviewIntro()
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"view": view}).Send(c)
}

func (s *Server) continueAfterCelebration(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	view, err := sess.Continue()
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"view": view}).Send(c)
}

func (s *Server) complete(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	out, err := sess.Complete(c.UserContext())
	if err != nil {
		return err
	}
	return newSuccess(out).Send(c)
}

func (s *Server) purchaseHeart(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	out, err := sess.PurchaseHeart(c.UserContext())
	if err != nil {
		return err
	}
	return newSuccess(out).Send(c)
}

func (s *Server) heartModalClosed(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	view, err := sess.HeartModalClosed(c.UserContext())
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"view": view}).Send(c)
}

func (s *Server) sessionAdReward(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	bal, err := sess.ClaimAdReward(c.UserContext())
	if err != nil {
		return err
	}
	return newSuccess(bal).Send(c)
}

func (s *Server) dismiss(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	view, err := sess.Dismiss()
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"view": view}).Send(c)
}

func (s *Server) requestExit(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"confirm": sess.RequestExit()}).Send(c)
}

func (s *Server) exit(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return newSuccess(fiber.Map{"view": sess.Exit(c.UserContext())}).Send(c)
}

func (s *Server) report(c *fiber.Ctx) error {
	var req reportRequest
	if err := s.validator.ParseAndValidate(c, &req); err != nil {
		return err
	}
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	if err := sess.ReportProblem(c.UserContext(), req.QuestionID, req.Reason, req.Description); err != nil {
		return err
	}
	return newSuccess(fiber.Map{"reported": true}).Send(c)
}
