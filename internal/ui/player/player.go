// Package player is the interactive terminal client for one quiz session.
// The Model draws the session view and forwards keys to the session
// handlers; every phase change comes from the session itself.
package player

import (
	"context"
	"errors"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/orchestrator"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/ui/render"
	"github.com/abhisek/zapquiz/internal/ui/theme"
)

// Session is the part of an open session the player drives.
type Session interface {
	UserID() string
	View() quiz.View
	Submit(ctx context.Context, questionID, answer string) (orchestrator.SubmitResult, error)
	Advance(ctx context.Context) (quiz.Outcome, error)
	AcknowledgeStreak() quiz.View
	AcknowledgeReviewIntro() (quiz.View, error)
	Continue() (quiz.View, error)
	Complete(ctx context.Context) (orchestrator.CompleteResult, error)
	PurchaseHeart(ctx context.Context) (orchestrator.PurchaseResult, error)
	ClaimAdReward(ctx context.Context) (economy.Balance, error)
	HeartModalClosed(ctx context.Context) (quiz.View, error)
	Dismiss() (quiz.View, error)
	RequestExit() bool
	Exit(ctx context.Context) quiz.View
}

// Wallet reads a learner's balances.
type Wallet interface {
	Balance(ctx context.Context, userID string) (economy.Balance, error)
}

var _ Session = (*orchestrator.Session)(nil)

// Model is the root Bubble Tea model of the play command.
type Model struct {
	ctx    context.Context
	sess   Session
	wallet Wallet
	price  int

	input textinput.Model
	view  quiz.View
	width int

	// busy is set while a session call runs in a command.
	busy        bool
	confirmExit bool

	feedback string
	notice   string
	err      error

	balance *economy.Balance
	result  *orchestrator.CompleteResult
}

var _ tea.Model = (*Model)(nil)

// New creates a Model for an already started session. price is the heart
// price in ZAPs shown on the out-of-hearts card.
func New(ctx context.Context, sess Session, wallet Wallet, price int) *Model {
	ti := textinput.New()
	ti.Placeholder = "Type your answer..."
	ti.CharLimit = 200
	ti.Focus()

	return &Model{
		ctx:    ctx,
		sess:   sess,
		wallet: wallet,
		price:  price,
		input:  ti,
		view:   sess.View(),
		width:  render.Width,
	}
}

// Result returns the completion outcome once the attempt was finalized.
func (m *Model) Result() *orchestrator.CompleteResult {
	return m.result
}

// Phase returns the phase of the last session view.
func (m *Model) Phase() quiz.Phase {
	return m.view.Phase
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.input.Focus(), m.enter())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = min(max(msg.Width-4, 20), render.Width)
		return m, nil

	case submittedMsg:
		return m.handleSubmitted(msg)

	case advancedMsg:
		m.busy = false
		m.feedback = ""
		m.notice = ""
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.view = msg.Outcome.View
		return m, m.enter()

	case completedMsg:
		m.busy = false
		if msg.Err != nil {
			m.err = msg.Err
			m.view = m.sess.View()
			return m, nil
		}
		if msg.Result.Result != nil && m.result == nil {
			r := msg.Result
			m.result = &r
		}
		m.view = msg.Result.View
		return m, m.enter()

	case balanceMsg:
		m.busy = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.balance = &msg.Balance
		return m, nil

	case purchasedMsg:
		m.busy = false
		switch {
		case errors.Is(msg.Err, economy.ErrInsufficientFunds):
			m.notice = "Not enough ZAPs."
		case errors.Is(msg.Err, economy.ErrAtCapacity):
			m.notice = "Your hearts are already full."
		case msg.Err != nil:
			m.err = msg.Err
		default:
			m.balance = &msg.Result.Balance
		}
		m.view = m.sess.View()
		return m, m.enter()

	case adRewardMsg:
		m.busy = false
		switch {
		case errors.Is(msg.Err, economy.ErrAdLimitReached):
			m.notice = "No more ads today."
		case msg.Err != nil:
			m.err = msg.Err
		default:
			m.balance = &msg.Balance
			m.notice = "Thanks for watching!"
		}
		return m, nil

	case modalClosedMsg:
		m.busy = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.view = msg.View
		return m, m.enter()

	case exitedMsg:
		m.busy = false
		m.view = msg.View
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.answering() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// enter starts the work a phase needs without a key press.
func (m *Model) enter() tea.Cmd {
	switch m.view.Phase {
	case quiz.PhaseCompleting:
		return m.complete()
	case quiz.PhaseBlocked:
		m.balance = nil
		return m.loadBalance()
	case quiz.PhaseClosed:
		return tea.Quit
	}
	return nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.view = m.sess.Exit(m.ctx)
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	if m.confirmExit {
		switch key {
		case "y", "Y":
			m.confirmExit = false
			return m, m.exit()
		case "n", "N", "esc":
			m.confirmExit = false
		}
		return m, nil
	}

	if m.err != nil && key == "enter" {
		return m, m.retry()
	}
	m.err = nil

	switch m.view.Phase {
	case quiz.PhaseTesting, quiz.PhaseMistakeReview:
		return m.handleAnsweringKey(msg)

	case quiz.PhaseSuccessCelebration:
		if key == "enter" {
			v, err := m.sess.Continue()
			m.view, m.err = v, err
			return m, m.enter()
		}

	case quiz.PhaseResults, quiz.PhasePostResult:
		if key == "enter" {
			v, err := m.sess.Dismiss()
			m.view, m.err = v, err
			return m, m.enter()
		}

	case quiz.PhaseBlocked:
		m.notice = ""
		switch key {
		case "b":
			return m, m.purchase()
		case "a":
			return m, m.watchAd()
		case "q", "esc":
			return m, m.closeModal()
		}

	case quiz.PhaseClosed:
		return m, tea.Quit
	}

	if key == "esc" {
		return m, m.requestExit()
	}
	return m, nil
}

func (m *Model) handleAnsweringKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	v := m.view
	switch {
	case key == "esc":
		return m, m.requestExit()

	case v.ReviewIntroPending:
		if key == "enter" {
			view, err := m.sess.AcknowledgeReviewIntro()
			m.view, m.err = view, err
		}
		return m, nil

	case v.Answer != nil:
		if key == "enter" {
			return m, m.advance()
		}
		return m, nil

	case key == "enter":
		answer := strings.TrimSpace(m.input.Value())
		if answer == "" || v.Question == nil {
			return m, nil
		}
		return m, m.submit(v.Question.ID, answer)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleSubmitted(msg submittedMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.Err != nil {
		m.err = msg.Err
		m.view = m.sess.View()
		return m, nil
	}
	res := msg.Result
	m.feedback = render.Feedback(res.SubmitOutcome)
	m.notice = ""
	if res.StreakReached {
		m.notice = render.Streak(res.View.Streak, res.Gem)
		res.View = m.sess.AcknowledgeStreak()
	}
	m.input.Reset()
	m.view = res.View
	return m, m.enter()
}

// retry repeats the call that failed in the current phase.
func (m *Model) retry() tea.Cmd {
	m.err = nil
	v := m.view
	switch {
	case v.Phase == quiz.PhaseCompleting:
		return m.complete()
	case v.Phase == quiz.PhaseBlocked:
		return m.loadBalance()
	case v.Answer != nil:
		return m.advance()
	case v.Question != nil && strings.TrimSpace(m.input.Value()) != "":
		return m.submit(v.Question.ID, strings.TrimSpace(m.input.Value()))
	}
	return nil
}

func (m *Model) requestExit() tea.Cmd {
	if m.sess.RequestExit() {
		m.confirmExit = true
		return nil
	}
	return m.exit()
}

func (m *Model) answering() bool {
	phase := m.view.Phase
	return !m.busy && !m.confirmExit &&
		(phase == quiz.PhaseTesting || phase == quiz.PhaseMistakeReview) &&
		!m.view.ReviewIntroPending && m.view.Answer == nil
}

func (m *Model) submit(questionID, answer string) tea.Cmd {
	m.busy = true
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		res, err := sess.Submit(ctx, questionID, answer)
		return submittedMsg{Result: res, Err: err}
	}
}

func (m *Model) advance() tea.Cmd {
	m.busy = true
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		out, err := sess.Advance(ctx)
		return advancedMsg{Outcome: out, Err: err}
	}
}

func (m *Model) complete() tea.Cmd {
	m.busy = true
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		res, err := sess.Complete(ctx)
		return completedMsg{Result: res, Err: err}
	}
}

func (m *Model) loadBalance() tea.Cmd {
	if m.wallet == nil {
		return nil
	}
	m.busy = true
	ctx, wallet, user := m.ctx, m.wallet, m.sess.UserID()
	return func() tea.Msg {
		bal, err := wallet.Balance(ctx, user)
		return balanceMsg{Balance: bal, Err: err}
	}
}

func (m *Model) purchase() tea.Cmd {
	m.busy = true
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		res, err := sess.PurchaseHeart(ctx)
		return purchasedMsg{Result: res, Err: err}
	}
}

func (m *Model) watchAd() tea.Cmd {
	m.busy = true
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		bal, err := sess.ClaimAdReward(ctx)
		return adRewardMsg{Balance: bal, Err: err}
	}
}

func (m *Model) closeModal() tea.Cmd {
	m.busy = true
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		v, err := sess.HeartModalClosed(ctx)
		return modalClosedMsg{View: v, Err: err}
	}
}

func (m *Model) exit() tea.Cmd {
	m.busy = true
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		return exitedMsg{View: sess.Exit(ctx)}
	}
}

func (m *Model) hint(keys string) string {
	return theme.Hint.Render(keys)
}
