package player

import (
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/zapquiz/internal/gems"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/ui/render"
	"github.com/abhisek/zapquiz/internal/ui/theme"
)

func (m *Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	v.SetContent(m.Render())
	return v
}

// Render draws the current screen as a string.
func (m *Model) Render() string {
	if m.confirmExit {
		return lines(
			theme.Banner.Render("Leave now? Your progress is saved."),
			m.hint("y leave · n keep going"),
		)
	}

	var body string
	switch m.view.Phase {
	case quiz.PhaseTesting, quiz.PhaseMistakeReview:
		body = m.renderQuestion()
	case quiz.PhaseSuccessCelebration:
		body = lines(render.Celebration(), m.hint("enter continue"))
	case quiz.PhaseCompleting, quiz.PhaseFinalizing:
		body = theme.Hint.Render("Scoring your answers...")
		if m.err != nil {
			body = ""
		}
	case quiz.PhaseResults, quiz.PhasePostResult:
		body = m.renderResult()
	case quiz.PhaseBlocked:
		body = m.renderBlocked()
	case quiz.PhaseClosed:
		body = theme.Hint.Render("Progress saved. See you soon!")
	default:
		body = theme.Hint.Render("Loading...")
	}

	return lines(body, m.notice, m.renderError())
}

func (m *Model) renderQuestion() string {
	v := m.view
	header := lines(render.Status(v), render.Progress(v, m.width))
	if v.ReviewIntroPending {
		return lines(header, render.ReviewIntro(v.FailedCount), m.hint("enter start"))
	}
	if v.Question == nil {
		return header
	}

	card := render.Question(*v.Question)
	if v.Answer != nil {
		return lines(header, card, m.feedback, m.hint("enter continue · esc quit"))
	}
	input := m.input.View()
	if m.busy {
		input = theme.Hint.Render("Checking...")
	}
	return lines(header, card, input, m.hint("enter submit · esc quit"))
}

func (m *Model) renderResult() string {
	if m.view.Result == nil {
		return ""
	}
	var earned []gems.GemAward
	if m.result != nil {
		earned = m.result.Gems
	}
	return lines(render.Result(*m.view.Result, earned), m.hint("enter continue"))
}

func (m *Model) renderBlocked() string {
	if m.balance == nil {
		return lines(m.feedback, theme.Incorrect.Render("You are out of hearts."))
	}
	return lines(m.feedback, render.Blocked(*m.balance, m.price),
		m.hint("b buy a heart · a watch an ad · q quit"))
}

func (m *Model) renderError() string {
	if m.err == nil {
		return ""
	}
	return lines(theme.Incorrect.Render("Something went wrong: "+m.err.Error()), m.hint("enter retry"))
}

// lines joins the non-empty parts with blank lines.
func lines(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
