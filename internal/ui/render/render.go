// Package render draws quiz sessions as styled terminal text.
package render

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/gems"
	"github.com/abhisek/zapquiz/internal/leaderboard"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/ui/theme"
)

// Width is the inner width of cards.
const Width = 56

// Status renders the hearts, position and phase line.
func Status(v quiz.View) string {
	hearts := theme.Hearts.Render(strings.Repeat("♥", max(v.Hearts, 0)))
	if v.Hearts <= 0 {
		hearts = theme.Hint.Render("no hearts")
	}
	parts := []string{hearts}
	if v.QueueLength > 0 && v.Position > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d", v.Position, v.QueueLength))
	}
	if v.Streak > 0 {
		parts = append(parts, theme.Zaps.Render(fmt.Sprintf("streak %d", v.Streak)))
	}
	parts = append(parts, theme.Hint.Render(v.Phase.String()))
	return strings.Join(parts, "  ")
}

// Progress renders a bar for the share of the queue already passed.
func Progress(v quiz.View, width int) string {
	if v.QueueLength == 0 {
		return ""
	}
	done := max(v.Position-1, 0)
	filled := min(width*done/v.QueueLength, width)
	return theme.ProgressFilled.Render(strings.Repeat(" ", filled)) +
		theme.ProgressEmpty.Render(strings.Repeat(" ", width-filled))
}

// Question renders the question card with answering instructions.
func Question(q quiz.Question) string {
	p, err := content.DecodePayload(q.Type, q.Content)
	if err != nil {
		return theme.Card.Width(Width).Render(theme.Incorrect.Render("unreadable question " + q.ID))
	}

	var b strings.Builder
	switch p := p.(type) {
	case *content.MultipleChoicePayload:
		b.WriteString(theme.Title.Render(p.Prompt) + "\n\n")
		for i, opt := range p.Options {
			fmt.Fprintf(&b, "%s  %s\n", theme.Zaps.Render(fmt.Sprintf("%d)", i+1)), opt)
		}
		b.WriteString("\n" + theme.Hint.Render("Type the option number or text."))
	case *content.FillInBlankPayload:
		b.WriteString(theme.Title.Render(p.Prompt) + "\n\n")
		b.WriteString(theme.Hint.Render("Type the missing word."))
	case *content.TrueFalsePayload:
		b.WriteString(theme.Title.Render(p.Statement) + "\n\n")
		b.WriteString(theme.Hint.Render("True or false?"))
	case *content.OrderWordsPayload:
		if p.Prompt != "" {
			b.WriteString(theme.Title.Render(p.Prompt) + "\n\n")
		} else {
			b.WriteString(theme.Title.Render("Put the words in order") + "\n\n")
		}
		b.WriteString(theme.Body.Render(strings.Join(p.Words, " · ")) + "\n\n")
		b.WriteString(theme.Hint.Render("Type the sentence."))
	case *content.MatchingPayload:
		if p.Prompt != "" {
			b.WriteString(theme.Title.Render(p.Prompt) + "\n\n")
		} else {
			b.WriteString(theme.Title.Render("Match the pairs") + "\n\n")
		}
		lefts := make([]string, len(p.Pairs))
		rights := make([]string, len(p.Pairs))
		for i, pair := range p.Pairs {
			lefts[i] = pair.Left
			rights[len(p.Pairs)-1-i] = pair.Right
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			theme.Body.Render(strings.Join(lefts, "\n")),
			"    ",
			theme.Body.Render(strings.Join(rights, "\n")),
		) + "\n\n")
		b.WriteString(theme.Hint.Render(`Type JSON, e.g. {"left":"right"}.`))
	}
	return theme.Card.Width(Width).Render(b.String())
}

// Feedback renders the verdict on a submission.
func Feedback(out quiz.SubmitOutcome) string {
	if out.Correct {
		return theme.Correct.Render("✓ Correct!")
	}
	s := theme.Incorrect.Render("✗ Not quite.")
	if out.CorrectAnswer != "" {
		s += " " + theme.Body.Render("Answer: "+out.CorrectAnswer)
	}
	if out.Requeued {
		s += "\n" + theme.Hint.Render("You will see this one again.")
	}
	return s
}

// Streak renders the streak celebration.
func Streak(n int, gem *gems.GemAward) string {
	s := fmt.Sprintf("🔥 %d in a row!", n)
	if gem != nil {
		s += fmt.Sprintf("  %s %s gem", gem.Type.Icon(), gem.Rarity.DisplayName())
	}
	return theme.Banner.Render(s)
}

// ReviewIntro renders the banner shown before mistake review.
func ReviewIntro(failed int) string {
	return theme.Banner.Render(fmt.Sprintf("Let's review the %d you missed.", failed))
}

// Celebration renders the banner for a flawless first pass.
func Celebration() string {
	return theme.Banner.Render("Flawless! Every answer right the first time.")
}

// Blocked renders the out-of-hearts prompt.
func Blocked(bal economy.Balance, price int) string {
	lines := []string{
		theme.Incorrect.Render("You are out of hearts."),
		fmt.Sprintf("You have %s.", theme.Zaps.Render(fmt.Sprintf("%d ZAPs", bal.Zaps))),
	}
	if !bal.NextHeartAt.IsZero() {
		lines = append(lines, theme.Hint.Render("Next free heart at "+bal.NextHeartAt.Local().Format("15:04")))
	}
	lines = append(lines, fmt.Sprintf("A heart costs %s.", theme.Zaps.Render(fmt.Sprintf("%d ZAPs", price))))
	return theme.Card.Width(Width).Render(strings.Join(lines, "\n"))
}

// Result renders the completion summary and earned gems.
func Result(r quiz.Result, earned []gems.GemAward) string {
	verdict := theme.Incorrect.Render("Not passed yet")
	if r.Passed {
		verdict = theme.Correct.Render("Passed!")
	}
	lines := []string{
		verdict,
		fmt.Sprintf("Score %.0f%%  (%d/%d first try)", r.Score, r.CorrectAnswers, r.TotalQuestions),
		fmt.Sprintf("+%d XP  in %ds", r.ExperienceGained, r.TimeElapsedSeconds),
	}
	if r.ZapsAwarded > 0 {
		lines = append(lines, theme.Zaps.Render(fmt.Sprintf("+%d ZAPs", r.ZapsAwarded)))
	}
	if r.CertificateEligible {
		lines = append(lines, theme.Title.Render("Certificate earned"))
	}
	for _, g := range earned {
		lines = append(lines, fmt.Sprintf("%s %s %s", g.Type.Icon(), g.Rarity.DisplayName(), g.Type.DisplayName()))
	}
	return theme.Card.Width(Width).Render(strings.Join(lines, "\n"))
}

// Balance renders a balance summary.
func Balance(b economy.Balance) string {
	s := fmt.Sprintf("%s %d/%d   %s   %d XP",
		theme.Hearts.Render("♥"), b.Hearts, b.MaxHearts,
		theme.Zaps.Render(fmt.Sprintf("%d ZAPs", b.Zaps)),
		b.XP)
	if !b.NextHeartAt.IsZero() {
		s += "\n" + theme.Hint.Render("Next heart at "+b.NextHeartAt.Local().Format("Jan 2 15:04"))
	}
	return s
}

// Leaderboard renders ranked entries.
func Leaderboard(entries []leaderboard.Entry) string {
	if len(entries) == 0 {
		return theme.Hint.Render("No learners ranked yet.")
	}
	var b strings.Builder
	b.WriteString(theme.Title.Render("Leaderboard") + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%3d. %-24s %8d XP\n", e.Rank, e.UserID, e.XP)
	}
	return strings.TrimRight(b.String(), "\n")
}
