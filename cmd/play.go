package cmd

import (
	"errors"
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/abhisek/zapquiz/internal/orchestrator"
	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/ui/player"
	"github.com/abhisek/zapquiz/internal/ui/render"
	"github.com/abhisek/zapquiz/internal/ui/theme"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a quiz in the terminal",
	Long: `Play a unit, final or review quiz in the terminal.

Pick exactly one of --unit, --final or --review. An unfinished attempt for
the same quiz is resumed unless --fresh is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		unit, _ := cmd.Flags().GetString("unit")
		final, _ := cmd.Flags().GetString("final")
		review, _ := cmd.Flags().GetBool("review")
		fresh, _ := cmd.Flags().GetBool("fresh")

		req := orchestrator.StartRequest{ResumeLatest: !fresh}
		picked := 0
		if unit != "" {
			req.Mode, req.UnitID = quiz.ModeUnit, unit
			picked++
		}
		if final != "" {
			req.Mode, req.CurriculumID = quiz.ModeFinal, final
			picked++
		}
		if review {
			req.Mode = quiz.ModeReview
			picked++
		}
		if picked != 1 {
			return errors.New("use exactly one of --unit, --final or --review")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		sess, _, err := a.orch.Start(ctx, user, req)
		if errors.Is(err, quiz.ErrNoQuestions) {
			fmt.Println("Nothing to play here yet.")
			return nil
		}
		if err != nil {
			return err
		}

		m := player.New(ctx, sess, a.orch, a.cfg.Economy.HeartPrice)
		if _, err := tea.NewProgram(m).Run(); err != nil {
			sess.Exit(ctx)
			return fmt.Errorf("run player: %w", err)
		}

		out := cmd.OutOrStdout()
		if res := m.Result(); res != nil && res.Result != nil {
			fmt.Fprintln(out, render.Result(*res.Result, res.Gems))
			return nil
		}
		fmt.Fprintln(out, theme.Hint.Render("Progress saved. See you soon!"))
		return nil
	},
}

func init() {
	playCmd.Flags().String("user", "local", "Learner id")
	playCmd.Flags().String("unit", "", "Unit id to play")
	playCmd.Flags().String("final", "", "Curriculum id of the final quiz to play")
	playCmd.Flags().Bool("review", false, "Play a review of recently missed questions")
	playCmd.Flags().Bool("fresh", false, "Start a new attempt even when one can be resumed")
}
