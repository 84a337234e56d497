package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/zapquiz/internal/ui/render"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show a learner's hearts, ZAPs and XP",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		bal, err := a.orch.Balance(cmd.Context(), user)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Balance(bal))
		return nil
	},
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the learners with the most XP",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.orch.Leaderboard(cmd.Context(), limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), render.Leaderboard(entries))
		return nil
	},
}

func init() {
	balanceCmd.Flags().String("user", "local", "Learner id")
	leaderboardCmd.Flags().Int("limit", 10, "Number of learners to show")
}
