package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "zapquiz",
	Short:         "Quiz sessions with hearts, ZAPs and mistake review",
	Long:          "zapquiz runs unit, final and review quizzes with a heart economy, over HTTP or in the terminal.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default ./config.yaml when present)")
	rootCmd.PersistentFlags().String("db", "", "Path to the SQLite database file (overrides store.dsn)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides log.level)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}
