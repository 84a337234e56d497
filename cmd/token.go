package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/zapquiz/internal/httpapi"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token for a learner",
	Long: `Issue a signed bearer token for the HTTP API.

The signing secret comes from http.jwt_secret (ZAPQUIZ_HTTP_JWT_SECRET).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			return fmt.Errorf("--user is required")
		}
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		tokens, err := httpapi.NewTokens(cfg.HTTP.JWTSecret, cfg.HTTP.TokenTTL)
		if err != nil {
			return err
		}
		tok, err := tokens.Issue(user)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("user", "", "Learner id to issue the token for")
}
