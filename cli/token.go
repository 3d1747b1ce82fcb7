package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenScope   string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long:  `Signs a bearer token for the HTTP API with AUTH_JWT_SECRET.`,
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "", "token subject (required)")
	tokenCmd.Flags().StringVar(&tokenScope, "scope", "predict", "token scope")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	if tokenService == nil {
		return errors.New("AUTH_JWT_SECRET is not set")
	}

	token, err := tokenService.IssueToken(tokenSubject, tokenScope, tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
