package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/jwt"
)

const jwtSecretEnv = "AUTH_JWT_SECRET"

func newTokenCommand() *cobra.Command {
	var secret, subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv(jwtSecretEnv)
			}
			if secret == "" {
				return errors.New("jwt secret required (--secret or " + jwtSecretEnv + ")")
			}

			token, err := jwt.IssueToken(secret, subject)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "admin JWT secret")
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	return cmd
}
