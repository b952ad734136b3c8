package cli

import (
	"fmt"
	"time"

	"quiz-proctor-service/internal/config"
	"quiz-proctor-service/internal/identity"
	"github.com/spf13/cobra"
)

// NewTokenCmd issues a signed session token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := newAuthenticator(cfg).Issue(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	return cmd
}

func newAuthenticator(cfg config.Config) *identity.Authenticator {
	secret := cfg.Auth.Secret
	if secret == "" {
		secret = "dev-secret"
	}
	return identity.NewAuthenticator(secret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
}
