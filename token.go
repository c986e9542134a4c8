package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/summitlabs/summit-api/internal/httpapi"
)

func newTokenCmd() *cobra.Command {
	var (
		flagUser string
		flagTTL  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Long:  "Signs an HS256 bearer token with the configured secret. Intended for development and for issuing device credentials from provisioning scripts.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if loadedCfg.Auth.TokenSecret == "" {
				return errors.New("auth.token_secret must be set in the config file")
			}

			user := uuid.New()

			if flagUser != "" {
				parsed, err := uuid.Parse(flagUser)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}

				user = parsed
			}

			ttl := flagTTL
			if ttl == 0 {
				ttl = loadedCfg.Auth.TokenTTLValue()
			}

			token, err := httpapi.MintToken(loadedCfg.Auth.TokenSecret, user, ttl, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Printf("User:  %s\n", user)
			fmt.Printf("Token: %s\n", token)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagUser, "user", "", "user id (UUID); a fresh one is generated when omitted")
	cmd.Flags().DurationVar(&flagTTL, "ttl", 0, "token lifetime (default from config)")

	return cmd
}
