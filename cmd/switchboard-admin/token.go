// ABOUTME: "token" commands: mint admin API bearer tokens offline from the shared secret

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/auth"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Create admin API tokens",
	}

	var (
		subject string
		role    string
		ttl     time.Duration
		secret  string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Sign a token with the gateway's jwt_secret",
		Example: `  SWITCHBOARD_JWT_SECRET=... switchboard-admin token create --subject alice --role admin --ttl 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("SWITCHBOARD_JWT_SECRET")
			}
			if secret == "" {
				return errors.New("--secret or SWITCHBOARD_JWT_SECRET is required")
			}
			if !auth.ValidRole(role) {
				return fmt.Errorf("%w: %q (want %s or %s)", auth.ErrUnknownRole, role, auth.RoleAdmin, auth.RoleViewer)
			}

			verifier, err := auth.NewJWTVerifier([]byte(secret))
			if err != nil {
				return err
			}
			token, err := verifier.Generate(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	create.Flags().StringVar(&subject, "subject", "", "identity recorded as the audit actor")
	create.Flags().StringVar(&role, "role", auth.RoleAdmin, "admin or viewer")
	create.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	create.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to SWITCHBOARD_JWT_SECRET)")
	_ = create.MarkFlagRequired("subject")

	cmd.AddCommand(create)
	return cmd
}
