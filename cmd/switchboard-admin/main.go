// ABOUTME: Admin CLI for switchboard: sessions, tenants, adapters, audit log, live tail and test chat
// ABOUTME: Talks to the HTTP admin API; reads SWITCHBOARD_URL and SWITCHBOARD_TOKEN

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/adminclient"
)

var version = "dev"

type globalOpts struct {
	url     string
	token   string
	timeout time.Duration
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newRootCmd builds the command tree. Tests build their own tree per run.
func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:   "switchboard-admin",
		Short: "Manage a running switchboard gateway",
		Long: `Manage a running switchboard gateway over its admin API.

Environment:
  SWITCHBOARD_URL     Gateway base URL (default http://localhost:8080)
  SWITCHBOARD_TOKEN   Bearer token when the gateway has auth.jwt_secret set`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.url, "url", envOr("SWITCHBOARD_URL", "http://localhost:8080"), "gateway base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SWITCHBOARD_TOKEN"), "admin API bearer token")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newHealthCmd(opts),
		newSessionsCmd(opts),
		newTenantsCmd(opts),
		newAdaptersCmd(opts),
		newAuditCmd(opts),
		newChatCmd(opts),
		newTailCmd(opts),
		newTokenCmd(),
	)
	return root
}

func (o *globalOpts) client() *adminclient.Client {
	return adminclient.New(o.url, o.token)
}

func (o *globalOpts) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}
