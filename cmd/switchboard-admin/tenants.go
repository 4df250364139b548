// ABOUTME: "tenants" commands: list, show, register, remove, set-agent and events
// ABOUTME: Secrets come back redacted from the API and are printed as-is

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/tenant"
)

func newTenantsCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "List and manage tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTenants(cmd, opts)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTenants(cmd, opts)
		},
	}

	show := &cobra.Command{
		Use:   "show <tenant-id>",
		Short: "Show a tenant's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			cfg, err := opts.client().Tenant(ctx, args[0])
			if err != nil {
				return err
			}
			printTenant(cmd.OutOrStdout(), cfg)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <tenant-id>",
		Short: "Remove a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if err := opts.client().RemoveTenant(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓")+" removed tenant "+args[0])
			return nil
		},
	}

	var limit int
	events := &cobra.Command{
		Use:   "events <tenant-id>",
		Short: "Show a tenant's most recent ledger events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			evs, err := opts.client().TenantEvents(ctx, args[0], limit)
			if err != nil {
				return err
			}
			printEvents(cmd, evs)
			return nil
		},
	}
	events.Flags().IntVar(&limit, "limit", 0, "maximum number of events (server default when 0)")

	cmd.AddCommand(list, show, newRegisterCmd(opts), remove, newSetAgentCmd(opts), events)
	return cmd
}

func newRegisterCmd(opts *globalOpts) *cobra.Command {
	var (
		file      string
		cfg       tenant.Config
		timeout   time.Duration
		enableWeb bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a tenant from flags or a JSON file",
		Example: `  switchboard-admin tenants register --id acme --name "Acme" --invoke-url http://agent:3000/api/chat --web
  switchboard-admin tenants register --file acme.json
  cat acme.json | switchboard-admin tenants register --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				loaded, err := readTenantFile(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				cfg = loaded
			} else {
				if cfg.TenantID == "" {
					return errors.New("--id is required unless --file is given")
				}
				cfg.Web.Enabled = enableWeb
				cfg.Agent.TimeoutMS = timeout.Milliseconds()
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			registered, err := opts.client().RegisterTenant(ctx, cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, successStyle.Render("✓")+" registered tenant "+registered.TenantID)
			printTenant(out, registered)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `tenant JSON file ("-" for stdin)`)
	cmd.Flags().StringVar(&cfg.TenantID, "id", "", "tenant id")
	cmd.Flags().StringVar(&cfg.Name, "name", "", "display name")
	cmd.Flags().StringVar(&cfg.Agent.InvokeURL, "invoke-url", "", "agent endpoint")
	cmd.Flags().DurationVar(&timeout, "agent-timeout", 0, "agent call timeout (default 30s)")
	cmd.Flags().BoolVar(&enableWeb, "web", false, "enable the web channel")
	cmd.MarkFlagsMutuallyExclusive("file", "id")
	return cmd
}

func newSetAgentCmd(opts *globalOpts) *cobra.Command {
	var (
		invokeURL string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "set-agent <tenant-id>",
		Short: "Point a tenant at a different agent endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if invokeURL == "" && timeout == 0 {
				return errors.New("nothing to change: pass --invoke-url or --agent-timeout")
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			cfg, err := opts.client().SetAgent(ctx, args[0], invokeURL, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s now uses %s (timeout %s)\n",
				successStyle.Render("✓"), cfg.TenantID, cfg.Agent.URL(), cfg.Agent.Timeout())
			return nil
		},
	}
	cmd.Flags().StringVar(&invokeURL, "invoke-url", "", "agent endpoint (unchanged when empty)")
	cmd.Flags().DurationVar(&timeout, "agent-timeout", 0, "agent call timeout (unchanged when 0)")
	return cmd
}

func readTenantFile(stdin io.Reader, path string) (tenant.Config, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return tenant.Config{}, fmt.Errorf("reading tenant file: %w", err)
	}

	var cfg tenant.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return tenant.Config{}, fmt.Errorf("parsing tenant file: %w", err)
	}
	return cfg, nil
}

func listTenants(cmd *cobra.Command, opts *globalOpts) error {
	ctx, cancel := opts.context(cmd)
	defer cancel()

	tenants, err := opts.client().ListTenants(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(tenants) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No tenants registered."))
		return nil
	}

	w := newTable(out)
	fmt.Fprintln(w, "TENANT\tNAME\tCHANNELS\tAGENT")
	for _, t := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.TenantID, orDash(t.Name), orDash(channelList(t)), t.Agent.URL())
	}
	return w.Flush()
}

func printTenant(out io.Writer, cfg tenant.Config) {
	fmt.Fprintln(out, headerStyle.Render("Tenant ")+idStyle.Render(cfg.TenantID))
	fmt.Fprintf(out, "  Name:      %s\n", orDash(cfg.Name))
	fmt.Fprintf(out, "  Channels:  %s\n", orDash(channelList(cfg)))
	fmt.Fprintf(out, "  Agent:     %s\n", cfg.Agent.URL())
	fmt.Fprintf(out, "  Timeout:   %s\n", cfg.Agent.Timeout())
	if cfg.Matrix.Enabled {
		fmt.Fprintf(out, "  Matrix:    %s on %s\n", orDash(cfg.Matrix.UserID), orDash(cfg.Matrix.Homeserver))
	}
}

func channelList(cfg tenant.Config) string {
	names := make([]string, 0, 4)
	for _, ch := range cfg.Channels() {
		names = append(names, string(ch))
	}
	return strings.Join(names, ",")
}
