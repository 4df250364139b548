// ABOUTME: "health" command: overall gateway status and per-tenant agent reachability

package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/gateway"
)

var errUnhealthy = errors.New("gateway is unhealthy")

func newHealthCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show gateway and agent health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			h, err := opts.client().Health(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Status:"), renderStatus(h.Status))
			fmt.Fprintf(out, "%s %d\n", headerStyle.Render("Adapters:"), len(h.Adapters))

			tenants := append([]string(nil), h.Tenants...)
			sort.Strings(tenants)
			w := newTable(out)
			fmt.Fprintln(w, "TENANT\tAGENT")
			for _, id := range tenants {
				agent := errorStyle.Render("unreachable")
				if h.AgentHealth[id] {
					agent = successStyle.Render("ok")
				}
				fmt.Fprintf(w, "%s\t%s\n", id, agent)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if h.Status == gateway.StatusUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}
}

func renderStatus(s gateway.Status) string {
	switch s {
	case gateway.StatusHealthy:
		return successStyle.Render(string(s))
	case gateway.StatusDegraded:
		return warningStyle.Render(string(s))
	default:
		return errorStyle.Render(string(s))
	}
}
