// ABOUTME: "tail" command: follows live message traffic over the event stream

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/store"
)

func newTailCmd(opts *globalOpts) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow live message traffic until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			scope := "all tenants"
			if tenantID != "" {
				scope = "tenant " + tenantID
			}
			fmt.Fprintln(out, dimStyle.Render("Following "+scope+", Ctrl-C to stop."))

			err := opts.client().StreamEvents(cmd.Context(), tenantID, func(ev store.LedgerEvent) {
				fmt.Fprintln(out, formatTailLine(ev))
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "only this tenant's traffic")
	return cmd
}

func formatTailLine(ev store.LedgerEvent) string {
	arrow := successStyle.Render("→")
	if ev.Direction == store.EventDirectionOutbound {
		arrow = idStyle.Render("←")
	}
	text := ev.Text
	if ev.Type == store.EventTypeError {
		text = errorStyle.Render(text)
	}
	return fmt.Sprintf("%s %s %s %s %s %s",
		dimStyle.Render(ev.Timestamp.Local().Format("15:04:05")),
		arrow,
		headerStyle.Render(ev.TenantID),
		dimStyle.Render(ev.Channel+"/"+ev.SessionID),
		ev.Author+":",
		text,
	)
}
