// ABOUTME: "sessions" commands: list, show, clear, stats and events

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/store"
)

func newSessionsCmd(opts *globalOpts) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage conversation sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSessions(cmd, opts, tenantID)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "only sessions of this tenant")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSessions(cmd, opts, tenantID)
		},
	}
	list.Flags().StringVar(&tenantID, "tenant", "", "only sessions of this tenant")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			sess, err := opts.client().Session(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("Session ")+idStyle.Render(sess.ID))
			fmt.Fprintf(out, "  Tenant:         %s\n", sess.TenantID)
			fmt.Fprintf(out, "  User:           %s\n", sess.UserID)
			fmt.Fprintf(out, "  Channel:        %s\n", sess.Channel)
			fmt.Fprintf(out, "  Created:        %s\n", formatTime(sess.CreatedAt))
			fmt.Fprintf(out, "  Last activity:  %s\n", formatTime(sess.LastActivity))
			if len(sess.Metadata) > 0 {
				fmt.Fprintln(out, "  Metadata:")
				for _, k := range sess.Metadata.Keys() {
					fmt.Fprintf(out, "    %s = %s\n", k, sess.Metadata[k].Text())
				}
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if err := opts.client().ClearSession(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓")+" cleared session "+args[0])
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show session counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			st, err := opts.client().SessionStats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d\n", headerStyle.Render("Total sessions:"), st.TotalSessions)

			byChannel := map[string]int{}
			byTenant := map[string]int{}
			for _, s := range st.Sessions {
				byChannel[string(s.Channel)]++
				byTenant[s.TenantID]++
			}
			printCounts(cmd, "By channel", byChannel)
			printCounts(cmd, "By tenant", byTenant)
			return nil
		},
	}

	var limit int
	events := &cobra.Command{
		Use:   "events <session-id>",
		Short: "Show the ledger events of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			evs, err := opts.client().SessionEvents(ctx, args[0], limit)
			if err != nil {
				return err
			}
			printEvents(cmd, evs)
			return nil
		},
	}
	events.Flags().IntVar(&limit, "limit", 0, "maximum number of events (server default when 0)")

	cmd.AddCommand(list, show, clearCmd, stats, events)
	return cmd
}

func listSessions(cmd *cobra.Command, opts *globalOpts, tenantID string) error {
	ctx, cancel := opts.context(cmd)
	defer cancel()

	sessions, err := opts.client().ListSessions(ctx, tenantID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No active sessions."))
		return nil
	}

	w := newTable(out)
	fmt.Fprintln(w, "SESSION\tTENANT\tUSER\tCHANNEL\tLAST ACTIVITY")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.TenantID, s.UserID, s.Channel, formatTime(s.LastActivity))
	}
	return w.Flush()
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(title))
	w := newTable(out)
	for _, k := range sortedKeys(counts) {
		fmt.Fprintf(w, "  %s\t%s\n", k, strconv.Itoa(counts[k]))
	}
	_ = w.Flush()
}

func printEvents(cmd *cobra.Command, events []store.LedgerEvent) {
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No events."))
		return
	}
	w := newTable(out)
	fmt.Fprintln(w, "TIME\tDIRECTION\tAUTHOR\tTYPE\tTEXT")
	for _, e := range events {
		dir := "→"
		if e.Direction == store.EventDirectionOutbound {
			dir = "←"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", formatTime(e.Timestamp), dir, e.Author, e.Type, truncate(e.Text, 60))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
