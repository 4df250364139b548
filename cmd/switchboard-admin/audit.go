// ABOUTME: "audit" command: queries the admin audit log with optional filters

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/adminclient"
)

func newAuditCmd(opts *globalOpts) *cobra.Command {
	var (
		q     adminclient.AuditQuery
		since string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show admin actions, newest first",
		Example: `  switchboard-admin audit --since 24h
  switchboard-admin audit --action remove_tenant --target-id acme`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				q.Since = t
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			entries, err := opts.client().Audit(ctx, q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, dimStyle.Render("No audit entries."))
				return nil
			}
			w := newTable(out)
			fmt.Fprintln(w, "TIME\tACTOR\tACTION\tTARGET")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\n", formatTime(e.Timestamp), orDash(e.Actor), e.Action, e.TargetType, e.TargetID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&q.Actor, "actor", "", "only entries by this token subject")
	cmd.Flags().StringVar(&q.Action, "action", "", "register_tenant, remove_tenant, update_agent or clear_session")
	cmd.Flags().StringVar(&q.TargetType, "target-type", "", "tenant or session")
	cmd.Flags().StringVar(&q.TargetID, "target-id", "", "id of the affected tenant or session")
	cmd.Flags().StringVar(&since, "since", "", "a duration back from now (24h) or an RFC3339 time")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of entries (server default when 0)")
	return cmd
}

// parseSince accepts either a duration relative to now or an absolute RFC3339 time.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want a duration like 24h or an RFC3339 time", s)
	}
	return t, nil
}
