// ABOUTME: "adapters" command: lists the channel adapters registered on the gateway

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAdaptersCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List registered channel adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			adapters, err := opts.client().Adapters(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(adapters) == 0 {
				fmt.Fprintln(out, dimStyle.Render("No adapters registered."))
				return nil
			}
			w := newTable(out)
			fmt.Fprintln(w, "NAME\tCHANNEL")
			for _, a := range adapters {
				fmt.Fprintf(w, "%s\t%s\n", a.Name, a.Channel)
			}
			return w.Flush()
		},
	}
}
