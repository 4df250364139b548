// ABOUTME: "chat" command: sends test messages through the web chat endpoint
// ABOUTME: One message from the arguments, or an interactive loop reading stdin

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/adminclient"
	"github.com/2389/switchboard/internal/message"
)

func newChatCmd(opts *globalOpts) *cobra.Command {
	var in message.Inbound

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Talk to a tenant's agent through the gateway",
		Long: `Send a message through POST /api/chat and print the agent's reply.

Without arguments, reads one message per line from stdin until EOF or /quit.
The session id returned by the first reply is reused for the following ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			if len(args) > 0 {
				in.Text = strings.Join(args, " ")
				_, err := sendChat(cmd, opts, client, &in)
				return err
			}
			return chatLoop(cmd, opts, client, &in)
		},
	}
	cmd.Flags().StringVar(&in.TenantID, "tenant", "", "tenant id (gateway default when empty)")
	cmd.Flags().StringVar(&in.SessionID, "session", "", "resume an existing session")
	cmd.Flags().StringVar(&in.UserID, "user", "admin-cli", "user id to send as")
	return cmd
}

func chatLoop(cmd *cobra.Command, opts *globalOpts, client *adminclient.Client, in *message.Inbound) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, dimStyle.Render("Type a message, /quit to exit."))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, headerStyle.Render("you› "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		in.Text = line
		resp, err := sendChat(cmd, opts, client, in)
		if err != nil {
			// keep the loop alive on transport errors
			fmt.Fprintln(out, errorStyle.Render("error:"), err)
			continue
		}
		if resp.SessionID != "" {
			in.SessionID = resp.SessionID
		}
	}
}

func sendChat(cmd *cobra.Command, opts *globalOpts, client *adminclient.Client, in *message.Inbound) (message.AgentResponse, error) {
	ctx, cancel := opts.context(cmd)
	defer cancel()

	resp, err := client.Chat(ctx, *in)
	if err != nil {
		return resp, err
	}
	printReply(cmd.OutOrStdout(), resp)
	return resp, nil
}

func printReply(out io.Writer, resp message.AgentResponse) {
	if !resp.Success {
		kind := resp.ErrorKind()
		if kind == "" {
			kind = "failed"
		}
		fmt.Fprintf(out, "%s %s\n", errorStyle.Render("agent ["+kind+"]›"), resp.Response)
		return
	}
	fmt.Fprintf(out, "%s %s\n", successStyle.Render("agent›"), resp.Response)
	if resp.SessionID != "" {
		fmt.Fprintln(out, dimStyle.Render("session "+resp.SessionID))
	}
}
