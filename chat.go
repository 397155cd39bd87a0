package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/team-mirai/mirai-gikai-sub000/chatclient"
)

var chatOpts struct {
	baseURL  string
	billID   string
	email    string
	password string
}

// chatCmd is a terminal respondent: each input line is one chat turn, and
// "/retry" resubmits a failed turn.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Answer a bill interview from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		transport := chatclient.NewHTTPTransport(chatOpts.baseURL, nil)
		if err := transport.Login(ctx, chatOpts.email, chatOpts.password); err != nil {
			return fmt.Errorf("failed to login: %w", err)
		}

		var printed int
		controller := chatclient.NewController(transport, func(d chatclient.Delta) {
			if len(d.Text) > printed {
				fmt.Fprint(out, d.Text[printed:])
				printed = len(d.Text)
			}
		})

		// An empty first turn lets the interviewer open the conversation
		line := ""
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			printed = 0

			var turn *chatclient.Turn
			var err error
			if line == "/retry" {
				turn, err = controller.Retry(ctx)
			} else {
				turn, err = controller.Submit(ctx, chatclient.Params{BillID: chatOpts.billID, Text: line})
			}

			var retryable *chatclient.RetryableError
			switch {
			case errors.As(err, &retryable):
				fmt.Fprintf(out, "\n[error] %v (type /retry to try again)\n", retryable.Err)
			case err != nil:
				return err
			default:
				printTurn(out, turn)
				if turn.NoOp || turn.Stage.IsTerminal() {
					return nil
				}
			}

			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line = strings.TrimSpace(scanner.Text())
		}
	},
}

func init() {
	flags := chatCmd.Flags()
	flags.StringVar(&chatOpts.baseURL, "url", "http://localhost:8080", "API base URL")
	flags.StringVar(&chatOpts.billID, "bill", "", "Bill ID")
	flags.StringVar(&chatOpts.email, "email", "", "Respondent email")
	flags.StringVar(&chatOpts.password, "password", os.Getenv("MIRAI_PASSWORD"), "Respondent password")
	chatCmd.MarkFlagRequired("bill")
	chatCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(chatCmd)
}

func printTurn(out io.Writer, turn *chatclient.Turn) {
	if turn.NoOp {
		fmt.Fprintln(out, "[interview already finished]")
		return
	}
	fmt.Fprintln(out)
	if msg := turn.Message; msg != nil {
		for i, reply := range msg.QuickReplies {
			fmt.Fprintf(out, "  (%d) %s\n", i+1, reply)
		}
		if msg.Report != nil {
			fmt.Fprintf(out, "[report] %s\n", msg.Report.Summary)
		}
	}
	if turn.Progress != nil {
		fmt.Fprintf(out, "[%d%%", turn.Progress.Percentage)
		if turn.RemainingMinutes != nil {
			fmt.Fprintf(out, ", %d min left", *turn.RemainingMinutes)
		}
		fmt.Fprintln(out, "]")
	}
}
