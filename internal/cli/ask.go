// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/ui"
)

// askView shows only the new turn; stored history stays hidden.
type askView struct {
	*ui.Terminal
}

func (askView) ShowHistory(string, []api.Message) {}

// askResult is the --json payload of ask.
type askResult struct {
	SessionID  string   `json:"session_id"`
	Reply      string   `json:"reply"`
	DurationMs int64    `json:"duration_ms"`
	Warnings   []string `json:"warnings,omitempty"`
}

func newAskCmd(app *App) *cobra.Command {
	var (
		sessionArg string
		latest     bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "ask [message...]",
		Short: "Send one message and print the reply",
		Long: `Send one message and print the streamed reply.

By default the message starts a new session titled after it. Use --session
to add to an existing one or --continue for the most recent. With no
arguments, or "-", the message is read from stdin.`,
		Example: `  rigchat ask "search golang generics"
  echo "summarize today's news" | rigchat ask
  rigchat ask --continue "and tomorrow?"
  rigchat ask --json "hello"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			text := strings.Join(args, " ")
			if text == "" || text == "-" {
				data, err := io.ReadAll(app.In)
				if err != nil {
					return err
				}
				text = string(data)
			}
			if strings.TrimSpace(text) == "" {
				return usageErrorf("nothing to ask: pass a message or pipe one on stdin")
			}

			out := app.Out
			if jsonOut {
				out = io.Discard
			}
			term := app.terminalTo(out, false)
			// Notices go to stderr so --json output stays parseable.
			warn := func(msg string) {
				ui.NewTerminal(ui.Options{Out: app.ErrOut, Color: "never"}).Warn(msg)
			}
			ctrl, err := app.controller(askView{term}, warn)
			if err != nil {
				return err
			}

			if sessionArg != "" || latest {
				reg := ctrl.Registry()
				if err := reg.Refresh(ctx); err != nil {
					if api.IsUnauthorized(err) {
						warn(loginHint)
					}
					return err
				}
				if sessionArg != "" {
					id, err := resolveSession(reg.List(), sessionArg)
					if err != nil {
						return err
					}
					reg.Select(id)
				}
			}

			res, err := ctrl.Submit(ctx, text)
			term.Settle()

			return OutputJSON(app.Out, jsonOut, "ask", func() (any, error) {
				if err != nil {
					return nil, err
				}
				r := askResult{
					SessionID:  res.SessionID,
					Reply:      res.Reply,
					DurationMs: res.Duration.Milliseconds(),
				}
				for _, w := range res.Warnings {
					r.Warnings = append(r.Warnings, w.Error())
				}
				return r, nil
			})
		},
	}
	cmd.Flags().StringVarP(&sessionArg, "session", "s", "", "Add to this session (number or id)")
	cmd.Flags().BoolVarP(&latest, "continue", "c", false, "Add to the most recent session")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	cmd.MarkFlagsMutuallyExclusive("session", "continue")
	return cmd
}
