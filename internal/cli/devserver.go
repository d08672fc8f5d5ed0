// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/devserver"
)

func newDevserverCmd(app *App) *cobra.Command {
	var (
		addr   string
		cookie string
		sse    bool
		delay  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local scripted chat backend",
		Long: `Run an in-memory backend that speaks the same HTTP API as the real
service. Replies are scripted:

  search <topic>      a search notice, then a final answer
  summarize <topic>   search and summarizing notices, then an answer
  silent              a search notice that never completes
  anything else       echoed back in small chunks

Sessions and messages live in memory until the server stops.`,
		Example: `  rigchat devserver
  rigchat devserver --addr 127.0.0.1:8080 --sse
  rigchat devserver --cookie "session=secret"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := devserver.New(devserver.Options{
				Cookie:     cookie,
				ChunkDelay: delay,
				SSE:        sse,
				Logger:     app.logger,
			})
			err := srv.ListenAndServe(ctx, addr, func(a net.Addr) {
				fmt.Fprintf(app.Out, "devserver listening on http://%s (Ctrl+C to stop)\n", a)
			})
			if err != nil {
				return &CommandError{Command: "devserver", Action: "serve", Reason: addr, Err: err}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:5000", "Listen address")
	f.StringVar(&cookie, "require-cookie", "", "Reject requests whose Cookie header differs")
	f.BoolVar(&sse, "sse", false, "Stream replies as server-sent events")
	f.DurationVar(&delay, "delay", 40*time.Millisecond, "Pause between streamed chunks")
	return cmd
}
