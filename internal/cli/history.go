// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/ui"
)

type historyOptions struct {
	format   string
	render   bool
	local    bool
	output   string
	noHeader bool
	theme    string
}

func newHistoryCmd(app *App) *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:   "history [n|id]",
		Short: "Show or export a session's messages",
		Long: `Show or export the messages of a session (default: the most recent).

Without --format the conversation is printed like the chat view. --render
formats it as markdown for the terminal. --format writes md, json, yaml or
html to stdout, or to a file in --output. --local reads the local archive
instead of the server.`,
		Example: `  rigchat history
  rigchat history 2 --render
  rigchat history 1 --format html --output ~/chats
  rigchat history --local --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "" {
				if _, err := export.NewExporter(opts.format, nil); err != nil {
					return &UsageError{Message: err.Error()}
				}
			}
			if opts.output != "" && opts.format == "" {
				return usageErrorf("--output needs --format")
			}
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}

			var (
				t   *export.Transcript
				err error
			)
			if opts.local {
				t, err = app.localTranscript(cmd.Context(), arg)
			} else {
				t, err = app.serverTranscript(cmd.Context(), arg)
			}
			if err != nil {
				return err
			}
			return app.showTranscript(t, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", "", "Export format: "+strings.Join(export.Formats, ", "))
	f.BoolVar(&opts.render, "render", false, "Render as formatted markdown")
	f.BoolVar(&opts.local, "local", false, "Read from the local archive")
	f.StringVarP(&opts.output, "output", "o", "", "Write the export into this directory")
	f.BoolVar(&opts.noHeader, "no-metadata", false, "Omit the metadata header from exports")
	f.StringVar(&opts.theme, "theme", "dark", "HTML export theme: dark or light")
	cmd.MarkFlagsMutuallyExclusive("format", "render")
	return cmd
}

func (a *App) serverTranscript(ctx context.Context, arg string) (*export.Transcript, error) {
	reg, err := a.registry(ctx)
	if err != nil {
		return nil, err
	}
	list := reg.List()
	if len(list) == 0 {
		return nil, &CommandError{Command: "history", Action: "show", Reason: "no sessions on the server"}
	}
	id := list[0].ID
	if arg != "" {
		if id, err = resolveSession(list, arg); err != nil {
			return nil, err
		}
	}
	sess, _ := reg.Get(id)

	client, err := a.client()
	if err != nil {
		return nil, err
	}
	msgs, err := client.FetchMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return export.NewTranscript(sess, msgs, export.SourceServer), nil
}

func (a *App) localTranscript(ctx context.Context, arg string) (*export.Transcript, error) {
	if !a.cfg.Archive.Enabled {
		return nil, usageErrorf("the local archive is disabled (set archive.enabled or RIGCHAT_ARCHIVE=1)")
	}
	arc, err := a.archive()
	if err != nil {
		return nil, err
	}
	metas, err := arc.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("history: %w", storage.ErrSessionNotFound)
	}

	list := make([]api.Session, len(metas))
	for i, m := range metas {
		list[i] = api.Session{ID: m.ID, Title: m.Title, CreatedAt: m.CreatedAt}
	}
	id := list[0].ID
	if arg != "" {
		if id, err = resolveSession(list, arg); err != nil {
			return nil, err
		}
	}
	msgs, err := arc.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	var sess api.Session
	for _, s := range list {
		if s.ID == id {
			sess = s
		}
	}
	return export.NewTranscript(sess, msgs, export.SourceArchive), nil
}

func (a *App) showTranscript(t *export.Transcript, opts historyOptions) error {
	switch {
	case opts.format != "":
		exp, err := export.NewExporter(opts.format, &export.Options{
			IncludeMetadata: !opts.noHeader,
			Theme:           opts.theme,
			Now:             time.Now,
		})
		if err != nil {
			return err
		}
		if opts.output != "" {
			path, err := export.ExportToFile(t, exp, opts.output)
			if err != nil {
				return &CommandError{Command: "history", Action: "export", Reason: "write failed", Err: err}
			}
			fmt.Fprintln(a.Out, path)
			return nil
		}
		return exp.Export(t, a.Out)

	case opts.render:
		style := "auto"
		if !ui.IsTerminal(a.Out) {
			style = "notty"
		}
		out, err := ui.RenderTranscript(t, ui.Width(a.Out), style)
		if err != nil {
			return err
		}
		fmt.Fprint(a.Out, out)
		return nil

	default:
		a.terminal(true).ShowHistory(t.SessionID, t.Messages)
		return nil
	}
}
