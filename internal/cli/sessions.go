// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/util"
)

// sessionInfo is the --json shape of a session.
type sessionInfo struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (a *App) registry(ctx context.Context) (*session.Registry, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	reg := session.NewRegistry(client, a.logger)
	if err := reg.Refresh(ctx); err != nil {
		if api.IsUnauthorized(err) {
			fmt.Fprintln(a.ErrOut, loginHint)
		}
		return nil, err
	}
	return reg, nil
}

func newSessionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "List and manage sessions",
		Long: `List and manage the sessions stored by the backend.

Sessions are numbered newest first; commands accept a number or an id.`,
		Example: `  rigchat sessions
  rigchat sessions new "Trip planning"
  rigchat sessions rm 3`,
	}
	list := newSessionsListCmd(app)
	cmd.RunE = list.RunE
	cmd.Flags().AddFlagSet(list.Flags())
	cmd.AddCommand(list, newSessionsNewCmd(app), newSessionsRmCmd(app))
	return cmd
}

func newSessionsListCmd(app *App) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return OutputJSON(app.Out, jsonOut, "sessions list", func() (any, error) {
				reg, err := app.registry(cmd.Context())
				if err != nil {
					return nil, err
				}
				list := reg.List()
				if !jsonOut {
					app.terminal(false).PrintSessions(list, "")
					return nil, nil
				}
				out := make([]sessionInfo, 0, len(list))
				for i, s := range list {
					info := sessionInfo{Index: i + 1, ID: s.ID, Title: s.Title}
					if !s.CreatedAt.IsZero() {
						info.CreatedAt = s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
					}
					out = append(out, info)
				}
				return out, nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func newSessionsNewCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "new [title...]",
		Short: "Create an empty session",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.registry(cmd.Context())
			if err != nil {
				return err
			}
			title := util.FlattenLines(strings.Join(args, " "))
			if title == "" {
				title = chat.DefaultTitle
			} else {
				title = chat.TitleFromMessage(title)
			}
			s, err := reg.Create(cmd.Context(), title)
			if err != nil {
				return &CommandError{Command: "sessions", Action: "new", Reason: "server refused", Err: err}
			}
			fmt.Fprintln(app.Out, s.ID)
			return nil
		},
	}
}

func newSessionsRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <n|id>...",
		Aliases: []string{"delete"},
		Short:   "Delete sessions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.registry(cmd.Context())
			if err != nil {
				return err
			}
			// Resolve every argument first; numbers refer to the list as shown.
			list := reg.List()
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				id, err := resolveSession(list, arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			term := app.terminal(false)
			arc, err := app.archive()
			if err != nil {
				term.Warn("Local archive unavailable: " + err.Error())
			}
			for _, id := range ids {
				if err := reg.Delete(cmd.Context(), id); err != nil {
					return &CommandError{Command: "sessions", Action: "rm", Reason: id, Err: err}
				}
				if arc != nil {
					if err := arc.DeleteSession(cmd.Context(), id); err != nil {
						term.Warn("Local archive copy of " + id + " was not removed: " + err.Error())
					}
				}
				term.Success("Deleted session " + id + ".")
			}
			return nil
		},
	}
}
