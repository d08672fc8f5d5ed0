// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/util"
)

// searchHit is one archive match in --json output.
type searchHit struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	At        time.Time `json:"at"`
}

func newSearchCmd(app *App) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search the local archive",
		Long: `Search archived turns for text in either the question or the reply.
Matching is a case-insensitive substring match, newest first.

Requires the local archive (archive.enabled = true or RIGCHAT_ARCHIVE=1).`,
		Example: `  rigchat search weather
  rigchat search "100%" --limit 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.cfg.Archive.Enabled {
				return usageErrorf("the local archive is disabled (set archive.enabled or RIGCHAT_ARCHIVE=1)")
			}
			query := strings.Join(args, " ")
			if strings.TrimSpace(query) == "" {
				return usageErrorf("empty query")
			}
			arc, err := app.archive()
			if err != nil {
				return err
			}

			return OutputJSON(app.Out, jsonOut, "search", func() (any, error) {
				recs, err := arc.Search(cmd.Context(), query, limit)
				if err != nil {
					return nil, err
				}
				hits := make([]searchHit, 0, len(recs))
				for _, r := range recs {
					hits = append(hits, searchHit{
						SessionID: r.SessionID,
						Title:     r.SessionTitle,
						User:      r.User,
						Assistant: r.Assistant,
						At:        r.StartedAt,
					})
				}
				if !jsonOut {
					printHits(app, hits)
				}
				return hits, nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	return cmd
}

func printHits(app *App, hits []searchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(app.Out, "No matches.")
		return
	}
	width := 72
	for _, h := range hits {
		title := h.Title
		if title == "" {
			title = h.SessionID
		}
		fmt.Fprintf(app.Out, "%s  %s  (%s)\n", h.At.Local().Format("2006-01-02 15:04"), title, h.SessionID)
		fmt.Fprintf(app.Out, "  you: %s\n", util.TruncateWidth(util.FlattenLines(h.User), width))
		fmt.Fprintf(app.Out, "  ai:  %s\n", util.TruncateWidth(util.FlattenLines(h.Assistant), width))
	}
}
