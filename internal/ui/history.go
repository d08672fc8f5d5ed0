// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"bytes"
	"fmt"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigchat/internal/export"
)

// RenderTranscript renders a transcript as formatted terminal markdown.
// style is a glamour standard style name ("dark", "light", "notty",
// "ascii") or "auto" to follow the terminal.
func RenderTranscript(t *export.Transcript, width int, style string) (string, error) {
	exp, err := export.NewExporter("md", &export.Options{IncludeMetadata: false})
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := exp.Export(t, &buf); err != nil {
		return "", err
	}
	return RenderMarkdown(buf.String(), width, style)
}

// RenderMarkdown renders markdown with glamour.
func RenderMarkdown(md string, width int, style string) (string, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
