// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/markup"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// bulletGlyph replaces the "* " or "- " of a list item.
const bulletGlyph = "•"

// RenderANSI renders a document for the terminal. Blocks become lines;
// strong, emphasis and code spans get the theme's styles and nest. With a
// plain theme the result equals the document's text apart from the list
// bullets.
func RenderANSI(doc markup.Document, theme *styles.Theme) string {
	var sb strings.Builder
	for i, b := range doc.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		switch b.Kind {
		case markup.BlockHeading:
			level := min(max(b.Level, 1), len(theme.Heading))
			sb.WriteString(renderSpans(b.Spans, theme, &theme.Heading[level-1]))
		case markup.BlockListItem:
			sb.WriteString(theme.Bullet.Render(bulletGlyph))
			sb.WriteByte(' ')
			sb.WriteString(renderSpans(b.Spans, theme, nil))
		default:
			sb.WriteString(renderSpans(b.Spans, theme, nil))
		}
	}
	return sb.String()
}

// renderSpans renders spans with attributes inherited from base, which may
// be nil. lipgloss styles do not compose across separately rendered strings,
// so each leaf is rendered once with the accumulated style.
func renderSpans(spans []markup.Span, theme *styles.Theme, base *lipgloss.Style) string {
	var sb strings.Builder
	for _, sp := range spans {
		switch sp.Style {
		case markup.StyleStrong:
			st := inherit(theme.Strong, base)
			sb.WriteString(renderSpans(sp.Children, theme, &st))
		case markup.StyleEmphasis:
			st := inherit(theme.Emphasis, base)
			sb.WriteString(renderSpans(sp.Children, theme, &st))
		case markup.StyleCode:
			sb.WriteString(inherit(theme.Code, base).Render(sp.Text))
		default:
			if base == nil || sp.Text == "" {
				sb.WriteString(sp.Text)
			} else {
				sb.WriteString(base.Render(sp.Text))
			}
		}
	}
	return sb.String()
}

func inherit(s lipgloss.Style, base *lipgloss.Style) lipgloss.Style {
	if base == nil {
		return s
	}
	return s.Inherit(*base)
}
