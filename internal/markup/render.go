// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markup

import (
	"html"
	"strconv"
	"strings"
)

// HTML renders the document as an HTML fragment. All literal text is
// escaped, so the result is well-formed for any input. Lines are joined
// with <br>.
func (d Document) HTML() string {
	var sb strings.Builder
	for i, b := range d.Blocks {
		if i > 0 {
			sb.WriteString("<br>")
		}
		switch b.Kind {
		case BlockHeading:
			tag := "h" + strconv.Itoa(b.Level)
			sb.WriteString("<" + tag + ">")
			writeSpansHTML(&sb, b.Spans)
			sb.WriteString("</" + tag + ">")
		case BlockListItem:
			sb.WriteString("<li>")
			writeSpansHTML(&sb, b.Spans)
			sb.WriteString("</li>")
		default:
			writeSpansHTML(&sb, b.Spans)
		}
	}
	return sb.String()
}

func writeSpansHTML(sb *strings.Builder, spans []Span) {
	for _, sp := range spans {
		switch sp.Style {
		case StyleStrong:
			sb.WriteString("<strong>")
			writeSpansHTML(sb, sp.Children)
			sb.WriteString("</strong>")
		case StyleEmphasis:
			sb.WriteString("<em>")
			writeSpansHTML(sb, sp.Children)
			sb.WriteString("</em>")
		case StyleCode:
			sb.WriteString("<code>")
			sb.WriteString(html.EscapeString(sp.Text))
			sb.WriteString("</code>")
		default:
			sb.WriteString(html.EscapeString(sp.Text))
		}
	}
}

// Text renders the document as plain text with all recognized markers
// removed. Lines are joined with "\n".
func (d Document) Text() string {
	var sb strings.Builder
	for i, b := range d.Blocks {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(SpansText(b.Spans))
	}
	return sb.String()
}

// SpansText returns the concatenated literal text of spans.
func SpansText(spans []Span) string {
	var sb strings.Builder
	var walk func([]Span)
	walk = func(ss []Span) {
		for _, sp := range ss {
			if sp.Style == StyleStrong || sp.Style == StyleEmphasis {
				walk(sp.Children)
				continue
			}
			sb.WriteString(sp.Text)
		}
	}
	walk(spans)
	return sb.String()
}
