// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/markup"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a standalone HTML page with embedded CSS. Assistant
// replies go through the chat markup rules, so they look the way they did
// on screen; user text is escaped verbatim.
type HTMLExporter struct {
	options *Options
}

// Export writes t to w.
func (e *HTMLExporter) Export(t *Transcript, w io.Writer) error {
	if t == nil {
		return errNilTranscript
	}
	title := t.Title
	if title == "" {
		title = "Chat"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("    <meta name=\"generator\" content=\"rigchat\">\n")
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", html.EscapeString(e.options.Theme))
	sb.WriteString("    <div class=\"container\">\n")

	fmt.Fprintf(&sb, "        <header class=\"header\">\n            <h1>%s</h1>\n", html.EscapeString(title))
	if e.options.IncludeMetadata {
		sb.WriteString("            <div class=\"metadata\">\n")
		fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Session:</strong> %s</span>\n", html.EscapeString(t.SessionID))
		if !t.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", t.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(&sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(t.Messages))
		sb.WriteString("            </div>\n")
	}
	sb.WriteString("        </header>\n")

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range t.Messages {
		e.renderMessage(&sb, msg)
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>rigchat</strong> on %s</p>\n",
		e.options.Now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// Extension returns the file extension for HTML.
func (e *HTMLExporter) Extension() string {
	return "html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

func (e *HTMLExporter) renderMessage(sb *strings.Builder, msg api.Message) {
	class := "other"
	switch msg.Type {
	case api.MessageUser:
		class = "user"
	case api.MessageAssistant:
		class = "assistant"
	}

	fmt.Fprintf(sb, "            <div class=\"message %s-message\">\n", class)
	fmt.Fprintf(sb, "                <div class=\"message-header\"><span class=\"role-label\">%s</span></div>\n",
		html.EscapeString(roleLabel(msg.Type)))
	sb.WriteString("                <div class=\"message-content\">")
	sb.WriteString(formatContent(msg))
	sb.WriteString("</div>\n")
	sb.WriteString("            </div>\n")
}

// formatContent renders a message body as an HTML fragment.
func formatContent(msg api.Message) string {
	if msg.Type == api.MessageAssistant {
		return markup.Transform(msg.Content).HTML()
	}
	return strings.ReplaceAll(html.EscapeString(msg.Content), "\n", "<br>")
}

const css = `    <style>
        :root { --radius: 8px; }
        .dark-theme { --bg: #1e1e2e; --fg: #cdd6f4; --muted: #7f849c; --user: #313244; --assistant: #181825; --accent: #89b4fa; --code: #45475a; }
        .light-theme { --bg: #ffffff; --fg: #1e1e2e; --muted: #6c6f85; --user: #e6e9ef; --assistant: #f5f5f9; --accent: #1e66f5; --code: #dce0e8; }
        body { margin: 0; background: var(--bg); color: var(--fg); font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; line-height: 1.6; }
        .container { max-width: 860px; margin: 0 auto; padding: 24px; }
        .header h1 { margin: 0 0 8px; font-size: 1.6em; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; color: var(--muted); font-size: 0.9em; }
        .conversation { margin-top: 24px; }
        .message { border-radius: var(--radius); padding: 12px 16px; margin-bottom: 12px; }
        .user-message { background: var(--user); }
        .assistant-message { background: var(--assistant); border-left: 3px solid var(--accent); }
        .role-label { font-weight: 600; color: var(--accent); font-size: 0.85em; text-transform: uppercase; }
        .message-content { margin-top: 6px; word-wrap: break-word; }
        .message-content h1, .message-content h2, .message-content h3 { margin: 4px 0; }
        .message-content li { margin-left: 1.2em; }
        code { background: var(--code); border-radius: 4px; padding: 1px 5px; font-family: "SFMono-Regular", Consolas, monospace; font-size: 0.9em; }
        .footer { margin-top: 32px; color: var(--muted); font-size: 0.8em; text-align: center; }
    </style>
`
