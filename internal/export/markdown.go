// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter writes a transcript as Markdown. Message text is emitted
// as-is since replies already use Markdown emphasis.
type MarkdownExporter struct {
	options *Options
}

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	Title    string `yaml:"title"`
	Session  string `yaml:"session"`
	Date     string `yaml:"date,omitempty"`
	Messages int    `yaml:"messages"`
	Source   string `yaml:"source,omitempty"`
	Exported string `yaml:"exported"`
}

// Export writes t to w.
func (e *MarkdownExporter) Export(t *Transcript, w io.Writer) error {
	if t == nil {
		return errNilTranscript
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm := frontmatter{
			Title:    t.Title,
			Session:  t.SessionID,
			Messages: len(t.Messages),
			Source:   t.Source,
			Exported: e.options.Now().Format(time.RFC3339),
		}
		if !t.CreatedAt.IsZero() {
			fm.Date = t.CreatedAt.Format(time.RFC3339)
		}
		header, err := yaml.Marshal(fm)
		if err != nil {
			return fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(header)
		sb.WriteString("---\n\n")
	}

	title := t.Title
	if title == "" {
		title = "Chat"
	}
	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	for i, msg := range t.Messages {
		fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Type))
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")
		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Extension returns the file extension for Markdown.
func (e *MarkdownExporter) Extension() string {
	return "md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// escapeMarkdown escapes characters that would break formatting in a
// heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
		"\n", " ",
	)
	return r.Replace(s)
}
