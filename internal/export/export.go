// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is one session's messages in a form every exporter accepts.
type Transcript struct {
	SessionID string        `json:"session_id" yaml:"session_id"`
	Title     string        `json:"title" yaml:"title"`
	CreatedAt time.Time     `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Source    string        `json:"source" yaml:"source"`
	Messages  []api.Message `json:"messages" yaml:"messages"`
}

// Transcript sources.
const (
	SourceServer  = "server"
	SourceArchive = "archive"
)

// NewTranscript builds a transcript from a session and its messages.
func NewTranscript(sess api.Session, msgs []api.Message, source string) *Transcript {
	return &Transcript{
		SessionID: sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt,
		Source:    source,
		Messages:  msgs,
	}
}

var errNilTranscript = errors.New("transcript is nil")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter writes a transcript in one format.
type Exporter interface {
	// Export writes t to w.
	Export(t *Transcript, w io.Writer) error

	// Extension returns the file extension without the dot.
	Extension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Options configures exporters.
type Options struct {
	// IncludeMetadata adds a header with session id, dates and counts.
	IncludeMetadata bool

	// Theme for HTML export ("light" or "dark").
	Theme string

	// Now stamps the export time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata: true,
		Theme:           "dark",
		Now:             time.Now,
	}
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		return DefaultOptions()
	}
	c := *o
	if c.Theme == "" {
		c.Theme = "dark"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &c
}

// Formats lists the names NewExporter accepts.
var Formats = []string{"md", "json", "yaml", "html"}

// NewExporter creates an exporter by format name.
func NewExporter(format string, opts *Options) (Exporter, error) {
	opts = opts.withDefaults()
	switch strings.ToLower(format) {
	case "md", "markdown":
		return &MarkdownExporter{options: opts}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "html":
		return &HTMLExporter{options: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile writes t into dir under a name derived from its title and
// returns the path.
func ExportToFile(t *Transcript, exporter Exporter, dir string) (string, error) {
	if t == nil {
		return "", errNilTranscript
	}
	var buf bytes.Buffer
	if err := exporter.Export(t, &buf); err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	name := fmt.Sprintf("chat_%s_%s.%s", sanitizeFilename(t.Title), sanitizeFilename(t.SessionID), exporter.Extension())
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// common platforms and limits the length.
func sanitizeFilename(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > 50 {
		runes = runes[:50]
	}

	var sb strings.Builder
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			sb.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			sb.WriteRune('_')
		case r < 32 || r == 127:
			sb.WriteRune('-')
		default:
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "chat"
	}
	return sb.String()
}

// roleLabel returns the display label for a message type.
func roleLabel(t api.MessageType) string {
	switch t {
	case api.MessageUser:
		return "You"
	case api.MessageAssistant:
		return "Assistant"
	case "":
		return "Unknown"
	default:
		r := []rune(string(t))
		return strings.ToUpper(string(r[0])) + string(r[1:])
	}
}
