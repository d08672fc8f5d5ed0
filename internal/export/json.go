// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"io"
)

// JSONExporter writes the complete transcript as indented JSON. The output
// can be decoded back into a Transcript.
type JSONExporter struct{}

// Export writes t to w.
func (e *JSONExporter) Export(t *Transcript, w io.Writer) error {
	if t == nil {
		return errNilTranscript
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(t)
}

// Extension returns the file extension for JSON.
func (e *JSONExporter) Extension() string {
	return "json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
