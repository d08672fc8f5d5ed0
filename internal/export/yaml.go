// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLExporter writes the complete transcript as YAML.
type YAMLExporter struct{}

// Export writes t to w.
func (e *YAMLExporter) Export(t *Transcript, w io.Writer) error {
	if t == nil {
		return errNilTranscript
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(t)
}

// Extension returns the file extension for YAML.
func (e *YAMLExporter) Extension() string {
	return "yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
