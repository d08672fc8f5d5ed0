// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat transcripts to files.
//
// # Supported Formats
//
//   - md: Markdown with a YAML frontmatter header
//   - json: the full Transcript, decodable again
//   - yaml: the full Transcript
//   - html: a standalone page; replies keep their emphasis and code spans
//
// # Usage
//
//	exp, err := export.NewExporter("html", nil)
//	if err != nil {
//	    return err
//	}
//	t := export.NewTranscript(sess, msgs, export.SourceServer)
//	path, err := export.ExportToFile(t, exp, ".")
package export
