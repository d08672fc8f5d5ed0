// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"strings"
	"unicode/utf8"
)

// Script produces the chunks of a streamed reply to message.
type Script func(message string) []string

// DefaultScript imitates the production backend closely enough to exercise
// every client phase:
//
//   - "search ..." replies with a search notice, then a final answer
//   - "summarize ..." adds a summarizing notice before the answer
//   - "silent" announces a search and never finishes it
//   - anything else echoes the message back in small chunks
func DefaultScript(message string) []string {
	msg := strings.TrimSpace(message)
	lower := strings.ToLower(msg)

	switch {
	case lower == "silent":
		return []string{"Searching", " the web..."}
	case strings.HasPrefix(lower, "search "):
		query := strings.TrimSpace(msg[len("search "):])
		return append([]string{"Searching", " the web for ", query, "...\n"},
			Chunk("Here's what I found: **"+query+"** is a popular topic. Try `rigchat ask` for more.", 7)...)
	case strings.HasPrefix(lower, "summarize "):
		topic := strings.TrimSpace(msg[len("summarize "):])
		return append([]string{"Searching", " the web...\n", "Summarizing", " results...\n"},
			Chunk("Search result: "+topic+" in *three* words: short, sweet, done.", 9)...)
	default:
		return Chunk("You said: "+msg, 5)
	}
}

// Chunk splits s into pieces of at most n bytes without splitting a UTF-8
// sequence. Pieces may be longer than n when a single rune is.
func Chunk(s string, n int) []string {
	if n <= 0 {
		n = 1
	}
	var out []string
	for len(s) > 0 {
		cut := n
		if cut >= len(s) {
			out = append(out, s)
			break
		}
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			_, size := utf8.DecodeRuneInString(s)
			cut = size
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return out
}
