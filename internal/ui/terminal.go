// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

type fder interface {
	Fd() uintptr
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w any) bool {
	f, ok := w.(fder)
	return ok && term.IsTerminal(int(f.Fd()))
}

// =============================================================================
// TERMINAL WIDTH DETECTION
// =============================================================================

const (
	// DefaultWidth is the fallback width when detection fails.
	DefaultWidth = 80

	// MinWidth is the smallest width used for layout.
	MinWidth = 40
)

// Width returns the column count of w, or DefaultWidth when w is not a
// terminal.
func Width(w io.Writer) int {
	f, ok := w.(fder)
	if !ok {
		return DefaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	if width < MinWidth {
		return MinWidth
	}
	return width
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

// ColorProfile resolves a ui.color setting for w. "never" and NO_COLOR give
// termenv.Ascii; "always" and FORCE_COLOR give at least ANSI colors even
// when w is not a terminal; "auto" colors terminals only.
func ColorProfile(mode string, w io.Writer) termenv.Profile {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "never" || os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	detected := termenv.NewOutput(w).EnvColorProfile()
	if mode == "always" || os.Getenv("FORCE_COLOR") != "" {
		if detected == termenv.Ascii {
			return termenv.ANSI
		}
		return detected
	}
	if !IsTerminal(w) {
		return termenv.Ascii
	}
	return detected
}

// =============================================================================
// LINE MATH
// =============================================================================

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// Rows returns how many terminal rows s occupies at the given width,
// counting wrapped lines. An empty string occupies one row.
func Rows(s string, width int) int {
	if width <= 0 {
		width = DefaultWidth
	}
	rows := 0
	for _, line := range strings.Split(StripANSI(s), "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}
