// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"
	"time"
	"unicode"
)

// Default values for classifier tuning.
const (
	// DefaultStaleAfter is how long Searching or Summarizing may last
	// without a further transition before content is forced on screen.
	DefaultStaleAfter = 8 * time.Second

	// DefaultDisplayThreshold is the buffer length (in runes) past which a
	// reply with no search cue is shown as plain content.
	DefaultDisplayThreshold = 20
)

// FinalMarker is a sentinel whose appearance means the real answer has
// started. Everything before the marker is stripped. When Strip is set the
// marker itself and the whitespace after it are dropped too.
type FinalMarker struct {
	Text  string `toml:"text" json:"text"`
	Strip bool   `toml:"strip" json:"strip"`
}

// Markers is the finite set of designated cues the classifier reacts to.
type Markers struct {
	// SearchCues are matched case-sensitively.
	SearchCues []string

	// SummaryCues are matched case-insensitively.
	SummaryCues []string

	// FinalMarkers are checked in order; the first present one wins.
	FinalMarkers []FinalMarker

	// DisplayThreshold is the rune length past which an un-cued reply is
	// displayed directly.
	DisplayThreshold int
}

// DefaultMarkers returns the cues emitted by the chat backend.
func DefaultMarkers() Markers {
	return Markers{
		SearchCues:  []string{"Searching", "search"},
		SummaryCues: []string{"summariz"},
		FinalMarkers: []FinalMarker{
			{Text: "Here's what I found:"},
			{Text: "Search result:", Strip: true},
		},
		DisplayThreshold: DefaultDisplayThreshold,
	}
}

// withDefaults fills zero fields from DefaultMarkers.
func (m Markers) withDefaults() Markers {
	d := DefaultMarkers()
	if m.SearchCues == nil {
		m.SearchCues = d.SearchCues
	}
	if m.SummaryCues == nil {
		m.SummaryCues = d.SummaryCues
	}
	if m.FinalMarkers == nil {
		m.FinalMarkers = d.FinalMarkers
	}
	if m.DisplayThreshold <= 0 {
		m.DisplayThreshold = d.DisplayThreshold
	}
	return m
}

func (m Markers) hasSearchCue(buf string) bool {
	for _, cue := range m.SearchCues {
		if cue != "" && strings.Contains(buf, cue) {
			return true
		}
	}
	return false
}

func (m Markers) hasSummaryCue(buf string) bool {
	lower := strings.ToLower(buf)
	for _, cue := range m.SummaryCues {
		if cue != "" && strings.Contains(lower, strings.ToLower(cue)) {
			return true
		}
	}
	return false
}

// findFinal returns the first configured final marker present in buf and
// its byte offset.
func (m Markers) findFinal(buf string) (FinalMarker, int, bool) {
	for _, fm := range m.FinalMarkers {
		if fm.Text == "" {
			continue
		}
		if idx := strings.Index(buf, fm.Text); idx >= 0 {
			return fm, idx, true
		}
	}
	return FinalMarker{}, -1, false
}

// strip returns the displayable part of buf: everything from the first final
// marker on, or buf unchanged when no marker is present.
func (m Markers) strip(buf string) string {
	fm, idx, ok := m.findFinal(buf)
	if !ok {
		return buf
	}
	if !fm.Strip {
		return buf[idx:]
	}
	return strings.TrimLeftFunc(buf[idx+len(fm.Text):], unicode.IsSpace)
}
