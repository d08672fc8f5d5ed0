// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markup

import (
	"regexp"
	"strings"
	"sync"
)

// =============================================================================
// DOCUMENT MODEL
// =============================================================================

// Style identifies how a span is presented.
type Style int

const (
	// StylePlain is literal text.
	StylePlain Style = iota
	// StyleStrong is bold text.
	StyleStrong
	// StyleEmphasis is italic text.
	StyleEmphasis
	// StyleCode is inline code. Code spans are leaves.
	StyleCode
)

// String returns the style name.
func (s Style) String() string {
	switch s {
	case StylePlain:
		return "plain"
	case StyleStrong:
		return "strong"
	case StyleEmphasis:
		return "emphasis"
	case StyleCode:
		return "code"
	default:
		return "unknown"
	}
}

// Span is an inline fragment. Plain and code spans carry Text; strong and
// emphasis spans carry Children.
type Span struct {
	Style    Style
	Text     string
	Children []Span
}

// BlockKind identifies the kind of a line-level block.
type BlockKind int

const (
	// BlockLine is an ordinary line of text.
	BlockLine BlockKind = iota
	// BlockHeading is a heading; Level holds 1-3.
	BlockHeading
	// BlockListItem is an unordered list item.
	BlockListItem
)

// Block is one source line after block-level rules.
type Block struct {
	Kind  BlockKind
	Level int
	Spans []Span
}

// Document is the structured result of Transform. Blocks correspond 1:1 to
// the lines of the input and are separated by line breaks when rendered.
type Document struct {
	Blocks []Block
}

// IsEmpty reports whether the document has no visible text.
func (d Document) IsEmpty() bool {
	return d.Text() == ""
}

// =============================================================================
// RULES
// =============================================================================

type inlineRule struct {
	re    *regexp.Regexp
	style Style
}

var (
	// Order matters: bold before emphasis, code last.
	inlineRules = []inlineRule{
		{regexp.MustCompile(`\*\*(.+?)\*\*`), StyleStrong},
		{regexp.MustCompile(`__(.+?)__`), StyleStrong},
		{regexp.MustCompile(`\*([^*]+)\*`), StyleEmphasis},
		{regexp.MustCompile(`_([^_]+)_`), StyleEmphasis},
		{regexp.MustCompile("`([^`]+)`"), StyleCode},
	}

	headingRe  = regexp.MustCompile(`^(#{1,3}) (.*)$`)
	listItemRe = regexp.MustCompile(`^[*-] (.*)$`)
)

// =============================================================================
// TRANSFORM
// =============================================================================

// Transform converts raw text into a Document. It is total and pure: every
// input, including the empty string and text ending mid-marker, yields a
// Document.
func Transform(text string) Document {
	lines := strings.Split(text, "\n")
	blocks := make([]Block, 0, len(lines))
	for _, line := range lines {
		blocks = append(blocks, parseLine(line))
	}
	return Document{Blocks: blocks}
}

func parseLine(line string) Block {
	if m := headingRe.FindStringSubmatch(line); m != nil {
		return Block{Kind: BlockHeading, Level: len(m[1]), Spans: parseInline(m[2])}
	}
	if m := listItemRe.FindStringSubmatch(line); m != nil {
		return Block{Kind: BlockListItem, Spans: parseInline(m[1])}
	}
	return Block{Kind: BlockLine, Spans: parseInline(line)}
}

func parseInline(s string) []Span {
	if s == "" {
		return nil
	}
	spans := []Span{{Style: StylePlain, Text: s}}
	for _, rule := range inlineRules {
		spans = applyRule(spans, rule)
	}
	return spans
}

// applyRule splits every plain leaf reachable from spans on the rule's
// matches. Text already captured by an earlier rule is only re-examined
// inside its own children, so matches never overlap.
func applyRule(spans []Span, rule inlineRule) []Span {
	out := make([]Span, 0, len(spans))
	for _, sp := range spans {
		switch sp.Style {
		case StylePlain:
			out = append(out, splitPlain(sp.Text, rule)...)
		case StyleStrong, StyleEmphasis:
			sp.Children = applyRule(sp.Children, rule)
			out = append(out, sp)
		default:
			out = append(out, sp)
		}
	}
	return out
}

func splitPlain(text string, rule inlineRule) []Span {
	matches := rule.re.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return []Span{{Style: StylePlain, Text: text}}
	}

	var out []Span
	last := 0
	for _, m := range matches {
		if m[0] > last {
			out = append(out, Span{Style: StylePlain, Text: text[last:m[0]]})
		}
		inner := text[m[2]:m[3]]
		if rule.style == StyleCode {
			out = append(out, Span{Style: StyleCode, Text: inner})
		} else {
			out = append(out, Span{
				Style:    rule.style,
				Children: []Span{{Style: StylePlain, Text: inner}},
			})
		}
		last = m[1]
	}
	if last < len(text) {
		out = append(out, Span{Style: StylePlain, Text: text[last:]})
	}
	return out
}

// =============================================================================
// MEMO
// =============================================================================

// Memo caches the most recent Transform result. Streaming re-transforms the
// whole buffer on every chunk; the memo only short-circuits a call whose
// input is identical to the previous one, so output is unchanged.
type Memo struct {
	mu    sync.Mutex
	last  string
	doc   Document
	valid bool
}

// Transform returns Transform(text), reusing the previous result when text
// has not changed.
func (m *Memo) Transform(text string) Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid && m.last == text {
		return m.doc
	}
	m.doc = Transform(text)
	m.last = text
	m.valid = true
	return m.doc
}

// Reset drops the cached result.
func (m *Memo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid = false
	m.last = ""
	m.doc = Document{}
}
