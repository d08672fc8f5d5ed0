// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markup converts raw assistant text into structured presentation
// fragments.
//
// The transformer is invoked on every growing prefix of a streamed reply, so
// it must produce a complete, well-formed Document for any input, including
// text that ends in the middle of a marker. Unmatched markers are kept as
// literal characters.
//
// # Rules
//
// Rules are applied in a fixed order over disjoint syntax classes:
//
//  1. bold: **x** and __x__
//  2. emphasis: *x* and _x_
//  3. inline code: `x`
//  4. headings: "# ", "## ", "### " at line start
//  5. list items: "* " or "- " at line start
//  6. line breaks
//
// Bold runs before emphasis because emphasis markers are a subset of bold
// markers. Heading and list prefixes are recognized on the raw line before
// inline rules run so a bullet "*" is never captured as emphasis.
//
// # Usage
//
//	doc := markup.Transform("**Hi** there")
//	html := doc.HTML() // <strong>Hi</strong> there
//	text := doc.Text() // Hi there
package markup
