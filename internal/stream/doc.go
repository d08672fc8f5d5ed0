// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream drives the rendering of one streamed assistant reply.
//
// A reply moves through phases while it streams:
//
//	Idle -> Searching -> Summarizing -> Displaying
//	Idle -> Displaying
//
// The Classifier inspects the accumulated buffer after every chunk and
// decides whether a "working" indicator or the real content is shown. The
// Renderer owns one reply end to end: it reads chunks in order, feeds the
// classifier, renders through markup.Transform into a Target, and enforces a
// staleness timeout so an indicator is never shown forever.
//
// # Key Types
//
//   - Markers: the finite set of sentinel markers and lexical cues
//   - Classifier: the phase state machine (pure, no I/O)
//   - Renderer: chunk loop + staleness timer
//   - Source: ordered chunk reader (implemented by api.Stream)
//   - Target: write-only output slot for one reply
//   - StreamError: transport, unauthorized and canceled failures
//
// # Concurrency
//
// Renderer.Run processes chunks and timer events in a single select loop, so
// classifier state is never shared. One reader goroutine feeds the loop and
// is joined before Run returns.
//
// Cue detection is substring based. A reply that merely mentions "search"
// shows the searching indicator until a marker arrives or the timer fires.
// That is a known limitation of cue sniffing.
package stream
