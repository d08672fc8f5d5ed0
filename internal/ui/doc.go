// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders the chat in a terminal.
//
// Terminal implements chat.View. Each assistant reply gets a slot that
// implements stream.Target: on a terminal the slot repaints the bottom of
// the output in place, at most MaxFPS times per second, with an animated
// working indicator; on pipes and files it writes the final reply once.
//
// RenderANSI turns a markup.Document into styled terminal text. The session
// picker is a small bubbletea program, and RenderTranscript formats stored
// history with glamour.
package ui
