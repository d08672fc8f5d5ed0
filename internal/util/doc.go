// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the rigchat packages.
//
//   - AtomicWriteFile: crash-safe file replacement (temp file, fsync, rename)
//   - TruncateRunes, TruncateWidth: UTF-8 safe truncation for titles and columns
//   - FlattenLines: collapse line breaks and runs of whitespace to one space
package util
