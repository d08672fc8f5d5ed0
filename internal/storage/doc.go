// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps a local SQLite archive of completed chat turns.
//
// The backend remains the source of truth for sessions and messages. The
// archive is an optional second copy that survives session deletion on the
// server and can be read offline.
//
// # Usage
//
//	archive, err := storage.Open(path, logger)
//	if err != nil {
//	    return err
//	}
//	defer archive.Close()
//
//	ctrl := chat.New(chat.Options{Archive: archive, ...})
//
// Read it back:
//
//	sessions, err := archive.Sessions(ctx)
//	msgs, err := archive.Messages(ctx, sessions[0].ID)
package storage
