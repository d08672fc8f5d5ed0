// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session keeps the ordered list of chat sessions and the current
// selection.
//
// # Key Types
//
//   - Registry: sessions in most-recently-created-first order plus a current id
//   - Store: the backend operations the registry needs (satisfied by *api.Client)
//
// # Usage
//
//	reg := session.NewRegistry(client, logger)
//	if err := reg.Refresh(ctx); err != nil {
//	    return err
//	}
//	s, err := reg.Create(ctx, "Weekend plans")
//	reg.Select(other.ID)
//	err = reg.Delete(ctx, s.ID)
//
// The registry never leaves the current id pointing at a removed session.
// Deleting the last session leaves no current session; the caller creates a
// replacement.
package session
