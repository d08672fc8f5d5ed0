// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat orchestrates chat turns.
//
// A Controller ties the session registry, the backend client and the stream
// renderer together. Submit runs one turn:
//
//  1. reject the call if another turn is in flight (ErrBusy)
//  2. create a session titled after the message if none is current
//  3. show the user message immediately
//  4. stream the reply into a fresh assistant slot
//  5. save the user message, then the reply
//
// Save failures are warnings, not errors: the user already saw the
// exchange. A 401 anywhere stops the flow with ErrUnauthorized after the
// OnUnauthorized hook runs.
//
// Switching sessions while a reply streams does not cancel it. The reply
// finishes into the assistant slot it started in.
package chat
