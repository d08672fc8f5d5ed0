// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devserver is an in-memory chat backend.
//
// It implements the session, message and streaming endpoints the client
// talks to, with scripted replies that walk through the searching and
// summarizing phases. `rigchat devserver` runs it for local demos; tests
// mount Handler on an httptest.Server.
package devserver
