// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the chat backend.
//
// It covers the six operations the chat client depends on: opening a reply
// stream, and listing, creating, reading, appending to and deleting chat
// sessions. Any 401 response is reported as an error matching
// ErrUnauthorized so callers can hand off to a login boundary.
//
// # Streams
//
// OpenStream returns a *Stream that yields decoded text chunks. Plain bodies
// are decoded as UTF-8 across read boundaries; a multi-byte sequence split
// between two reads is held back until it is complete. Bodies served as
// text/event-stream are parsed as Server-Sent Events, one chunk per data
// event, with "[DONE]" ending the stream.
//
// # Retries
//
// GET requests are retried with exponential backoff on 5xx and 429
// responses. Writes are never retried. All requests share a client-side
// rate limiter and carry an X-Request-ID header.
//
// # Usage
//
//	client, err := api.New(api.Options{BaseURL: "http://localhost:5000"})
//	sessions, err := client.ListSessions(ctx)
//	s, err := client.OpenStream(ctx, "hello", sessions[0].ID)
//	defer s.Close()
//	for {
//	    chunk, err := s.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package api
