// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/stream"
)

// View is the visible conversation. The controller never reads from it.
type View interface {
	// AppendUser shows a user message.
	AppendUser(text string)

	// BeginAssistant opens a new assistant slot and returns its target. The
	// target stays valid after the view switches to another session.
	BeginAssistant() stream.Target

	// ShowHistory replaces the conversation with stored messages.
	ShowHistory(sessionID string, msgs []api.Message)

	// Warn shows a non-fatal notice.
	Warn(msg string)
}

// Backend is everything the controller needs from the chat server.
// *api.Client satisfies it.
type Backend interface {
	session.Store
	OpenStream(ctx context.Context, message, sessionID string) (*api.Stream, error)
	FetchMessages(ctx context.Context, sessionID string) ([]api.Message, error)
	PostMessage(ctx context.Context, sessionID string, msg api.Message) error
}

// Turn is a completed exchange, as handed to an Archive.
type Turn struct {
	SessionID    string
	SessionTitle string
	User         string
	Assistant    string
	StartedAt    time.Time
	Duration     time.Duration
}

// Archive keeps a local copy of completed turns. Saves and deletes are best
// effort.
type Archive interface {
	SaveTurn(ctx context.Context, turn Turn) error
	DeleteSession(ctx context.Context, sessionID string) error
}
