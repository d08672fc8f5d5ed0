// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// =============================================================================
// TYPES
// =============================================================================

// Session is one chat session as the backend describes it.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// UnmarshalJSON accepts string or numeric ids and tolerates missing or
// non-RFC 3339 timestamps.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Title     string          `json:"title"`
		CreatedAt string          `json:"created_at"`
		UpdatedAt string          `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeID(raw.ID)
	if err != nil {
		return err
	}
	s.ID = id
	s.Title = raw.Title
	s.CreatedAt = parseTime(raw.CreatedAt)
	s.UpdatedAt = parseTime(raw.UpdatedAt)
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("session id missing")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return n.String(), nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTime(v string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// MessageType is the author of a stored message.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
)

// Message is one stored message of a session.
type Message struct {
	Content string      `json:"content" yaml:"content"`
	Type    MessageType `json:"message_type" yaml:"message_type"`
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

func sessionPath(id string) string {
	return "/api/chat-sessions/" + url.PathEscape(id)
}

// ListSessions returns the user's sessions in server order. The backend may
// answer with a bare array or with {"sessions": [...]}.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "list sessions", http.MethodGet, "/api/chat-sessions", nil, &raw); err != nil {
		return nil, err
	}
	sessions, err := decodeList[Session](raw, "sessions")
	if err != nil {
		return nil, fmt.Errorf("list sessions: decode response: %w", err)
	}
	return sessions, nil
}

// CreateSession creates a session with the given title.
func (c *Client) CreateSession(ctx context.Context, title string) (Session, error) {
	var s Session
	req := struct {
		Title string `json:"title"`
	}{title}
	if err := c.call(ctx, "create session", http.MethodPost, "/api/chat-sessions", req, &s); err != nil {
		return Session{}, err
	}
	if s.Title == "" {
		s.Title = title
	}
	return s, nil
}

// FetchMessages returns the stored messages of a session, oldest first.
func (c *Client) FetchMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "fetch messages", http.MethodGet, sessionPath(sessionID)+"/messages", nil, &raw); err != nil {
		return nil, err
	}
	msgs, err := decodeList[Message](raw, "messages")
	if err != nil {
		return nil, fmt.Errorf("fetch messages: decode response: %w", err)
	}
	return msgs, nil
}

// PostMessage appends one message to a session.
func (c *Client) PostMessage(ctx context.Context, sessionID string, msg Message) error {
	return c.call(ctx, "post message", http.MethodPost, sessionPath(sessionID)+"/messages", msg, nil)
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, "delete session", http.MethodDelete, sessionPath(sessionID), nil, nil)
}

// decodeList decodes either a bare JSON array or an object holding the
// array under key.
func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return []T{}, nil
	}
	if raw[0] == '[' {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	inner, ok := wrapped[key]
	if !ok {
		return []T{}, nil
	}
	out := []T{}
	if err := json.Unmarshal(inner, &out); err != nil {
		return nil, err
	}
	return out, nil
}
