// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/api"
)

// Session is a chat session as listed by the backend.
type Session = api.Session

// ErrNotFound is returned by Delete for an id the registry does not hold.
var ErrNotFound = errors.New("session not found")

// Store is the backend side of the registry. *api.Client satisfies it.
type Store interface {
	ListSessions(ctx context.Context) ([]api.Session, error)
	CreateSession(ctx context.Context, title string) (api.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the ordered list of sessions plus the current selection.
// Sessions are kept most recently created first. The current id never refers
// to a session that is not in the list.
type Registry struct {
	mu        sync.Mutex
	store     Store
	logger    *zap.Logger
	sessions  []Session
	currentID string
}

// NewRegistry creates an empty registry backed by store.
func NewRegistry(store Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger}
}

// List returns a copy of the sessions in display order.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Current returns the current session, if any.
func (r *Registry) Current() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentID == "" {
		return Session{}, false
	}
	idx := r.indexLocked(r.currentID)
	if idx < 0 {
		return Session{}, false
	}
	return r.sessions[idx], true
}

// CurrentID returns the current session id, or "" when there is none.
func (r *Registry) CurrentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentID
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return Session{}, false
	}
	return r.sessions[idx], true
}

// Create creates a session on the backend, inserts it at the head of the
// list and makes it current.
func (r *Registry) Create(ctx context.Context, title string) (Session, error) {
	s, err := r.store.CreateSession(ctx, title)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A session id the store hands back twice replaces the stale entry.
	if idx := r.indexLocked(s.ID); idx >= 0 {
		r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	}
	r.sessions = append([]Session{s}, r.sessions...)
	r.currentID = s.ID
	r.logger.Debug("session created", zap.String("id", s.ID), zap.String("title", s.Title))
	return s, nil
}

// Select makes id current. It is a no-op returning false when id is already
// current or unknown.
func (r *Registry) Select(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.currentID || r.indexLocked(id) < 0 {
		return false
	}
	r.currentID = id
	return true
}

// Delete removes a session on the backend and from the list. When the
// current session is removed the new head becomes current, or nothing when
// the list is now empty; the caller then creates a replacement.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, ok := r.Get(id); !ok {
		return fmt.Errorf("delete session %q: %w", id, ErrNotFound)
	}
	if err := r.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return nil
	}
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	if r.currentID == id {
		r.currentID = ""
		if len(r.sessions) > 0 {
			r.currentID = r.sessions[0].ID
		}
	}
	r.logger.Debug("session deleted", zap.String("id", id), zap.String("current", r.currentID))
	return nil
}

// Refresh reloads the list from the backend, keeping server order. The
// current selection survives when still present, otherwise the head (or
// nothing) becomes current.
func (r *Registry) Refresh(ctx context.Context) error {
	sessions, err := r.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("refresh sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = dedupe(sessions)
	if r.indexLocked(r.currentID) < 0 {
		r.currentID = ""
		if len(r.sessions) > 0 {
			r.currentID = r.sessions[0].ID
		}
	}
	return nil
}

func (r *Registry) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, s := range r.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(in []Session) []Session {
	seen := make(map[string]bool, len(in))
	out := make([]Session, 0, len(in))
	for _, s := range in {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}
