// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"

	"github.com/jeranaias/rigchat/internal/api"
)

var (
	// ErrBusy is returned by Submit while another turn is in flight. The
	// call has no effect.
	ErrBusy = errors.New("a reply is still streaming")

	// ErrEmptyMessage is returned by Submit for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrUnauthorized means the backend rejected the session. The flow stops
	// and the OnUnauthorized hook has been called.
	ErrUnauthorized = api.ErrUnauthorized
)

// PersistenceWarning reports a failed post-stream save. The visible
// conversation is not rolled back and the write is not retried.
type PersistenceWarning struct {
	SessionID string
	Role      api.MessageType
	Err       error
}

// Error implements the error interface.
func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("could not save %s message to session %s: %v", w.Role, w.SessionID, w.Err)
}

// Unwrap returns the underlying error.
func (w *PersistenceWarning) Unwrap() error {
	return w.Err
}
