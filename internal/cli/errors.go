// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"net"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/stream"
)

// loginHint is shown when the backend rejects the session.
const loginHint = "Session rejected by the server. Log in through the web app and set RIGCHAT_COOKIE (or server.cookie in the config) to the session cookie."

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the backend rejected the session
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	var (
		cfgErr   config.ValidateErrors
		usageErr *UsageError
		cmdErr   *CommandError
		netErr   net.Error
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, chat.ErrUnauthorized):
		return ExitAuthError
	case stream.IsKind(err, stream.KindTransport), errors.Is(err, api.ErrInvalidBaseURL), errors.As(err, &netErr):
		return ExitNetworkError
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrSessionNotFound):
		return ExitNotFoundError
	case errors.As(err, &cfgErr):
		return ExitConfigError
	case errors.As(err, &usageErr):
		return ExitUsageError
	case errors.As(err, &cmdErr) && cmdErr.Command == "config":
		return ExitConfigError
	default:
		return ExitGeneralError
	}
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "sessions", "history")
	Action  string // Action being performed (e.g., "rm", "export")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError reports invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}
