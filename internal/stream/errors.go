// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
)

// TransportErrorMessage is written to the target when a stream fails to
// open or drops mid-flight.
const TransportErrorMessage = "Error: Network issue or server problem."

// ErrorKind classifies a StreamError.
type ErrorKind int

const (
	// KindTransport: the stream never opened or dropped mid-flight.
	KindTransport ErrorKind = iota
	// KindUnauthorized: the backend rejected the session (HTTP 401).
	KindUnauthorized
	// KindCanceled: the caller's context ended the run.
	KindCanceled
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// StreamError is returned by Renderer.Run and Renderer.Start. Partial holds
// the buffer accumulated before the failure.
type StreamError struct {
	Kind    ErrorKind
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream %s error (partial content received: %d chars): %v", e.Kind, len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream %s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a StreamError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Kind == kind
}

// unauthorizer is implemented by transport errors that carry an HTTP 401.
type unauthorizer interface {
	Unauthorized() bool
}

func isUnauthorized(err error) bool {
	var u unauthorizer
	return errors.As(err, &u) && u.Unauthorized()
}
