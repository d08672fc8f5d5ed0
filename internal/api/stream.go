// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// readBufferSize is the size of a single body read for plain streams.
const readBufferSize = 4096

// MaxEventSize caps a single SSE line.
const MaxEventSize = 64 * 1024

// sseDone is the data payload that ends an SSE stream.
const sseDone = "[DONE]"

// =============================================================================
// OPEN
// =============================================================================

type streamRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// OpenStream posts a message and returns the reply stream. Non-success
// responses are returned as *StatusError before any chunk is read. Stream
// requests are never retried.
func (c *Client) OpenStream(ctx context.Context, message, sessionID string) (*Stream, error) {
	payload, err := json.Marshal(streamRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("open stream: encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/chat-stream", payload)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	req.Header.Set("Accept", "text/plain, text/event-stream")

	resp, err := c.do(c.streamClient, req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError("open stream", resp.StatusCode, body)
	}
	return newStream(resp), nil
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is an open reply body. Next and Close may be called from different
// goroutines; Close unblocks a pending Next.
type Stream struct {
	body    io.ReadCloser
	sse     *SSEReader
	buf     []byte
	pending []byte
	done    bool
}

func newStream(resp *http.Response) *Stream {
	s := &Stream{body: resp.Body}
	if isEventStream(resp.Header.Get("Content-Type")) {
		s.sse = NewSSEReader(resp.Body)
	} else {
		s.buf = make([]byte, readBufferSize)
	}
	return s
}

func isEventStream(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/event-stream"
}

// NewStream wraps an arbitrary body as a plain text stream.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, buf: make([]byte, readBufferSize)}
}

// Next returns the next decoded chunk, or io.EOF after the last one. Empty
// chunks are never returned.
func (s *Stream) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	if s.sse != nil {
		return s.nextEvent(ctx)
	}
	return s.nextPlain(ctx)
}

func (s *Stream) nextPlain(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := s.body.Read(s.buf)
		if n > 0 {
			data := append(s.pending, s.buf[:n]...)
			cut := completePrefix(data)
			out := strings.ToValidUTF8(string(data[:cut]), string(utf8.RuneError))
			s.pending = append([]byte(nil), data[cut:]...)
			if out != "" {
				return out, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				if len(s.pending) > 0 {
					out := strings.ToValidUTF8(string(s.pending), string(utf8.RuneError))
					s.pending = nil
					return out, nil
				}
				return "", io.EOF
			}
			return "", fmt.Errorf("read stream: %w", err)
		}
	}
}

func (s *Stream) nextEvent(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		_, data, err := s.sse.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return "", io.EOF
			}
			return "", fmt.Errorf("read stream: %w", err)
		}
		if string(data) == sseDone {
			s.done = true
			return "", io.EOF
		}
		if len(data) > 0 {
			return string(data), nil
		}
	}
}

// Close releases the response body.
func (s *Stream) Close() error {
	return s.body.Close()
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReaderSize(r, readBufferSize)}
}

// ReadEvent reads the next event and returns its type and data. Multiple
// data lines are joined with "\n". Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}

		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		// A single leading space after the colon is not part of the value.
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			eventType = string(value)
		case "data":
			dataLines = append(dataLines, append([]byte(nil), value...))
		}
		// id, retry and ":" comments are ignored.
	}
}

func (s *SSEReader) readLine() ([]byte, error) {
	var line []byte
	for {
		part, isPrefix, err := s.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		line = append(line, part...)
		if len(line) > MaxEventSize {
			return nil, fmt.Errorf("sse line exceeds %d bytes", MaxEventSize)
		}
		if !isPrefix {
			return line, nil
		}
	}
}
