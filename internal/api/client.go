// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/util"
)

// Configuration constants for the chat backend client.
const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries for idempotent requests.
	DefaultMaxRetries = 3

	// DefaultRequestsPerSec is the client-side request rate limit.
	DefaultRequestsPerSec = 10

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps a single backoff sleep.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize limits non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024
)

var (
	// sharedHTTPClient pools connections for regular requests. The per-call
	// timeout is applied through the request context.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	// sharedStreamingClient has no timeout; streams are bounded by context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnauthorized means the backend rejected the session cookie.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidBaseURL is returned by New for an unusable base URL.
	ErrInvalidBaseURL = errors.New("invalid base URL")
)

// StatusError is a non-success HTTP response.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
}

// Unauthorized reports whether the response was a 401.
func (e *StatusError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Unauthorized()
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// IsUnauthorized reports whether err is (or wraps) a 401 from the backend.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	// BaseURL is the backend origin, e.g. "http://localhost:5000".
	BaseURL string

	// Cookie is sent verbatim as the Cookie header on every request.
	Cookie string

	Timeout        time.Duration
	MaxRetries     int
	RequestsPerSec float64
	UserAgent      string
	Logger         *zap.Logger

	// RetryBaseDelay overrides the backoff base delay.
	RetryBaseDelay time.Duration

	// HTTPClient and StreamClient override the shared pooled clients.
	HTTPClient   *http.Client
	StreamClient *http.Client
}

// Client talks to the chat backend. It is safe for concurrent use.
type Client struct {
	baseURL      string
	cookie       string
	timeout      time.Duration
	maxRetries   int
	backoffBase  time.Duration
	userAgent    string
	limiter      *rate.Limiter
	logger       *zap.Logger
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, opts.BaseURL)
	}

	c := &Client{
		baseURL:      strings.TrimRight(u.String(), "/"),
		cookie:       opts.Cookie,
		timeout:      opts.Timeout,
		maxRetries:   opts.MaxRetries,
		backoffBase:  opts.RetryBaseDelay,
		userAgent:    opts.UserAgent,
		logger:       opts.Logger,
		httpClient:   opts.HTTPClient,
		streamClient: opts.StreamClient,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.backoffBase <= 0 {
		c.backoffBase = retryBaseDelay
	}
	if c.userAgent == "" {
		c.userAgent = "rigchat"
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.httpClient == nil {
		c.httpClient = sharedHTTPClient
	}
	if c.streamClient == nil {
		c.streamClient = sharedStreamingClient
	}

	rps := opts.RequestsPerSec
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return c, nil
}

// BaseURL returns the normalized backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	return req, nil
}

// do sends one request through the rate limiter. The Cookie header is never
// logged.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := hc.Do(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("request_id", req.Header.Get("X-Request-ID")),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		c.logger.Debug("request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	c.logger.Debug("request complete", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}

// call performs a JSON request and decodes a 2xx body into out (when non-nil).
// GET requests are retried on transient failures.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt - 1)
			c.logger.Debug("retrying request",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := c.roundTrip(ctx, op, method, path, payload)
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%s: decode response: %w", op, err)
			}
			return nil
		}
		lastErr = err
		if !isRetryable(ctx, err) {
			return err
		}
	}
	return fmt.Errorf("%s: max retries exceeded: %w", op, lastErr)
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(op, resp.StatusCode, body)
	}
	return body, nil
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// statusError builds a StatusError, pulling a message out of a JSON
// {"error": "..."} body when present.
func statusError(op string, status int, body []byte) error {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(body, &parsed); err == nil {
		msg = parsed.Error
		if msg == "" {
			msg = parsed.Message
		}
	} else {
		msg = util.TruncateRunes(strings.TrimSpace(string(body)), 200)
	}
	return &StatusError{Op: op, Status: status, Message: msg}
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	// Dial and reset errors.
	return true
}

// calculateBackoff returns the delay before retry number attempt+1.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := c.backoffBase * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
