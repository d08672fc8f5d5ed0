// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// timeLayout matches the backend's created_at format.
const timeLayout = "2006-01-02 15:04:05"

// =============================================================================
// TYPES
// =============================================================================

// Options configures a Server.
type Options struct {
	// Cookie, when set, must appear verbatim in every request's Cookie
	// header; other requests get 401.
	Cookie string

	// Script produces reply chunks. Defaults to DefaultScript.
	Script Script

	// ChunkDelay is the pause between streamed chunks.
	ChunkDelay time.Duration

	// SSE streams replies as text/event-stream instead of text/plain.
	SSE bool

	Logger *zap.Logger
}

// Session is a stored session.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Message is a stored message.
type Message struct {
	Content string `json:"content"`
	Type    string `json:"message_type"`
}

// Server is an in-memory chat backend for demos and tests. It speaks the
// same HTTP contract as the production service.
type Server struct {
	opts   Options
	logger *zap.Logger
	router chi.Router

	mu       sync.Mutex
	sessions []Session // newest first
	messages map[string][]Message
	streams  int

	failWrites atomic.Bool
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Script == nil {
		opts.Script = DefaultScript
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		opts:     opts,
		logger:   opts.Logger.Named("devserver"),
		messages: make(map[string][]Message),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetFailWrites makes message writes fail with 500 until reset.
func (s *Server) SetFailWrites(fail bool) {
	s.failWrites.Store(fail)
}

// Streams returns how many replies have been streamed.
func (s *Server) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams
}

// Messages returns a copy of the stored messages of a session.
func (s *Server) Messages(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[id]...)
}

// =============================================================================
// ROUTES
// =============================================================================

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.requireCookie)

	r.Post("/chat-stream", s.handleStream)

	r.Route("/api/chat-sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Delete("/{id}", s.handleDeleteSession)
		r.Get("/{id}/messages", s.handleListMessages)
		r.Post("/{id}/messages", s.handlePostMessage)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) requireCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Cookie != "" && r.Header.Get("Cookie") != s.opts.Cookie {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}

	s.mu.Lock()
	s.streams++
	s.mu.Unlock()

	flusher, _ := w.(http.Flusher)
	if s.opts.SSE {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)

	for i, chunk := range s.opts.Script(req.Message) {
		if i > 0 && s.opts.ChunkDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.opts.ChunkDelay):
			}
		}
		if err := s.writeChunk(w, chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if s.opts.SSE {
		fmt.Fprint(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) writeChunk(w http.ResponseWriter, chunk string) error {
	if !s.opts.SSE {
		_, err := fmt.Fprint(w, chunk)
		return err
	}
	var sb strings.Builder
	for _, line := range strings.Split(chunk, "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	_, err := fmt.Fprint(w, sb.String())
	return err
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]Session{}, s.sessions...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Chat"
	}

	now := time.Now().UTC().Format(timeLayout)
	sess := Session{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.sessions = append([]Session{sess}, s.sessions...)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	delete(s.messages, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	out := append([]Message{}, s.messages[id]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.failWrites.Load() {
		writeError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}

	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if msg.Type != "user" && msg.Type != "assistant" {
		writeError(w, http.StatusBadRequest, "Invalid message_type")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.messages[id] = append(s.messages[id], msg)
	s.sessions[idx].UpdatedAt = time.Now().UTC().Format(timeLayout)
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) indexLocked(id string) int {
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// =============================================================================
// SERVING
// =============================================================================

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, when non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ready != nil {
		ready(ln.Addr())
	}
	s.logger.Info("devserver listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
