// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/markup"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// FAKES
// =============================================================================

// chunkReader returns one chunk per Read.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

type fakeBackend struct {
	mu       sync.Mutex
	next     int
	sessions []api.Session
	messages map[string][]api.Message
	writes   []string
	opened   int

	// openStream overrides the default chunk replay.
	openStream func(message string) (*api.Stream, error)
	chunks     []string
	postErr    map[api.MessageType]error
	createErr  error
}

func newFakeBackend(chunks ...string) *fakeBackend {
	return &fakeBackend{chunks: chunks, messages: map[string][]api.Message{}}
}

func (b *fakeBackend) ListSessions(context.Context) ([]api.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Session(nil), b.sessions...), nil
}

func (b *fakeBackend) CreateSession(_ context.Context, title string) (api.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return api.Session{}, b.createErr
	}
	b.next++
	s := api.Session{ID: fmt.Sprintf("s%d", b.next), Title: title}
	b.sessions = append([]api.Session{s}, b.sessions...)
	return s, nil
}

func (b *fakeBackend) DeleteSession(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.sessions {
		if s.ID == id {
			b.sessions = append(b.sessions[:i], b.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func (b *fakeBackend) OpenStream(_ context.Context, message, _ string) (*api.Stream, error) {
	b.mu.Lock()
	b.opened++
	open := b.openStream
	chunks := append([]string(nil), b.chunks...)
	b.mu.Unlock()
	if open != nil {
		return open(message)
	}
	return api.NewStream(&chunkReader{chunks: chunks}), nil
}

func (b *fakeBackend) FetchMessages(_ context.Context, id string) ([]api.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.Message(nil), b.messages[id]...), nil
}

func (b *fakeBackend) PostMessage(_ context.Context, id string, msg api.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.postErr[msg.Type]; err != nil {
		return err
	}
	b.writes = append(b.writes, fmt.Sprintf("%s(%s)", msg.Type, msg.Content))
	b.messages[id] = append(b.messages[id], msg)
	return nil
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

type slotTarget struct {
	mu   sync.Mutex
	doc  markup.Document
	errs []string
}

func (s *slotTarget) Render(doc markup.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
}

func (s *slotTarget) ShowIndicator(stream.Indicator) {}
func (s *slotTarget) ClearIndicator()                {}

func (s *slotTarget) ShowError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, msg)
}

type fakeView struct {
	mu       sync.Mutex
	log      []string
	slots    []*slotTarget
	warnings []string
	history  map[string][]api.Message
}

func newFakeView() *fakeView {
	return &fakeView{history: map[string][]api.Message{}}
}

func (v *fakeView) AppendUser(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.log = append(v.log, "user:"+text)
}

func (v *fakeView) BeginAssistant() stream.Target {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.log = append(v.log, "assistant")
	slot := &slotTarget{}
	v.slots = append(v.slots, slot)
	return slot
}

func (v *fakeView) ShowHistory(id string, msgs []api.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.log = append(v.log, "history:"+id)
	v.history[id] = msgs
}

func (v *fakeView) Warn(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.warnings = append(v.warnings, msg)
}

func newController(b *fakeBackend, v *fakeView, logger *zap.Logger) *Controller {
	clock := clockwork.NewFakeClock()
	return New(Options{
		Backend:  b,
		View:     v,
		Clock:    clock,
		Logger:   logger,
		Renderer: stream.NewRenderer(stream.Options{Clock: clock, Logger: logger}),
	})
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmitEndToEnd(t *testing.T) {
	b := newFakeBackend("Hi", " there!")
	v := newFakeView()
	c := newController(b, v, zap.NewNop())

	res, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)

	sess, ok := c.Registry().Current()
	require.True(t, ok, "a session should have been created")
	assert.Equal(t, "hello", sess.Title)
	assert.Equal(t, sess.ID, res.SessionID)
	assert.Equal(t, "Hi there!", res.Reply)
	assert.Empty(t, res.Warnings)

	require.Len(t, v.slots, 1)
	if diff := cmp.Diff(markup.Transform("Hi there!"), v.slots[0].doc); diff != "" {
		t.Errorf("assistant slot mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"user:hello", "assistant"}, v.log)
	assert.Equal(t, []string{"user(hello)", "assistant(Hi there!)"}, b.writes)
	assert.False(t, c.Busy())
}

func TestSubmitWhileBusyIsNoop(t *testing.T) {
	pr, pw := io.Pipe()
	opened := make(chan struct{})
	b := newFakeBackend()
	b.openStream = func(string) (*api.Stream, error) {
		close(opened)
		return api.NewStream(pr), nil
	}
	v := newFakeView()
	c := newController(b, v, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "first")
		done <- err
	}()

	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never opened its stream")
	}
	require.True(t, c.Busy())

	logBefore := append([]string(nil), v.log...)
	_, err := c.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 1, b.openCount(), "no second stream may be opened")
	assert.Equal(t, logBefore, v.log, "view must be unchanged")

	pw.Write([]byte("a reply long enough to display"))
	pw.Close()
	require.NoError(t, <-done)
	assert.False(t, c.Busy())
	assert.Equal(t, []string{"user(first)", "assistant(a reply long enough to display)"}, b.writes)
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	b := newFakeBackend("x")
	v := newFakeView()
	c := newController(b, v, zap.NewNop())

	_, err := c.Submit(context.Background(), "  \n\t ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, b.openCount())
	assert.Zero(t, c.Registry().Len())
}

func TestSubmitReusesCurrentSession(t *testing.T) {
	b := newFakeBackend("ok")
	v := newFakeView()
	c := newController(b, v, zap.NewNop())
	ctx := context.Background()

	first, err := c.Submit(ctx, "one")
	require.NoError(t, err)
	second, err := c.Submit(ctx, "two")
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, c.Registry().Len())
}

func TestSubmitPersistenceFailureIsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := newFakeBackend("Hi", " there!")
	b.postErr = map[api.MessageType]error{api.MessageUser: errors.New("disk full")}
	v := newFakeView()
	c := newController(b, v, zap.New(core))

	res, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err, "persistence failures must not fail the turn")
	require.Len(t, res.Warnings, 1)

	var w *PersistenceWarning
	require.True(t, errors.As(res.Warnings[0], &w))
	assert.Equal(t, api.MessageUser, w.Role)
	assert.Equal(t, []string{"assistant(Hi there!)"}, b.writes, "the reply is still saved")

	assert.Len(t, v.warnings, 1)
	assert.Equal(t, 1, logs.FilterMessage("persist message failed").Len())
	// The visible exchange is not rolled back.
	assert.Equal(t, "Hi there!", v.slots[0].doc.Text())
}

func TestSubmitTransportError(t *testing.T) {
	b := newFakeBackend()
	b.openStream = func(string) (*api.Stream, error) {
		return nil, &api.StatusError{Op: "open stream", Status: 500}
	}
	v := newFakeView()
	c := newController(b, v, zap.NewNop())

	_, err := c.Submit(context.Background(), "hello")
	assert.True(t, stream.IsKind(err, stream.KindTransport), "err = %v", err)
	assert.Equal(t, []string{stream.TransportErrorMessage}, v.slots[0].errs)
	assert.Empty(t, b.writes)
	assert.False(t, c.Busy(), "busy flag must be released after a failure")
}

func TestSubmitUnauthorized(t *testing.T) {
	b := newFakeBackend()
	b.openStream = func(string) (*api.Stream, error) {
		return nil, &api.StatusError{Op: "open stream", Status: 401}
	}
	v := newFakeView()

	var hooked int
	c := New(Options{
		Backend:        b,
		View:           v,
		Clock:          clockwork.NewFakeClock(),
		OnUnauthorized: func(error) { hooked++ },
	})

	_, err := c.Submit(context.Background(), "hello")
	assert.True(t, IsUnauthorized(err), "err = %v", err)
	assert.Equal(t, 1, hooked)
	assert.Empty(t, v.slots[0].errs, "unauthorized must not write to the target")
	assert.False(t, c.Busy())
}

type recordingArchive struct {
	turns   []Turn
	deleted []string
}

func (a *recordingArchive) SaveTurn(_ context.Context, t Turn) error {
	a.turns = append(a.turns, t)
	return nil
}

func (a *recordingArchive) DeleteSession(_ context.Context, id string) error {
	a.deleted = append(a.deleted, id)
	return nil
}

func TestSubmitArchivesTurn(t *testing.T) {
	b := newFakeBackend("Hi", " there!")
	archive := &recordingArchive{}
	c := New(Options{Backend: b, View: newFakeView(), Archive: archive, Clock: clockwork.NewFakeClock()})

	_, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, archive.turns, 1)
	assert.Equal(t, "hello", archive.turns[0].User)
	assert.Equal(t, "Hi there!", archive.turns[0].Assistant)
	assert.Equal(t, "hello", archive.turns[0].SessionTitle)
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestBootstrapCreatesSessionWhenEmpty(t *testing.T) {
	b := newFakeBackend()
	v := newFakeView()
	c := newController(b, v, zap.NewNop())

	require.NoError(t, c.Bootstrap(context.Background()))
	s, ok := c.Registry().Current()
	require.True(t, ok)
	assert.Equal(t, DefaultTitle, s.Title)
	assert.Equal(t, []string{"history:" + s.ID}, v.log)
}

func TestBootstrapShowsCurrentHistory(t *testing.T) {
	b := newFakeBackend()
	b.sessions = []api.Session{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}
	b.messages["a"] = []api.Message{{Content: "hi", Type: api.MessageUser}}
	v := newFakeView()
	c := newController(b, v, zap.NewNop())

	require.NoError(t, c.Bootstrap(context.Background()))
	assert.Equal(t, "a", c.Registry().CurrentID())
	assert.Equal(t, b.messages["a"], v.history["a"])
}

func TestSelectAndDeleteSession(t *testing.T) {
	b := newFakeBackend()
	b.sessions = []api.Session{{ID: "a"}, {ID: "b"}}
	v := newFakeView()
	c := newController(b, v, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Bootstrap(ctx))

	changed, err := c.SelectSession(ctx, "a")
	require.NoError(t, err)
	assert.False(t, changed, "selecting the current session is a no-op")

	changed, err = c.SelectSession(ctx, "b")
	require.NoError(t, err)
	assert.True(t, changed)

	require.NoError(t, c.DeleteSession(ctx, "b"))
	assert.Equal(t, "a", c.Registry().CurrentID())

	require.NoError(t, c.DeleteSession(ctx, "a"))
	s, ok := c.Registry().Current()
	require.True(t, ok, "a replacement session should exist")
	assert.Equal(t, DefaultTitle, s.Title)
	assert.Equal(t, 1, c.Registry().Len())
}

func TestDeleteSessionPurgesArchive(t *testing.T) {
	b := newFakeBackend()
	b.sessions = []api.Session{{ID: "a"}, {ID: "b"}}
	archive := &recordingArchive{}
	c := New(Options{Backend: b, View: newFakeView(), Archive: archive, Clock: clockwork.NewFakeClock()})
	ctx := context.Background()
	require.NoError(t, c.Bootstrap(ctx))

	require.NoError(t, c.DeleteSession(ctx, "b"))
	assert.Equal(t, []string{"b"}, archive.deleted)

	err := c.DeleteSession(ctx, "missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"b"}, archive.deleted, "failed deletes leave the archive alone")
}

func TestSelectDuringTurnDoesNotCancel(t *testing.T) {
	pr, pw := io.Pipe()
	opened := make(chan struct{})
	b := newFakeBackend()
	b.sessions = []api.Session{{ID: "a"}, {ID: "b"}}
	b.openStream = func(string) (*api.Stream, error) {
		close(opened)
		return api.NewStream(pr), nil
	}
	v := newFakeView()
	c := newController(b, v, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Bootstrap(ctx))

	done := make(chan *TurnResult, 1)
	go func() {
		res, _ := c.Submit(ctx, "question")
		done <- res
	}()
	<-opened

	_, err := c.SelectSession(ctx, "b")
	require.NoError(t, err)

	pw.Write([]byte(strings.Repeat("answer ", 5)))
	pw.Close()
	res := <-done
	require.NotNil(t, res)
	assert.Equal(t, "a", res.SessionID, "the turn stays with its original session")
	assert.Equal(t, strings.TrimSpace(strings.Repeat("answer ", 5)), strings.TrimSpace(v.slots[0].doc.Text()))
}

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestTitleFromMessage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"line one\nline two", "line one line two"},
		{"   ", DefaultTitle},
		{strings.Repeat("a", 60), strings.Repeat("a", 47) + "..."},
		{"cafe\u0301", "caf\u00e9"},
	}
	for _, tt := range tests {
		if got := TitleFromMessage(tt.in); got != tt.want {
			t.Errorf("TitleFromMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
