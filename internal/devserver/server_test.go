// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/devserver"
	"github.com/jeranaias/rigchat/internal/markup"
	"github.com/jeranaias/rigchat/internal/stream"
)

func newBackend(t *testing.T, opts devserver.Options) (*devserver.Server, *api.Client) {
	t.Helper()
	opts.Logger = zaptest.NewLogger(t)
	srv := devserver.New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := api.New(api.Options{
		BaseURL:        ts.URL,
		Cookie:         "session=ok",
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return srv, client
}

func readAll(t *testing.T, s *api.Stream) string {
	t.Helper()
	defer s.Close()
	var sb strings.Builder
	for {
		chunk, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return sb.String()
		}
		require.NoError(t, err)
		sb.WriteString(chunk)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	ctx := context.Background()
	srv, client := newBackend(t, devserver.Options{})

	list, err := client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	first, err := client.CreateSession(ctx, "First")
	require.NoError(t, err)
	second, err := client.CreateSession(ctx, "Second")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, second.CreatedAt.IsZero(), "created_at parses")

	list, err = client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Second", list[0].Title, "newest first")

	require.NoError(t, client.PostMessage(ctx, first.ID, api.Message{Content: "hi", Type: api.MessageUser}))
	msgs, err := client.FetchMessages(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []api.Message{{Content: "hi", Type: api.MessageUser}}, msgs)
	assert.Len(t, srv.Messages(first.ID), 1)

	list, err = client.ListSessions(ctx)
	require.NoError(t, err)
	assert.False(t, list[1].UpdatedAt.Before(list[1].CreatedAt), "updated_at follows writes")

	require.NoError(t, client.DeleteSession(ctx, first.ID))
	_, err = client.FetchMessages(ctx, first.ID)
	var se *api.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestPostMessageValidation(t *testing.T) {
	ctx := context.Background()
	_, client := newBackend(t, devserver.Options{})

	sess, err := client.CreateSession(ctx, "x")
	require.NoError(t, err)

	err = client.PostMessage(ctx, sess.ID, api.Message{Content: "x", Type: "system"})
	assert.Error(t, err)
	err = client.PostMessage(ctx, "missing", api.Message{Content: "x", Type: api.MessageUser})
	assert.Error(t, err)
}

func TestStreamPlainAndSSE(t *testing.T) {
	for _, sse := range []bool{false, true} {
		name := "plain"
		if sse {
			name = "sse"
		}
		t.Run(name, func(t *testing.T) {
			srv, client := newBackend(t, devserver.Options{SSE: sse})

			s, err := client.OpenStream(context.Background(), "search golang", "s1")
			require.NoError(t, err)
			got := readAll(t, s)

			want := strings.Join(devserver.DefaultScript("search golang"), "")
			assert.Equal(t, want, got)
			assert.Equal(t, 1, srv.Streams())
		})
	}
}

func TestStreamRejectsEmptyMessage(t *testing.T) {
	_, client := newBackend(t, devserver.Options{})

	_, err := client.OpenStream(context.Background(), "  ", "s1")
	var se *api.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "No message provided", se.Message)
}

func TestCookieRequired(t *testing.T) {
	ctx := context.Background()
	_, client := newBackend(t, devserver.Options{Cookie: "session=other"})

	_, err := client.ListSessions(ctx)
	assert.True(t, api.IsUnauthorized(err))

	_, err = client.OpenStream(ctx, "hi", "s1")
	assert.True(t, api.IsUnauthorized(err))
}

func TestDefaultScript(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"hello", "You said: hello"},
		{"silent", "Searching the web..."},
		{"search go", "Searching the web for go...\nHere's what I found: **go** is a popular topic. Try `rigchat ask` for more."},
		{"summarize tea", "Searching the web...\nSummarizing results...\nSearch result: tea in *three* words: short, sweet, done."},
	}
	for _, tt := range tests {
		if got := strings.Join(devserver.DefaultScript(tt.msg), ""); got != tt.want {
			t.Errorf("DefaultScript(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"abc", "de"}, devserver.Chunk("abcde", 3))
	assert.Equal(t, []string{"a", "é", "b"}, devserver.Chunk("aéb", 2))
	assert.Equal(t, []string{"日", "本"}, devserver.Chunk("日本", 1))
	assert.Nil(t, devserver.Chunk("", 4))
	assert.Equal(t, "héllo wörld", strings.Join(devserver.Chunk("héllo wörld", 3), ""))
}

func TestListenAndServe(t *testing.T) {
	srv := devserver.New(devserver.Options{Logger: zaptest.NewLogger(t)})
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a })
	}()

	addr := <-addrCh
	client, err := api.New(api.Options{BaseURL: "http://" + addr.String()})
	require.NoError(t, err)
	_, err = client.ListSessions(context.Background())
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// =============================================================================
// END TO END
// =============================================================================

type slot struct {
	mu   sync.Mutex
	text string
	ind  []stream.Indicator
	err  string
}

func (s *slot) Render(doc markup.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = doc.Text()
}

func (s *slot) ShowIndicator(i stream.Indicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ind = append(s.ind, i)
}

func (s *slot) ClearIndicator() {}

func (s *slot) ShowError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = msg
}

type view struct {
	mu       sync.Mutex
	users    []string
	slots    []*slot
	warnings []string
}

func (v *view) AppendUser(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.users = append(v.users, text)
}

func (v *view) BeginAssistant() stream.Target {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := &slot{}
	v.slots = append(v.slots, s)
	return s
}

func (v *view) ShowHistory(string, []api.Message) {}

func (v *view) Warn(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.warnings = append(v.warnings, msg)
}

func TestControllerAgainstDevserver(t *testing.T) {
	ctx := context.Background()
	// Spaced chunks so the search cue arrives before the final marker.
	srv, client := newBackend(t, devserver.Options{ChunkDelay: 5 * time.Millisecond})
	v := &view{}
	ctrl := chat.New(chat.Options{Backend: client, View: v, Logger: zaptest.NewLogger(t)})

	res, err := ctrl.Submit(ctx, "search golang")
	require.NoError(t, err)

	assert.Equal(t, "Here's what I found: **golang** is a popular topic. Try `rigchat ask` for more.", res.Reply)
	require.Len(t, v.slots, 1)
	assert.Equal(t, "Here's what I found: golang is a popular topic. Try rigchat ask for more.", v.slots[0].text)
	assert.Equal(t, []stream.Indicator{stream.IndicatorSearching}, v.slots[0].ind)

	stored := srv.Messages(res.SessionID)
	require.Len(t, stored, 2)
	assert.Equal(t, devserver.Message{Content: "search golang", Type: "user"}, stored[0])
	assert.Equal(t, "assistant", stored[1].Type)
	assert.Equal(t, res.Reply, stored[1].Content)

	sessions, err := client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "search golang", sessions[0].Title)
}

func TestControllerPersistenceWarnings(t *testing.T) {
	ctx := context.Background()
	srv, client := newBackend(t, devserver.Options{})
	srv.SetFailWrites(true)
	v := &view{}
	ctrl := chat.New(chat.Options{Backend: client, View: v})

	res, err := ctrl.Submit(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "You said: hello", res.Reply)
	assert.Len(t, res.Warnings, 2)
	assert.Len(t, v.warnings, 2)
}
