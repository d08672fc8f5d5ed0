// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/devserver"
	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// HELPERS
// =============================================================================

type cliResult struct {
	out  string
	err  string
	code int
}

// newBackend starts a devserver and points the CLI environment at it.
func newBackend(t *testing.T, opts devserver.Options) *devserver.Server {
	t.Helper()
	srv := devserver.New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	home := t.TempDir()
	t.Setenv("RIGCHAT_HOME", home)
	t.Setenv("RIGCHAT_BASE_URL", ts.URL)
	t.Setenv("RIGCHAT_LOG_LEVEL", "off")
	t.Setenv("RIGCHAT_ARCHIVE", "")
	t.Setenv("NO_COLOR", "1")
	return srv
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	var out, errOut bytes.Buffer
	app := &App{In: strings.NewReader(stdin), Out: &out, ErrOut: &errOut}
	code := run(app, args)
	return cliResult{out: out.String(), err: errOut.String(), code: code}
}

// decodeData decodes the data field of a --json envelope into v.
func decodeData(t *testing.T, raw string, v any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *string         `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &env), raw)
	require.True(t, env.Success, "envelope error: %v", env.Error)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func askJSON(t *testing.T, args ...string) askResult {
	t.Helper()
	res := runCLI(t, "", append([]string{"ask", "--json"}, args...)...)
	require.Equal(t, ExitSuccess, res.code, res.err)
	var r askResult
	decodeData(t, res.out, &r)
	return r
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_PrintsReplyAndStoresTurn(t *testing.T) {
	srv := newBackend(t, devserver.Options{})

	res := runCLI(t, "", "ask", "hello")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "Assistant")
	assert.Contains(t, res.out, "You said: hello")
	assert.NotContains(t, res.out, "You\nhello", "ask does not echo the question")

	list := runCLI(t, "", "sessions", "--json")
	require.Equal(t, ExitSuccess, list.code, list.err)
	var sessions []sessionInfo
	decodeData(t, list.out, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "hello", sessions[0].Title)

	assert.Equal(t, []devserver.Message{
		{Content: "hello", Type: "user"},
		{Content: "You said: hello", Type: "assistant"},
	}, srv.Messages(sessions[0].ID))
}

func TestAsk_JSON(t *testing.T) {
	newBackend(t, devserver.Options{})

	r := askJSON(t, "search golang")
	assert.NotEmpty(t, r.SessionID)
	assert.True(t, strings.HasPrefix(r.Reply, "Here's what I found:"), "reply = %q", r.Reply)
	assert.Contains(t, r.Reply, "**golang**")
	assert.Empty(t, r.Warnings)
}

func TestAsk_StdinAndContinue(t *testing.T) {
	srv := newBackend(t, devserver.Options{})

	first := askJSON(t, "one")

	res := runCLI(t, "two\n", "ask", "--continue", "-")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "You said: two")

	msgs := srv.Messages(first.SessionID)
	require.Len(t, msgs, 4)
	assert.Equal(t, "two", msgs[2].Content)
}

func TestAsk_SessionFlag(t *testing.T) {
	srv := newBackend(t, devserver.Options{})

	a := askJSON(t, "first")
	askJSON(t, "second")

	// Newest first: the first session is now #2.
	r := askJSON(t, "--session", "2", "again")
	assert.Equal(t, a.SessionID, r.SessionID)
	assert.Len(t, srv.Messages(a.SessionID), 4)

	res := runCLI(t, "", "ask", "--session", "9", "nope")
	assert.Equal(t, ExitNotFoundError, res.code)
}

func TestAsk_EmptyMessage(t *testing.T) {
	newBackend(t, devserver.Options{})

	res := runCLI(t, "   \n", "ask")
	assert.Equal(t, ExitUsageError, res.code)
	assert.Contains(t, res.err, "nothing to ask")
}

func TestAsk_PersistenceWarning(t *testing.T) {
	srv := newBackend(t, devserver.Options{})
	srv.SetFailWrites(true)

	r := askJSON(t, "hi")
	assert.Equal(t, "You said: hi", r.Reply)
	assert.Len(t, r.Warnings, 2)
}

func TestAsk_Unauthorized(t *testing.T) {
	newBackend(t, devserver.Options{Cookie: "session=ok"})

	res := runCLI(t, "", "ask", "hello")
	assert.Equal(t, ExitAuthError, res.code)
	assert.Contains(t, res.err, "RIGCHAT_COOKIE")
	assert.Contains(t, res.err, "Error:")

	ok := runCLI(t, "", "--cookie", "session=ok", "ask", "hello")
	assert.Equal(t, ExitSuccess, ok.code, ok.err)
}

func TestAsk_NetworkError(t *testing.T) {
	newBackend(t, devserver.Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	res := runCLI(t, "", "--base-url", "http://"+addr, "ask", "hello")
	assert.Equal(t, ExitNetworkError, res.code, res.err)
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat_PipedSession(t *testing.T) {
	srv := newBackend(t, devserver.Options{})

	input := strings.Join([]string{
		"hello",
		"/sessions",
		"/new",
		"search cats",
		"/switch 2",
		"/bogus",
		"/quit",
		"never sent",
	}, "\n")
	res := runCLI(t, input, "chat")
	require.Equal(t, ExitSuccess, res.code, res.err)

	out := res.out
	assert.Contains(t, out, "Hello! I'm your AI assistant.")
	assert.Contains(t, out, "You\nhello")
	assert.Contains(t, out, "You said: hello")
	assert.Contains(t, out, " 1. New chat")
	assert.Contains(t, out, "Started a new session.")
	assert.Contains(t, out, "Here's what I found:")
	assert.Contains(t, out, "unknown command /bogus")
	assert.NotContains(t, out, "never sent")

	// Switching back shows the first session's stored turn.
	last := out[strings.LastIndex(out, "session "):]
	assert.Contains(t, last, "hello")
	assert.Equal(t, 2, srv.Streams())
}

func TestChat_HelpAndHistory(t *testing.T) {
	newBackend(t, devserver.Options{})

	res := runCLI(t, "ping\n/history\n/help\n", "chat", "--new")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "/switch <n|id>")
	assert.Contains(t, res.out, "Ctrl+C cancels a streaming reply.")
	assert.GreaterOrEqual(t, strings.Count(res.out, "You said: ping"), 2)
}

func TestChat_PickNeedsTerminal(t *testing.T) {
	newBackend(t, devserver.Options{})

	res := runCLI(t, "/pick\n", "chat")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "/pick needs a terminal")
}

func TestChat_Unauthorized(t *testing.T) {
	newBackend(t, devserver.Options{Cookie: "session=ok"})

	res := runCLI(t, "hello\n", "chat")
	assert.Equal(t, ExitAuthError, res.code)
}

// =============================================================================
// SESSIONS / HISTORY / SEARCH
// =============================================================================

func TestSessions_NewListRemove(t *testing.T) {
	newBackend(t, devserver.Options{})

	res := runCLI(t, "", "sessions")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "No sessions.")

	created := runCLI(t, "", "sessions", "new", "Trip", "planning")
	require.Equal(t, ExitSuccess, created.code, created.err)
	id := strings.TrimSpace(created.out)
	assert.NotEmpty(t, id)
	runCLI(t, "", "sessions", "new")

	res = runCLI(t, "", "sessions", "ls")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, " 1. "+chat.DefaultTitle)
	assert.Contains(t, res.out, " 2. Trip planning")

	res = runCLI(t, "", "sessions", "rm", id)
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "Deleted session "+id)

	res = runCLI(t, "", "sessions", "rm", "5")
	assert.Equal(t, ExitNotFoundError, res.code)
}

func TestHistory_ServerFormats(t *testing.T) {
	newBackend(t, devserver.Options{})
	r := askJSON(t, "hello")

	res := runCLI(t, "", "history")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "session "+r.SessionID)
	assert.Contains(t, res.out, "You said: hello")

	res = runCLI(t, "", "history", "1", "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.err)
	var tr export.Transcript
	require.NoError(t, json.Unmarshal([]byte(res.out), &tr))
	assert.Equal(t, r.SessionID, tr.SessionID)
	assert.Equal(t, export.SourceServer, tr.Source)
	assert.Equal(t, []api.Message{
		{Content: "hello", Type: api.MessageUser},
		{Content: "You said: hello", Type: api.MessageAssistant},
	}, tr.Messages)

	dir := t.TempDir()
	res = runCLI(t, "", "history", "--format", "md", "--output", dir)
	require.Equal(t, ExitSuccess, res.code, res.err)
	path := strings.TrimSpace(res.out)
	assert.Equal(t, dir, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "You said: hello")
}

func TestHistory_BadFlags(t *testing.T) {
	newBackend(t, devserver.Options{})

	assert.Equal(t, ExitUsageError, runCLI(t, "", "history", "--format", "pdf").code)
	assert.Equal(t, ExitUsageError, runCLI(t, "", "history", "--output", "x").code)
	assert.Equal(t, ExitUsageError, runCLI(t, "", "history", "--nope").code)
}

func TestHistory_Render(t *testing.T) {
	newBackend(t, devserver.Options{})
	askJSON(t, "hello")

	res := runCLI(t, "", "history", "--render")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "You said: hello")
}

func TestHistoryAndSearch_Archive(t *testing.T) {
	newBackend(t, devserver.Options{})

	res := runCLI(t, "", "search", "x")
	assert.Equal(t, ExitUsageError, res.code)

	t.Setenv("RIGCHAT_ARCHIVE", "1")
	r := askJSON(t, "hello archive")
	askJSON(t, "search otters")

	res = runCLI(t, "", "history", "--local", r.SessionID, "--format", "json")
	require.Equal(t, ExitSuccess, res.code, res.err)
	var tr export.Transcript
	require.NoError(t, json.Unmarshal([]byte(res.out), &tr))
	assert.Equal(t, r.SessionID, tr.SessionID)
	assert.Equal(t, export.SourceArchive, tr.Source)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "You said: hello archive", tr.Messages[1].Content)

	res = runCLI(t, "", "search", "archive")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "you: hello archive")
	assert.NotContains(t, res.out, "otters")

	res = runCLI(t, "", "search", "--json", "OTTERS")
	require.Equal(t, ExitSuccess, res.code, res.err)
	var hits []searchHit
	decodeData(t, res.out, &hits)
	require.Len(t, hits, 1)
	assert.Equal(t, "search otters", hits[0].User)

	res = runCLI(t, "", "search", "zebra")
	assert.Contains(t, res.out, "No matches.")

	res = runCLI(t, "", "sessions", "rm", r.SessionID)
	require.Equal(t, ExitSuccess, res.code, res.err)
	res = runCLI(t, "", "history", "--local", r.SessionID)
	assert.Equal(t, ExitNotFoundError, res.code)
	res = runCLI(t, "", "search", "archive")
	assert.Contains(t, res.out, "No matches.")
}

// =============================================================================
// CONFIG / VERSION
// =============================================================================

func TestConfig_InitSetGet(t *testing.T) {
	newBackend(t, devserver.Options{})
	home := os.Getenv("RIGCHAT_HOME")
	want := filepath.Join(home, "config.toml")

	res := runCLI(t, "", "config", "path")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Equal(t, want, strings.TrimSpace(res.out))

	res = runCLI(t, "", "config", "init")
	require.Equal(t, ExitSuccess, res.code, res.err)
	info, err := os.Stat(want)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Equal(t, ExitConfigError, runCLI(t, "", "config", "init").code)
	assert.Equal(t, ExitSuccess, runCLI(t, "", "config", "init", "--force").code)

	res = runCLI(t, "", "config", "set", "ui.max_fps", "60")
	require.Equal(t, ExitSuccess, res.code, res.err)
	res = runCLI(t, "", "config", "get", "ui.max_fps")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Equal(t, "60", strings.TrimSpace(res.out))

	assert.Equal(t, ExitConfigError, runCLI(t, "", "config", "set", "ui.color", "purple").code)
	assert.Equal(t, ExitUsageError, runCLI(t, "", "config", "get", "ui.nope").code)

	// Environment overrides are not written back.
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.NotContains(t, string(data), os.Getenv("RIGCHAT_BASE_URL"))
}

func TestConfig_ShowRedactsCookie(t *testing.T) {
	newBackend(t, devserver.Options{})

	res := runCLI(t, "", "--cookie", "session=secret", "config")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "[REDACTED]")
	assert.NotContains(t, res.out, "secret")

	res = runCLI(t, "", "--cookie", "session=secret", "config", "get", "server.cookie")
	assert.Equal(t, "[REDACTED]", strings.TrimSpace(res.out))
}

func TestConfig_InvalidFile(t *testing.T) {
	newBackend(t, devserver.Options{})
	path := filepath.Join(os.Getenv("RIGCHAT_HOME"), "config.toml")
	// No environment variable overrides this field.
	require.NoError(t, os.WriteFile(path, []byte("[stream]\ndisplay_threshold = 0\n"), 0o600))

	res := runCLI(t, "", "sessions")
	assert.Equal(t, ExitConfigError, res.code)
	assert.Contains(t, res.err, "stream.display_threshold")

	// Commands that repair the file still work.
	res = runCLI(t, "", "config", "set", "stream.display_threshold", "60")
	assert.Equal(t, ExitSuccess, res.code, res.err)
	assert.Equal(t, ExitSuccess, runCLI(t, "", "sessions").code)
}

func TestVersion(t *testing.T) {
	res := runCLI(t, "", "version")
	require.Equal(t, ExitSuccess, res.code, res.err)
	assert.Contains(t, res.out, "rigchat "+Version)
	assert.Contains(t, res.out, "commit: "+GitCommit)
}

// =============================================================================
// UNIT TESTS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"unauthorized", fmt.Errorf("%w: 401", chat.ErrUnauthorized), ExitAuthError},
		{"transport", &stream.StreamError{Kind: stream.KindTransport, Err: errors.New("reset")}, ExitNetworkError},
		{"bad url", api.ErrInvalidBaseURL, ExitNetworkError},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, ExitNetworkError},
		{"session", fmt.Errorf("x: %w", session.ErrNotFound), ExitNotFoundError},
		{"archive", storage.ErrSessionNotFound, ExitNotFoundError},
		{"validate", config.ValidateErrors{{Field: "ui.color", Message: "bad"}}, ExitConfigError},
		{"usage", usageErrorf("bad %s", "arg"), ExitUsageError},
		{"config cmd", &CommandError{Command: "config", Action: "init", Reason: "exists"}, ExitConfigError},
		{"other cmd", &CommandError{Command: "sessions", Action: "new", Reason: "x"}, ExitGeneralError},
		{"plain", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestResolveSession(t *testing.T) {
	list := []session.Session{{ID: "a1"}, {ID: "b2"}, {ID: "3"}}

	tests := []struct {
		arg     string
		want    string
		wantErr bool
	}{
		{"a1", "a1", false},
		{" b2 ", "b2", false},
		{"1", "a1", false},
		{"2", "b2", false},
		{"3", "3", false}, // an exact id wins over a position
		{"0", "", true},
		{"4", "", true},
		{"zz", "", true},
	}
	for _, tt := range tests {
		got, err := resolveSession(list, tt.arg)
		if tt.wantErr {
			if !errors.Is(err, session.ErrNotFound) {
				t.Errorf("resolveSession(%q) error = %v, want ErrNotFound", tt.arg, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("resolveSession(%q) = %q, %v, want %q", tt.arg, got, err, tt.want)
		}
	}
}

func TestLookupSlash(t *testing.T) {
	tests := map[string]string{
		"/new":  "/new",
		"/N":    "/new",
		"/ls":   "/sessions",
		"/s":    "/switch",
		"/rm":   "/delete",
		"/?":    "/help",
		"/exit": "/quit",
	}
	for in, want := range tests {
		c, ok := lookupSlash(in)
		if !ok || c.name != want {
			t.Errorf("lookupSlash(%q) = %q, %v, want %q", in, c.name, ok, want)
		}
	}
	if _, ok := lookupSlash("/nope"); ok {
		t.Error("lookupSlash(/nope) should fail")
	}
}

func TestJSONErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	err := OutputJSON(&buf, true, "demo", func() (any, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	var env JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "boom", *env.Error)
	assert.Equal(t, "demo", env.Command)
}
