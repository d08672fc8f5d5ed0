// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/jeranaias/rigchat/internal/markup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// FAKES
// =============================================================================

type chanSource struct {
	ch        chan chunkResult
	done      chan struct{}
	closeOnce sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan chunkResult), done: make(chan struct{})}
}

func (s *chanSource) send(text string) { s.ch <- chunkResult{text: text} }
func (s *chanSource) end()             { s.ch <- chunkResult{err: io.EOF} }

func (s *chanSource) Next(ctx context.Context) (string, error) {
	select {
	case r := <-s.ch:
		return r.text, r.err
	case <-s.done:
		return "", io.ErrClosedPipe
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *chanSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// sliceSource replays fixed chunks then io.EOF.
type sliceSource struct {
	chunks []string
	err    error
}

func (s *sliceSource) Next(context.Context) (string, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceSource) Close() error { return nil }

type event struct {
	Op  string
	Arg string
	Doc markup.Document
}

type recordingTarget struct {
	mu     sync.Mutex
	events []event
	notify chan event
}

func newRecordingTarget() *recordingTarget {
	return &recordingTarget{notify: make(chan event, 64)}
}

func (r *recordingTarget) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.notify <- e
}

func (r *recordingTarget) Render(doc markup.Document) { r.add(event{Op: "render", Doc: doc}) }
func (r *recordingTarget) ShowIndicator(k Indicator) { r.add(event{Op: "indicator", Arg: k.Label()}) }
func (r *recordingTarget) ClearIndicator()           { r.add(event{Op: "clear"}) }
func (r *recordingTarget) ShowError(msg string)      { r.add(event{Op: "error", Arg: msg}) }

func (r *recordingTarget) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Op
	}
	return out
}

func (r *recordingTarget) last() event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return event{}
	}
	return r.events[len(r.events)-1]
}

func (r *recordingTarget) await(t *testing.T, op string) event {
	t.Helper()
	for {
		select {
		case e := <-r.notify:
			if e.Op == op {
				return e
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q; saw %v", op, r.ops())
			return event{}
		}
	}
}

type authError struct{}

func (authError) Error() string      { return "401 unauthorized" }
func (authError) Unauthorized() bool { return true }

func newTestRenderer(t *testing.T, clock clockwork.Clock) *Renderer {
	return NewRenderer(Options{Clock: clock, Logger: zaptest.NewLogger(t)})
}

// =============================================================================
// RUN TESTS
// =============================================================================

func TestRunSearchThenFinalMarker(t *testing.T) {
	r := newTestRenderer(t, clockwork.NewFakeClock())
	target := newRecordingTarget()
	src := &sliceSource{chunks: []string{"Sear", "ching the web", "Here's what I found: X"}}

	text, err := r.Run(context.Background(), src, target)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if text != "Here's what I found: X" {
		t.Errorf("Run() = %q, want %q", text, "Here's what I found: X")
	}

	wantOps := []string{"indicator", "clear", "render"}
	if diff := cmp.Diff(wantOps, target.ops()); diff != "" {
		t.Errorf("target ops mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(markup.Transform("Here's what I found: X"), target.last().Doc); diff != "" {
		t.Errorf("rendered document mismatch (-want +got):\n%s", diff)
	}
}

func TestRunPlainReplyRendersOnEnd(t *testing.T) {
	r := newTestRenderer(t, clockwork.NewFakeClock())
	target := newRecordingTarget()

	text, err := r.Run(context.Background(), &sliceSource{chunks: []string{"Hi", " there!"}}, target)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if text != "Hi there!" {
		t.Errorf("Run() = %q, want %q", text, "Hi there!")
	}
	if diff := cmp.Diff([]string{"render"}, target.ops()); diff != "" {
		t.Errorf("target ops mismatch (-want +got):\n%s", diff)
	}
	if got := target.last().Doc.HTML(); got != "Hi there!" {
		t.Errorf("rendered HTML = %q, want %q", got, "Hi there!")
	}
}

func TestRunEmptyStreamStillRenders(t *testing.T) {
	r := newTestRenderer(t, clockwork.NewFakeClock())
	target := newRecordingTarget()

	if _, err := r.Run(context.Background(), &sliceSource{}, target); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"render"}, target.ops()); diff != "" {
		t.Errorf("target ops mismatch (-want +got):\n%s", diff)
	}
}

func TestRunRendersEveryDisplayingChunk(t *testing.T) {
	r := newTestRenderer(t, clockwork.NewFakeClock())
	target := newRecordingTarget()
	chunks := []string{"This reply is long enough", " to **display**", " right away."}

	if _, err := r.Run(context.Background(), &sliceSource{chunks: chunks}, target); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"render", "render", "render"}, target.ops()); diff != "" {
		t.Errorf("target ops mismatch (-want +got):\n%s", diff)
	}
	want := "This reply is long enough to <strong>display</strong> right away."
	if got := target.last().Doc.HTML(); got != want {
		t.Errorf("rendered HTML = %q, want %q", got, want)
	}
}

func TestRunStalenessForcesDisplay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newTestRenderer(t, clock)
	target := newRecordingTarget()
	src := newChanSource()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := r.Run(context.Background(), src, target)
		done <- result{text, err}
	}()

	src.send("Searching the web")
	target.await(t, "indicator")

	clock.BlockUntil(1)
	clock.Advance(DefaultStaleAfter)

	e := target.await(t, "render")
	if got := e.Doc.Text(); got != "Searching the web" {
		t.Errorf("forced render text = %q, want %q", got, "Searching the web")
	}

	src.send(" more")
	target.await(t, "render")
	src.end()

	res := <-done
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if res.text != "Searching the web more" {
		t.Errorf("Run() = %q, want %q", res.text, "Searching the web more")
	}
	if diff := cmp.Diff([]string{"indicator", "clear", "render", "render"}, target.ops()); diff != "" {
		t.Errorf("target ops mismatch (-want +got):\n%s", diff)
	}
}

func TestRunSummarizingResetsTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newTestRenderer(t, clock)
	target := newRecordingTarget()
	src := newChanSource()

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), src, target)
		done <- err
	}()

	src.send("Searching")
	target.await(t, "indicator")
	clock.BlockUntil(1)
	clock.Advance(5 * time.Second)

	src.send(" now summarizing")
	if e := target.await(t, "indicator"); e.Arg != IndicatorSummarizing.Label() {
		t.Errorf("indicator = %q, want %q", e.Arg, IndicatorSummarizing.Label())
	}
	clock.BlockUntil(1)

	// The first timer would have fired here; the reset one must not.
	clock.Advance(5 * time.Second)
	src.send(" Here's what I found: done")
	target.await(t, "render")
	src.end()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"indicator", "indicator", "clear", "render"}, target.ops()); diff != "" {
		t.Errorf("target ops mismatch (-want +got):\n%s", diff)
	}
}

func TestRunTransportErrorMidStream(t *testing.T) {
	r := newTestRenderer(t, clockwork.NewFakeClock())
	target := newRecordingTarget()
	src := &sliceSource{chunks: []string{"Searching"}, err: errors.New("connection reset")}

	_, err := r.Run(context.Background(), src, target)
	if !IsKind(err, KindTransport) {
		t.Fatalf("Run() error = %v, want transport StreamError", err)
	}
	var se *StreamError
	if errors.As(err, &se) && se.Partial != "Searching" {
		t.Errorf("Partial = %q, want %q", se.Partial, "Searching")
	}
	if got := target.last(); got.Op != "error" || got.Arg != TransportErrorMessage {
		t.Errorf("last target event = %+v, want error %q", got, TransportErrorMessage)
	}
}

func TestRunUnauthorizedLeavesTargetAlone(t *testing.T) {
	r := newTestRenderer(t, clockwork.NewFakeClock())
	target := newRecordingTarget()

	_, err := r.Run(context.Background(), &sliceSource{err: authError{}}, target)
	if !IsKind(err, KindUnauthorized) {
		t.Fatalf("Run() error = %v, want unauthorized StreamError", err)
	}
	if ops := target.ops(); len(ops) != 0 {
		t.Errorf("target ops = %v, want none", ops)
	}
}

func TestRunContextCanceled(t *testing.T) {
	r := newTestRenderer(t, clockwork.NewFakeClock())
	target := newRecordingTarget()
	src := newChanSource()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, src, target)
		done <- err
	}()

	src.send("Searching")
	target.await(t, "indicator")
	cancel()

	err := <-done
	if !IsKind(err, KindCanceled) {
		t.Fatalf("Run() error = %v, want canceled StreamError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(err, context.Canceled) = false for %v", err)
	}
}

// =============================================================================
// START TESTS
// =============================================================================

func TestStartOpenFailures(t *testing.T) {
	tests := []struct {
		name     string
		openErr  error
		wantKind ErrorKind
		wantOps  []string
	}{
		{"transport", errors.New("dial tcp: refused"), KindTransport, []string{"error"}},
		{"unauthorized", authError{}, KindUnauthorized, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, clockwork.NewFakeClock())
			target := newRecordingTarget()
			open := func(context.Context) (Source, error) { return nil, tt.openErr }

			_, err := r.Start(context.Background(), open, target)
			if !IsKind(err, tt.wantKind) {
				t.Fatalf("Start() error = %v, want kind %v", err, tt.wantKind)
			}
			if !errors.Is(err, tt.openErr) {
				t.Errorf("errors.Is(err, openErr) = false for %v", err)
			}
			if diff := cmp.Diff(tt.wantOps, target.ops()); diff != "" {
				t.Errorf("target ops mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStartRunsStream(t *testing.T) {
	r := newTestRenderer(t, clockwork.NewFakeClock())
	target := newRecordingTarget()
	open := func(context.Context) (Source, error) {
		return &sliceSource{chunks: []string{"Search result:  **ok**"}}, nil
	}

	text, err := r.Start(context.Background(), open, target)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if text != "**ok**" {
		t.Errorf("Start() = %q, want %q", text, "**ok**")
	}
	if got := target.last().Doc.HTML(); got != "<strong>ok</strong>" {
		t.Errorf("rendered HTML = %q, want %q", got, "<strong>ok</strong>")
	}
}

func TestStreamErrorMessage(t *testing.T) {
	err := &StreamError{Kind: KindTransport, Partial: "abc", Err: io.ErrUnexpectedEOF}
	want := "stream transport error (partial content received: 3 chars): unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("StreamError should unwrap to its cause")
	}
}
