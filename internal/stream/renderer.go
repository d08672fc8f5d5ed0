// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/markup"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Source yields the chunks of one reply in arrival order. Next returns
// io.EOF after the last chunk. Close unblocks a pending Next.
type Source interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// OpenFunc opens a Source. Errors returned before any bytes arrive (dial
// failures, non-success status) are classified by Renderer.Start.
type OpenFunc func(ctx context.Context) (Source, error)

// Indicator is a "working" indicator shown while the reply is not yet
// displayable.
type Indicator int

const (
	IndicatorSearching Indicator = iota
	IndicatorSummarizing
)

// Label returns the human-readable indicator text.
func (i Indicator) Label() string {
	if i == IndicatorSummarizing {
		return "Summarizing results"
	}
	return "Searching the web"
}

// Target is the write-only output slot for one reply. Render replaces any
// previous content.
type Target interface {
	Render(doc markup.Document)
	ShowIndicator(kind Indicator)
	ClearIndicator()
	ShowError(message string)
}

// =============================================================================
// RENDERER
// =============================================================================

// Options configures a Renderer.
type Options struct {
	Markers    Markers
	StaleAfter time.Duration
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// Stats describes one completed run.
type Stats struct {
	Chunks     int
	Bytes      int
	FirstChunk time.Duration
	Duration   time.Duration
	TimedOut   bool
	Phase      Phase
}

// Renderer drives streamed replies. A Renderer holds configuration only and
// may run several replies one after another; each Run owns its own state.
type Renderer struct {
	markers    Markers
	staleAfter time.Duration
	clock      clockwork.Clock
	logger     *zap.Logger
}

// NewRenderer creates a Renderer. Zero options fall back to defaults.
func NewRenderer(opts Options) *Renderer {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Renderer{
		markers:    opts.Markers.withDefaults(),
		staleAfter: opts.StaleAfter,
		clock:      opts.Clock,
		logger:     opts.Logger,
	}
}

// Start opens the stream and runs it. Open failures are reported the same
// way as mid-stream failures: unauthorized errors leave the target alone,
// anything else writes TransportErrorMessage.
func (r *Renderer) Start(ctx context.Context, open OpenFunc, target Target) (string, error) {
	src, err := open(ctx)
	if err != nil {
		if isUnauthorized(err) {
			return "", &StreamError{Kind: KindUnauthorized, Err: err}
		}
		if ctx.Err() != nil {
			return "", &StreamError{Kind: KindCanceled, Err: ctx.Err()}
		}
		target.ShowError(TransportErrorMessage)
		return "", &StreamError{Kind: KindTransport, Err: err}
	}
	return r.Run(ctx, src, target)
}

type chunkResult struct {
	text string
	err  error
}

// Run consumes src until it ends, rendering into target. It returns the
// final displayed text (with any prefix before the final marker stripped).
func (r *Renderer) Run(ctx context.Context, src Source, target Target) (string, error) {
	ctx, cancel := context.WithCancel(ctx)

	chunks := make(chan chunkResult)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(chunks)
		for {
			text, err := src.Next(ctx)
			select {
			case chunks <- chunkResult{text: text, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer func() {
		cancel()
		src.Close()
		wg.Wait()
	}()

	run := &turn{
		r:      r,
		target: target,
		cls:    NewClassifier(r.markers, r.clock.Now()),
		start:  r.clock.Now(),
	}
	defer run.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return "", run.fail(KindCanceled, ctx.Err())

		case <-run.timerC:
			run.timerC = nil
			run.stats.TimedOut = true
			r.logger.Debug("stale indicator, forcing display",
				zap.Stringer("phase", run.cls.Phase()),
				zap.Duration("stale_after", r.staleAfter))
			run.apply(run.cls.ForceDisplay(r.clock.Now()))

		case res, ok := <-chunks:
			if !ok || errors.Is(res.err, io.EOF) {
				return run.finish(), nil
			}
			if res.err != nil {
				if isUnauthorized(res.err) {
					return "", run.fail(KindUnauthorized, res.err)
				}
				if ctx.Err() != nil {
					return "", run.fail(KindCanceled, ctx.Err())
				}
				failure := run.fail(KindTransport, res.err)
				target.ShowError(TransportErrorMessage)
				return "", failure
			}
			run.record(res.text)
			run.apply(run.cls.Feed(res.text, r.clock.Now()))
		}
	}
}

// turn is the state of one Run. It is confined to the Run goroutine.
type turn struct {
	r      *Renderer
	target Target
	cls    *Classifier
	memo   markup.Memo

	timer  clockwork.Timer
	timerC <-chan time.Time

	indicatorUp bool
	start       time.Time
	stats       Stats
}

func (t *turn) record(chunk string) {
	if t.stats.Chunks == 0 {
		t.stats.FirstChunk = t.r.clock.Since(t.start)
	}
	t.stats.Chunks++
	t.stats.Bytes += len(chunk)
}

func (t *turn) apply(action Action) {
	switch action {
	case ActionShowSearching:
		t.resetTimer()
		t.target.ShowIndicator(IndicatorSearching)
		t.indicatorUp = true
	case ActionShowSummarizing:
		t.resetTimer()
		t.target.ShowIndicator(IndicatorSummarizing)
		t.indicatorUp = true
	case ActionDisplay:
		t.stopTimer()
		t.clearIndicator()
		t.render()
	case ActionRender:
		t.render()
	}
}

func (t *turn) render() {
	t.target.Render(t.memo.Transform(t.cls.Content()))
}

func (t *turn) clearIndicator() {
	if t.indicatorUp {
		t.target.ClearIndicator()
		t.indicatorUp = false
	}
}

func (t *turn) resetTimer() {
	t.stopTimer()
	t.timer = t.r.clock.NewTimer(t.r.staleAfter)
	t.timerC = t.timer.Chan()
}

func (t *turn) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.timerC = nil
}

// finish handles a normal end of stream. A reply that never reached
// Displaying is rendered once so no turn ends with an empty slot.
func (t *turn) finish() string {
	t.stopTimer()
	if t.cls.Phase() != PhaseDisplaying {
		t.cls.ForceDisplay(t.r.clock.Now())
		t.clearIndicator()
		t.render()
	}
	t.stats.Duration = t.r.clock.Since(t.start)
	t.stats.Phase = t.cls.Phase()
	t.r.logger.Debug("stream complete",
		zap.Int("chunks", t.stats.Chunks),
		zap.Int("bytes", t.stats.Bytes),
		zap.Duration("first_chunk", t.stats.FirstChunk),
		zap.Duration("duration", t.stats.Duration),
		zap.Bool("timed_out", t.stats.TimedOut))
	return t.cls.Content()
}

func (t *turn) fail(kind ErrorKind, err error) error {
	t.stopTimer()
	t.clearIndicatorOnFailure(kind)
	t.r.logger.Warn("stream failed",
		zap.Stringer("kind", kind),
		zap.Int("chunks", t.stats.Chunks),
		zap.Error(err))
	return &StreamError{Kind: kind, Partial: t.cls.State().Buffer, Err: err}
}

// clearIndicatorOnFailure removes a lingering indicator, except for
// unauthorized failures, which must not touch the target.
func (t *turn) clearIndicatorOnFailure(kind ErrorKind) {
	if kind == KindUnauthorized {
		return
	}
	t.clearIndicator()
}
