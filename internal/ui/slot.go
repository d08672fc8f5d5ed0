// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/markup"
	"github.com/jeranaias/rigchat/internal/stream"
)

// slot is the stream.Target of one assistant reply. All fields are guarded
// by the owning Terminal's mutex.
type slot struct {
	t       *Terminal
	limiter *rate.Limiter

	content   string
	indicator string
	frame     int
	dirty     bool
	settled   bool

	flush    *time.Timer
	stopSpin chan struct{}
	spinDone chan struct{}
}

var _ stream.Target = (*slot)(nil)

// Render replaces the reply. Repaints beyond the frame budget are coalesced
// into one deferred repaint.
func (s *slot) Render(doc markup.Document) {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	s.content = RenderANSI(doc, t.theme)
	if !t.live || s.settled {
		return
	}
	if s.limiter.Allow() {
		s.paintLocked()
		return
	}
	s.dirty = true
	if s.flush == nil {
		s.flush = time.AfterFunc(t.frameEvery, s.flushPending)
	}
}

// ShowIndicator shows a working indicator below the reply.
func (s *slot) ShowIndicator(kind stream.Indicator) {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	s.indicator = kind.Label()
	if !t.live || s.settled {
		return
	}
	s.paintLocked()
	if t.spinOn && s.stopSpin == nil {
		s.stopSpin = make(chan struct{})
		s.spinDone = make(chan struct{})
		go s.animate(s.stopSpin, s.spinDone)
	}
}

// ClearIndicator removes the working indicator.
func (s *slot) ClearIndicator() {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	s.stopSpinnerLocked()
	if s.indicator == "" {
		return
	}
	s.indicator = ""
	if t.live && !s.settled {
		s.paintLocked()
	}
}

// ShowError replaces the reply with an error message.
func (s *slot) ShowError(message string) {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	s.stopSpinnerLocked()
	s.indicator = ""
	s.content = t.theme.Error.Render(message)
	if t.live && !s.settled {
		s.paintLocked()
	}
}

func (s *slot) flushPending() {
	t := s.t
	t.mu.Lock()
	defer t.mu.Unlock()

	s.flush = nil
	if s.dirty && !s.settled {
		s.paintLocked()
	}
}

func (s *slot) animate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.t.spin.FPS)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		s.t.mu.Lock()
		select {
		case <-stop:
			s.t.mu.Unlock()
			return
		default:
		}
		s.frame++
		if s.indicator != "" && !s.settled {
			s.paintLocked()
		}
		s.t.mu.Unlock()
	}
}

// stopSpinnerLocked stops the spinner goroutine and returns a channel that
// closes once it has exited, or nil when none ran.
func (s *slot) stopSpinnerLocked() <-chan struct{} {
	if s.stopSpin != nil {
		close(s.stopSpin)
		s.stopSpin = nil
	}
	return s.spinDone
}

// paintLocked redraws the live region with the current frame. Detached or
// settled slots never write.
func (s *slot) paintLocked() {
	t := s.t
	if t.active != s || s.settled {
		return
	}
	s.dirty = false
	frame := s.frameText()
	t.eraseLocked()
	fmt.Fprint(t.out, frame)
	t.rows = Rows(frame, t.width())
}

func (s *slot) frameText() string {
	var parts []string
	if s.content != "" {
		parts = append(parts, s.content)
	}
	if s.indicator != "" {
		var glyph string
		if frames := s.t.spin.Frames; s.t.spinOn && len(frames) > 0 {
			glyph = frames[s.frame%len(frames)] + " "
		}
		parts = append(parts, s.t.theme.Indicator.Render(glyph+s.indicator+"..."))
	}
	return strings.Join(parts, "\n")
}
