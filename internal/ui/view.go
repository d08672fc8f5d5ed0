// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/muesli/termenv"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/markup"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/ui/styles"
	"github.com/jeranaias/rigchat/internal/util"
)

// WelcomeMessage greets the user when a chat starts.
const WelcomeMessage = "Hello! I'm your AI assistant."

// DefaultMaxFPS caps repaints of a streaming reply.
const DefaultMaxFPS = 30

// Mode selects how a streaming reply reaches the output.
type Mode int

const (
	// ModeAuto repaints on terminals and appends elsewhere.
	ModeAuto Mode = iota
	// ModeLive repaints the reply in place as it grows.
	ModeLive
	// ModeAppend writes each reply once, when it is settled.
	ModeAppend
)

// Options configures a Terminal.
type Options struct {
	// Out defaults to os.Stdout.
	Out io.Writer

	// Color is "auto", "always" or "never".
	Color string

	// Profile overrides Color when set.
	Profile *termenv.Profile

	Mode Mode

	// Spinner animates working indicators in live mode.
	Spinner bool

	// MaxFPS caps repaints per second. Defaults to DefaultMaxFPS.
	MaxFPS int

	// EchoUser prints user messages. Off when a line editor already shows
	// what was typed.
	EchoUser bool

	// Width overrides terminal width detection.
	Width func() int
}

// =============================================================================
// TERMINAL VIEW
// =============================================================================

// Terminal is a chat.View that writes the conversation to a terminal or any
// io.Writer. The reply being streamed occupies the bottom of the output and
// is repainted in place until it is settled.
type Terminal struct {
	out        io.Writer
	theme      *styles.Theme
	live       bool
	spin       spinner.Spinner
	spinOn     bool
	echo       bool
	width      func() int
	maxFPS     int
	frameEvery time.Duration

	mu        sync.Mutex
	active    *slot
	rows      int
	sessionID string
}

var _ chat.View = (*Terminal)(nil)

// NewTerminal creates a Terminal.
func NewTerminal(opts Options) *Terminal {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	profile := ColorProfile(opts.Color, opts.Out)
	if opts.Profile != nil {
		profile = *opts.Profile
	}
	if opts.MaxFPS <= 0 {
		opts.MaxFPS = DefaultMaxFPS
	}
	if opts.Width == nil {
		out := opts.Out
		opts.Width = func() int { return Width(out) }
	}
	live := opts.Mode == ModeLive || (opts.Mode == ModeAuto && IsTerminal(opts.Out))

	return &Terminal{
		out:        opts.Out,
		theme:      styles.NewTheme(opts.Out, profile),
		live:       live,
		spin:       spinner.Line,
		spinOn:     opts.Spinner && live,
		echo:       opts.EchoUser,
		width:      opts.Width,
		maxFPS:     opts.MaxFPS,
		frameEvery: time.Second / time.Duration(opts.MaxFPS),
	}
}

// Theme returns the styles the terminal renders with.
func (t *Terminal) Theme() *styles.Theme {
	return t.theme
}

// Live reports whether replies are repainted in place.
func (t *Terminal) Live() bool {
	return t.live
}

// SessionID returns the session whose history was last shown.
func (t *Terminal) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// AppendUser shows a user message when echo is enabled.
func (t *Terminal) AppendUser(text string) {
	if !t.echo {
		return
	}
	t.print(func(w io.Writer) {
		t.writeUser(w, text)
	})
}

// BeginAssistant settles the previous reply and opens a new one.
func (t *Terminal) BeginAssistant() stream.Target {
	t.mu.Lock()
	done := t.settleLocked()
	fmt.Fprintln(t.out, t.theme.AssistantLabel.Render("Assistant"))
	s := &slot{
		t:       t,
		limiter: rate.NewLimiter(rate.Limit(t.maxFPS), 1),
	}
	t.active = s
	t.rows = 0
	t.mu.Unlock()
	wait(done)
	return s
}

// ShowHistory replaces the visible conversation with stored messages. A
// reply still streaming is settled first and keeps its own slot.
func (t *Terminal) ShowHistory(sessionID string, msgs []api.Message) {
	t.mu.Lock()
	done := t.settleLocked()
	t.sessionID = sessionID
	fmt.Fprintln(t.out, t.theme.Dim.Render(rule("session "+sessionID, t.width())))
	if len(msgs) == 0 {
		fmt.Fprintln(t.out, t.theme.Dim.Render("(no messages yet)"))
	}
	for _, m := range msgs {
		if m.Type == api.MessageUser {
			t.writeUser(t.out, m.Content)
			continue
		}
		fmt.Fprintln(t.out, t.theme.AssistantLabel.Render("Assistant"))
		fmt.Fprintln(t.out, RenderANSI(markup.Transform(m.Content), t.theme))
	}
	t.mu.Unlock()
	wait(done)
}

// Warn shows a non-fatal notice.
func (t *Terminal) Warn(msg string) {
	t.print(func(w io.Writer) {
		fmt.Fprintln(w, t.theme.RenderWarning(msg))
	})
}

// Info shows an informational line.
func (t *Terminal) Info(msg string) {
	t.print(func(w io.Writer) {
		fmt.Fprintln(w, t.theme.RenderInfo(msg))
	})
}

// Error shows an error line.
func (t *Terminal) Error(msg string) {
	t.print(func(w io.Writer) {
		fmt.Fprintln(w, t.theme.RenderError(msg))
	})
}

// Success shows a success line.
func (t *Terminal) Success(msg string) {
	t.print(func(w io.Writer) {
		fmt.Fprintln(w, t.theme.RenderSuccess(msg))
	})
}

// Println writes a line as is.
func (t *Terminal) Println(s string) {
	t.print(func(w io.Writer) {
		fmt.Fprintln(w, s)
	})
}

// Welcome greets the user as the assistant.
func (t *Terminal) Welcome() {
	t.print(func(w io.Writer) {
		fmt.Fprintln(w, t.theme.AssistantLabel.Render("Assistant"))
		fmt.Fprintln(w, WelcomeMessage)
	})
}

// PrintSessions lists sessions numbered from 1, marking the current one.
func (t *Terminal) PrintSessions(list []session.Session, currentID string) {
	t.print(func(w io.Writer) {
		if len(list) == 0 {
			fmt.Fprintln(w, t.theme.Dim.Render("No sessions."))
			return
		}
		width := t.width()
		for i, s := range list {
			marker := "  "
			if s.ID == currentID {
				marker = t.theme.SessionCurrent.Render("* ")
			}
			title := util.TruncateWidth(util.FlattenLines(s.Title), max(width-30, 10))
			meta := ""
			if !s.CreatedAt.IsZero() {
				meta = "  " + t.theme.SessionMeta.Render(s.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(w, "%s%2d. %s%s\n", marker, i+1, title, meta)
		}
	})
}

// Settle finishes the reply being streamed: the spinner stops, the latest
// content is painted and the output moves past it. Safe to call when no
// reply is open.
func (t *Terminal) Settle() {
	t.mu.Lock()
	done := t.settleLocked()
	t.mu.Unlock()
	wait(done)
}

func (t *Terminal) print(fn func(w io.Writer)) {
	t.mu.Lock()
	done := t.settleLocked()
	fn(t.out)
	t.mu.Unlock()
	wait(done)
}

func (t *Terminal) writeUser(w io.Writer, text string) {
	fmt.Fprintln(w, t.theme.UserLabel.Render("You"))
	fmt.Fprintln(w, t.theme.UserText.Render(text))
}

// settleLocked detaches the active slot and returns a channel that closes
// when its spinner goroutine has exited, or nil.
func (t *Terminal) settleLocked() <-chan struct{} {
	s := t.active
	if s == nil {
		return nil
	}
	done := s.stopSpinnerLocked()
	if s.flush != nil {
		s.flush.Stop()
		s.flush = nil
	}
	s.indicator = ""
	if t.live {
		s.paintLocked()
		fmt.Fprintln(t.out)
	} else if s.content != "" {
		fmt.Fprintln(t.out, s.content)
	}
	s.settled = true
	t.active = nil
	t.rows = 0
	return done
}

// eraseLocked moves to the first row of the live region and clears it.
func (t *Terminal) eraseLocked() {
	if t.rows > 1 {
		fmt.Fprintf(t.out, termenv.CSI+termenv.CursorPreviousLineSeq, t.rows-1)
	} else {
		fmt.Fprint(t.out, "\r")
	}
	fmt.Fprintf(t.out, termenv.CSI+termenv.EraseDisplaySeq, 0)
}

func wait(done <-chan struct{}) {
	if done != nil {
		<-done
	}
}

func rule(label string, width int) string {
	line := "── " + label + " "
	if n := width - len([]rune(line)); n > 0 {
		line += strings.Repeat("─", min(n, 40))
	}
	return line
}
