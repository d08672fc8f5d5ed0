// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"time"
	"unicode/utf8"
)

// =============================================================================
// PHASES
// =============================================================================

// Phase is the classifier's current stage for one reply.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSearching
	PhaseSummarizing
	PhaseDisplaying
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSearching:
		return "searching"
	case PhaseSummarizing:
		return "summarizing"
	case PhaseDisplaying:
		return "displaying"
	default:
		return "unknown"
	}
}

// Action tells the renderer what a classification step requires.
type Action int

const (
	// ActionNone leaves the target untouched.
	ActionNone Action = iota
	// ActionShowSearching attaches the searching indicator and starts the
	// staleness timer.
	ActionShowSearching
	// ActionShowSummarizing swaps to the summarizing indicator and resets
	// the staleness timer.
	ActionShowSummarizing
	// ActionDisplay enters Displaying: the indicator is removed, the timer
	// cancelled and content rendered.
	ActionDisplay
	// ActionRender re-renders content while already Displaying.
	ActionRender
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionShowSearching:
		return "show-searching"
	case ActionShowSummarizing:
		return "show-summarizing"
	case ActionDisplay:
		return "display"
	case ActionRender:
		return "render"
	default:
		return "unknown"
	}
}

// State is the per-reply classifier state.
type State struct {
	Buffer         string
	Phase          Phase
	HasShownFinal  bool
	LastTransition time.Time
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Classifier is the phase state machine for one reply. It is not safe for
// concurrent use; the Renderer confines it to its event loop.
type Classifier struct {
	markers    Markers
	state      State
	searchSeen bool
}

// NewClassifier creates a classifier in the Idle phase.
func NewClassifier(markers Markers, now time.Time) *Classifier {
	return &Classifier{
		markers: markers.withDefaults(),
		state:   State{Phase: PhaseIdle, LastTransition: now},
	}
}

// State returns a copy of the current state.
func (c *Classifier) State() State {
	return c.state
}

// Phase returns the current phase.
func (c *Classifier) Phase() Phase {
	return c.state.Phase
}

// Content returns the displayable text: the buffer with everything before
// the final marker stripped.
func (c *Classifier) Content() string {
	return c.markers.strip(c.state.Buffer)
}

// Feed appends a chunk and evaluates the transition rules against the whole
// buffer, highest priority first.
func (c *Classifier) Feed(chunk string, now time.Time) Action {
	c.state.Buffer += chunk
	buf := c.state.Buffer
	phase := c.state.Phase

	_, _, hasFinal := c.markers.findFinal(buf)

	// Final marker wins over any indicator, even mid-chunk.
	if phase != PhaseDisplaying && hasFinal {
		c.state.HasShownFinal = true
		c.transition(PhaseDisplaying, now)
		return ActionDisplay
	}

	if (phase == PhaseSearching || phase == PhaseSummarizing) && c.markers.hasSummaryCue(buf) {
		if phase == PhaseSummarizing {
			return ActionNone
		}
		c.transition(PhaseSummarizing, now)
		return ActionShowSummarizing
	}

	if phase == PhaseIdle && c.markers.hasSearchCue(buf) {
		c.searchSeen = true
		c.transition(PhaseSearching, now)
		return ActionShowSearching
	}

	if phase != PhaseDisplaying && !c.searchSeen &&
		utf8.RuneCountInString(buf) > c.markers.DisplayThreshold {
		c.transition(PhaseDisplaying, now)
		return ActionDisplay
	}

	if phase == PhaseDisplaying {
		return ActionRender
	}
	return ActionNone
}

// ForceDisplay moves to Displaying with whatever buffer exists. It is used
// when the staleness timer fires and when the stream ends without content
// having been shown. Returns ActionNone if already Displaying.
func (c *Classifier) ForceDisplay(now time.Time) Action {
	if c.state.Phase == PhaseDisplaying {
		return ActionNone
	}
	c.transition(PhaseDisplaying, now)
	return ActionDisplay
}

func (c *Classifier) transition(to Phase, now time.Time) {
	c.state.Phase = to
	c.state.LastTransition = now
}
