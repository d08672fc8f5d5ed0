// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/stream"
)

// Options configures a Controller. Backend and View are required.
type Options struct {
	Backend  Backend
	View     View
	Renderer *stream.Renderer
	Registry *session.Registry
	Archive  Archive
	Clock    clockwork.Clock
	Logger   *zap.Logger

	// OnUnauthorized is called once per rejected request, before the
	// operation returns ErrUnauthorized.
	OnUnauthorized func(err error)
}

// TurnResult describes one submitted turn.
type TurnResult struct {
	SessionID string
	Reply     string
	Duration  time.Duration

	// Warnings holds *PersistenceWarning values for failed saves.
	Warnings []error
}

// Controller runs chat turns. At most one turn is in flight at a time.
type Controller struct {
	backend        Backend
	view           View
	registry       *session.Registry
	archive        Archive
	clock          clockwork.Clock
	logger         *zap.Logger
	onUnauthorized func(error)

	renderer atomic.Pointer[stream.Renderer]
	busy     atomic.Bool
}

// New creates a Controller.
func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = session.NewRegistry(opts.Backend, opts.Logger)
	}
	if opts.Renderer == nil {
		opts.Renderer = stream.NewRenderer(stream.Options{Clock: opts.Clock, Logger: opts.Logger})
	}

	c := &Controller{
		backend:        opts.Backend,
		view:           opts.View,
		registry:       opts.Registry,
		archive:        opts.Archive,
		clock:          opts.Clock,
		logger:         opts.Logger,
		onUnauthorized: opts.OnUnauthorized,
	}
	c.renderer.Store(opts.Renderer)
	return c
}

// Registry returns the session registry.
func (c *Controller) Registry() *session.Registry {
	return c.registry
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// SetRenderer swaps the renderer used by later turns. A turn in flight keeps
// the renderer it started with.
func (c *Controller) SetRenderer(r *stream.Renderer) {
	if r != nil {
		c.renderer.Store(r)
	}
}

// =============================================================================
// TURNS
// =============================================================================

// Submit runs one turn: it ensures a current session, shows the user
// message, streams the reply into a new assistant slot and then saves both
// messages. Returns ErrBusy without side effects while another turn runs.
//
// Save failures do not fail the turn; they are logged, shown via View.Warn
// and returned in TurnResult.Warnings.
func (c *Controller) Submit(ctx context.Context, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.Debug("submit ignored, turn in flight")
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	start := c.clock.Now()

	sess, ok := c.registry.Current()
	if !ok {
		created, err := c.registry.Create(ctx, TitleFromMessage(text))
		if err != nil {
			return nil, c.classify(err)
		}
		sess = created
	}

	c.view.AppendUser(text)
	target := c.view.BeginAssistant()

	open := func(ctx context.Context) (stream.Source, error) {
		s, err := c.backend.OpenStream(ctx, text, sess.ID)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	result := &TurnResult{SessionID: sess.ID}
	reply, err := c.renderer.Load().Start(ctx, open, target)
	result.Duration = c.clock.Since(start)
	if err != nil {
		if stream.IsKind(err, stream.KindUnauthorized) {
			return result, c.classify(err)
		}
		c.logger.Warn("turn failed",
			zap.String("session", sess.ID),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
		return result, err
	}
	result.Reply = reply

	c.persist(ctx, sess, text, reply, result)

	if c.archive != nil && len(result.Warnings) == 0 {
		turn := Turn{
			SessionID:    sess.ID,
			SessionTitle: sess.Title,
			User:         text,
			Assistant:    reply,
			StartedAt:    start,
			Duration:     result.Duration,
		}
		if err := c.archive.SaveTurn(ctx, turn); err != nil {
			c.logger.Warn("archive save failed", zap.String("session", sess.ID), zap.Error(err))
		}
	}

	c.logger.Info("turn complete",
		zap.String("session", sess.ID),
		zap.Int("reply_len", len(reply)),
		zap.Duration("duration", result.Duration),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

// persist saves the user message and then the reply. Each write is
// attempted once; failures become warnings.
func (c *Controller) persist(ctx context.Context, sess session.Session, user, reply string, result *TurnResult) {
	writes := []api.Message{
		{Content: user, Type: api.MessageUser},
		{Content: reply, Type: api.MessageAssistant},
	}
	for _, msg := range writes {
		if err := c.backend.PostMessage(ctx, sess.ID, msg); err != nil {
			if api.IsUnauthorized(err) {
				c.notifyUnauthorized(err)
			}
			w := &PersistenceWarning{SessionID: sess.ID, Role: msg.Type, Err: err}
			c.logger.Warn("persist message failed",
				zap.String("session", sess.ID),
				zap.String("role", string(msg.Type)),
				zap.Error(err))
			c.view.Warn(w.Error())
			result.Warnings = append(result.Warnings, w)
		}
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

// Bootstrap loads the session list and shows the current session's history.
// With no sessions on the server a fresh one is created.
func (c *Controller) Bootstrap(ctx context.Context) error {
	if err := c.registry.Refresh(ctx); err != nil {
		return c.classify(err)
	}
	sess, ok := c.registry.Current()
	if !ok {
		_, err := c.NewSession(ctx)
		return err
	}
	return c.loadHistory(ctx, sess.ID)
}

// NewSession creates an empty session, makes it current and clears the view.
func (c *Controller) NewSession(ctx context.Context) (session.Session, error) {
	s, err := c.registry.Create(ctx, DefaultTitle)
	if err != nil {
		return session.Session{}, c.classify(err)
	}
	c.view.ShowHistory(s.ID, nil)
	return s, nil
}

// SelectSession makes id current and shows its stored messages. Selecting
// the current or an unknown session does nothing. A turn in flight is not
// cancelled; it completes into its own assistant slot.
func (c *Controller) SelectSession(ctx context.Context, id string) (bool, error) {
	if !c.registry.Select(id) {
		return false, nil
	}
	return true, c.loadHistory(ctx, id)
}

// DeleteSession removes a session. When none remain a replacement is
// created; when the current session changed its history is shown.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	before := c.registry.CurrentID()
	if err := c.registry.Delete(ctx, id); err != nil {
		return c.classify(err)
	}
	if c.archive != nil {
		if err := c.archive.DeleteSession(ctx, id); err != nil {
			c.logger.Warn("archive delete failed", zap.String("session", id), zap.Error(err))
		}
	}
	if c.registry.Len() == 0 {
		_, err := c.NewSession(ctx)
		return err
	}
	if after := c.registry.CurrentID(); after != before {
		return c.loadHistory(ctx, after)
	}
	return nil
}

// History returns the stored messages of a session.
func (c *Controller) History(ctx context.Context, id string) ([]api.Message, error) {
	msgs, err := c.backend.FetchMessages(ctx, id)
	if err != nil {
		return nil, c.classify(err)
	}
	return msgs, nil
}

func (c *Controller) loadHistory(ctx context.Context, id string) error {
	msgs, err := c.History(ctx, id)
	if err != nil {
		return err
	}
	c.view.ShowHistory(id, msgs)
	return nil
}

// classify maps unauthorized failures to ErrUnauthorized and fires the hook.
func (c *Controller) classify(err error) error {
	if err == nil {
		return nil
	}
	if api.IsUnauthorized(err) || stream.IsKind(err, stream.KindUnauthorized) {
		c.notifyUnauthorized(err)
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return err
}

func (c *Controller) notifyUnauthorized(err error) {
	c.logger.Warn("backend rejected session", zap.Error(err))
	if c.onUnauthorized != nil {
		c.onUnauthorized(err)
	}
}

// IsUnauthorized reports whether err came from a rejected session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
