// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/ui"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader reads one line of user input per call. io.EOF ends the chat.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads the saved input history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadLine reads a line with history navigation. Ctrl+C at the prompt ends
// the chat like Ctrl+D.
func (c *ChatCLI) ReadLine(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() error {
	c.SaveHistory()
	return c.line.Close()
}

// scanReader reads lines from a non-interactive input such as a pipe.
type scanReader struct {
	sc *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	return &scanReader{sc: bufio.NewScanner(r)}
}

func (s *scanReader) ReadLine(string) (string, error) {
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *scanReader) Close() error { return nil }

// =============================================================================
// CHAT COMMAND
// =============================================================================

func newChatCmd(app *App) *cobra.Command {
	var sessionArg string
	var fresh bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat with the backend.

Replies stream in as they arrive. Ctrl+C cancels a streaming reply; at the
prompt it exits, as do Ctrl+D and /quit.

Interactive commands:
  /new              Start a new session
  /sessions         List sessions
  /switch <n|id>    Switch session
  /pick             Choose a session interactively
  /delete <n|id>    Delete a session
  /history          Show the current session's messages
  /help             Show commands
  /quit             Exit`,
		Example: `  rigchat chat
  rigchat chat --new
  rigchat chat --session 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			interactive := ui.IsTerminal(app.In) && ui.IsTerminal(app.Out)
			var in lineReader
			if interactive {
				in = NewChatCLI()
			} else {
				in = newScanReader(app.In)
			}
			defer in.Close()
			return app.runChat(cmd.Context(), in, interactive, sessionArg, fresh)
		},
	}
	cmd.Flags().StringVarP(&sessionArg, "session", "s", "", "Open this session (number or id)")
	cmd.Flags().BoolVar(&fresh, "new", false, "Start in a new session")
	return cmd
}

// chatSession is the state of one REPL run.
type chatSession struct {
	app         *App
	term        *ui.Terminal
	ctrl        *chat.Controller
	interactive bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (a *App) runChat(ctx context.Context, in lineReader, interactive bool, sessionArg string, fresh bool) error {
	term := a.terminal(!interactive)
	ctrl, err := a.controller(term, term.Warn)
	if err != nil {
		return err
	}
	cs := &chatSession{app: a, term: term, ctrl: ctrl, interactive: interactive}

	if err := ctrl.Bootstrap(ctx); err != nil {
		return err
	}
	switch {
	case fresh:
		if _, err := ctrl.NewSession(ctx); err != nil {
			return err
		}
	case sessionArg != "":
		if err := cs.switchTo(ctx, sessionArg); err != nil {
			return err
		}
	}
	term.Welcome()

	if w := cs.watchConfig(); w != nil {
		defer w.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		for range sigCh {
			if cs.cancelTurn() {
				term.Warn("[Cancelled]")
			}
		}
	}()

	for {
		input, err := in.ReadLine("you> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}
		if strings.HasPrefix(input, "/") {
			keepGoing, err := cs.handleSlashCommand(ctx, input)
			if err != nil {
				if chat.IsUnauthorized(err) {
					return err
				}
				term.Error(err.Error())
			}
			if !keepGoing {
				return nil
			}
			continue
		}
		if err := cs.submit(ctx, input); err != nil {
			return err
		}
	}
}

// submit runs one turn. Only a rejected session ends the chat.
func (cs *chatSession) submit(ctx context.Context, input string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	cs.setCancel(cancel)
	_, err := cs.ctrl.Submit(turnCtx, input)
	cs.setCancel(nil)
	cancel()
	cs.term.Settle()

	switch {
	case err == nil:
		return nil
	case chat.IsUnauthorized(err):
		return err
	case stream.IsKind(err, stream.KindTransport):
		// Already shown in the reply slot.
		return nil
	case stream.IsKind(err, stream.KindCanceled):
		return nil
	default:
		cs.term.Error(err.Error())
		return nil
	}
}

func (cs *chatSession) setCancel(cancel context.CancelFunc) {
	cs.mu.Lock()
	cs.cancel = cancel
	cs.mu.Unlock()
}

// cancelTurn cancels the streaming turn, reporting whether one was running.
func (cs *chatSession) cancelTurn() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.cancel == nil {
		return false
	}
	cs.cancel()
	cs.cancel = nil
	return true
}

// watchConfig hot-reloads the stream settings for later turns.
func (cs *chatSession) watchConfig() *config.Watcher {
	path := cs.app.flags.configPath
	if path == "" {
		p, err := config.ActivePath()
		if err != nil {
			return nil
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	logger := cs.app.logger
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		cs.ctrl.SetRenderer(newRenderer(cfg, logger))
		logger.Info("stream settings reloaded", zap.String("path", path))
	}, config.WatchOptions{Logger: logger})
	if err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
		return nil
	}
	return w
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

type slashCommand struct {
	name    string
	aliases []string
	usage   string
	desc    string
	run     func(cs *chatSession, ctx context.Context, args []string) (bool, error)
}

var slashCommands []slashCommand

func init() {
	slashCommands = []slashCommand{
		{name: "/new", aliases: []string{"/n"}, desc: "Start a new session", run: (*chatSession).cmdNew},
		{name: "/sessions", aliases: []string{"/ls"}, desc: "List sessions", run: (*chatSession).cmdSessions},
		{name: "/switch", aliases: []string{"/s"}, usage: "<n|id>", desc: "Switch session", run: (*chatSession).cmdSwitch},
		{name: "/pick", desc: "Choose a session interactively", run: (*chatSession).cmdPick},
		{name: "/delete", aliases: []string{"/rm"}, usage: "<n|id>", desc: "Delete a session", run: (*chatSession).cmdDelete},
		{name: "/history", desc: "Show the current session's messages", run: (*chatSession).cmdHistory},
		{name: "/help", aliases: []string{"/h", "/?"}, desc: "Show commands", run: (*chatSession).cmdHelp},
		{name: "/quit", aliases: []string{"/q", "/exit"}, desc: "Exit", run: (*chatSession).cmdQuit},
	}
}

func lookupSlash(name string) (slashCommand, bool) {
	name = strings.ToLower(name)
	for _, c := range slashCommands {
		if c.name == name {
			return c, true
		}
		for _, a := range c.aliases {
			if a == name {
				return c, true
			}
		}
	}
	return slashCommand{}, false
}

// handleSlashCommand runs one slash command. It returns false when the chat
// should end.
func (cs *chatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	c, ok := lookupSlash(fields[0])
	if !ok {
		return true, usageErrorf("unknown command %s (try /help)", fields[0])
	}
	return c.run(cs, ctx, fields[1:])
}

func (cs *chatSession) cmdNew(ctx context.Context, _ []string) (bool, error) {
	if _, err := cs.ctrl.NewSession(ctx); err != nil {
		return true, err
	}
	cs.term.Success("Started a new session.")
	return true, nil
}

func (cs *chatSession) cmdSessions(ctx context.Context, _ []string) (bool, error) {
	reg := cs.ctrl.Registry()
	if err := reg.Refresh(ctx); err != nil {
		return true, err
	}
	cs.term.PrintSessions(reg.List(), reg.CurrentID())
	return true, nil
}

func (cs *chatSession) cmdSwitch(ctx context.Context, args []string) (bool, error) {
	if len(args) != 1 {
		return true, usageErrorf("usage: /switch <n|id>")
	}
	return true, cs.switchTo(ctx, args[0])
}

func (cs *chatSession) switchTo(ctx context.Context, arg string) error {
	id, err := resolveSession(cs.ctrl.Registry().List(), arg)
	if err != nil {
		return err
	}
	changed, err := cs.ctrl.SelectSession(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		cs.term.Info("Already in that session.")
	}
	return nil
}

func (cs *chatSession) cmdPick(ctx context.Context, _ []string) (bool, error) {
	if !cs.interactive {
		return true, usageErrorf("/pick needs a terminal; use /switch <n|id>")
	}
	reg := cs.ctrl.Registry()
	id, err := ui.PickSession(ctx, cs.term.Theme(), reg.List(), reg.CurrentID(), cs.app.In, cs.app.Out)
	if errors.Is(err, ui.ErrPickCanceled) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	_, err = cs.ctrl.SelectSession(ctx, id)
	return true, err
}

func (cs *chatSession) cmdDelete(ctx context.Context, args []string) (bool, error) {
	if len(args) != 1 {
		return true, usageErrorf("usage: /delete <n|id>")
	}
	id, err := resolveSession(cs.ctrl.Registry().List(), args[0])
	if err != nil {
		return true, err
	}
	if err := cs.ctrl.DeleteSession(ctx, id); err != nil {
		return true, err
	}
	cs.term.Success("Deleted session " + id + ".")
	return true, nil
}

func (cs *chatSession) cmdHistory(ctx context.Context, _ []string) (bool, error) {
	id := cs.ctrl.Registry().CurrentID()
	if id == "" {
		return true, usageErrorf("no current session")
	}
	msgs, err := cs.ctrl.History(ctx, id)
	if err != nil {
		return true, err
	}
	cs.term.ShowHistory(id, msgs)
	return true, nil
}

func (cs *chatSession) cmdHelp(context.Context, []string) (bool, error) {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, c := range slashCommands {
		name := c.name
		if c.usage != "" {
			name += " " + c.usage
		}
		fmt.Fprintf(&sb, "  %-18s %s\n", name, c.desc)
	}
	sb.WriteString("Ctrl+C cancels a streaming reply.")
	cs.term.Println(sb.String())
	return true, nil
}

func (cs *chatSession) cmdQuit(context.Context, []string) (bool, error) {
	return false, nil
}

// resolveSession accepts a 1-based list position or a session id.
func resolveSession(list []session.Session, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	for _, s := range list {
		if s.ID == arg {
			return s.ID, nil
		}
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(list) {
			return "", fmt.Errorf("%w: no session #%d (have %d)", session.ErrNotFound, n, len(list))
		}
		return list[n-1].ID, nil
	}
	return "", fmt.Errorf("%w: %q", session.ErrNotFound, arg)
}
