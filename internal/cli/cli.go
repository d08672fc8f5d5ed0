// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// skipConfig marks commands that run without loading the config.
const skipConfig = "skip-config"

// =============================================================================
// APP
// =============================================================================

// App holds what the commands share: streams, the loaded config and the
// logger. Its zero value plus NewApp's defaults is ready to use.
type App struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	flags struct {
		configPath string
		baseURL    string
		cookie     string
		logLevel   string
		color      string
	}

	cfg     *config.Config
	logger  *zap.Logger
	closers []func() error
}

// NewApp creates an App on the process's standard streams.
func NewApp() *App {
	return &App{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr}
}

// Config returns the loaded config. Only valid inside a command.
func (a *App) Config() *config.Config {
	return a.cfg
}

// setup loads the config, applies global flags and builds the logger.
func (a *App) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if a.flags.configPath != "" {
		config.LoadDotEnv()
		cfg, err = config.LoadFromPath(a.flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if cfg == nil {
		return &CommandError{Command: "config", Action: "load", Reason: "invalid configuration", Err: err}
	}
	if err != nil {
		fmt.Fprintf(a.ErrOut, "Warning: %v (using defaults)\n", err)
	}

	if a.flags.baseURL != "" {
		cfg.Server.BaseURL = a.flags.baseURL
	}
	if a.flags.cookie != "" {
		cfg.Server.Cookie = a.flags.cookie
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if a.flags.color != "" {
		cfg.UI.Color = a.flags.color
	}
	if err := cfg.Validate(); err != nil {
		return &CommandError{Command: "config", Action: "load", Reason: "invalid flags", Err: err}
	}

	logger, closeLog, err := logging.New(cfg.Log, a.ErrOut)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.closers = append(a.closers, closeLog)
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

func (a *App) client() (*api.Client, error) {
	s := a.cfg.Server
	return api.New(api.Options{
		BaseURL:        s.BaseURL,
		Cookie:         s.Cookie,
		Timeout:        s.Timeout.Duration,
		MaxRetries:     s.MaxRetries,
		RequestsPerSec: s.RequestsPerSec,
		UserAgent:      "rigchat/" + Version,
		Logger:         a.logger,
	})
}

// archive opens the local archive, or returns nil when it is disabled.
func (a *App) archive() (*storage.Archive, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}
	arc, err := storage.Open(a.cfg.Archive.Path, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, arc.Close)
	return arc, nil
}

func newRenderer(cfg *config.Config, logger *zap.Logger) *stream.Renderer {
	return stream.NewRenderer(stream.Options{
		Markers:    cfg.Markers(),
		StaleAfter: cfg.Stream.StaleAfter.Duration,
		Logger:     logger,
	})
}

func (a *App) terminal(echo bool) *ui.Terminal {
	return a.terminalTo(a.Out, echo)
}

func (a *App) terminalTo(w io.Writer, echo bool) *ui.Terminal {
	return ui.NewTerminal(ui.Options{
		Out:      w,
		Color:    a.cfg.UI.Color,
		Spinner:  a.cfg.UI.Spinner,
		MaxFPS:   a.cfg.UI.MaxFPS,
		EchoUser: echo,
	})
}

// controller wires a chat controller to view. A rejected session prints
// the login hint once.
func (a *App) controller(view chat.View, warn func(string)) (*chat.Controller, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	arc, err := a.archive()
	if err != nil {
		return nil, err
	}
	opts := chat.Options{
		Backend:  client,
		View:     view,
		Renderer: newRenderer(a.cfg, a.logger),
		Logger:   a.logger,
		OnUnauthorized: func(error) {
			warn(loginHint)
		},
	}
	if arc != nil {
		opts.Archive = arc
	}
	return chat.New(opts), nil
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCmd builds the command tree around app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "rigchat",
		Short: "Terminal client for a streaming chat backend",
		Long: `rigchat talks to a session-based chat backend and renders streamed
replies in the terminal as they arrive.

Quick Start:
  rigchat devserver &                 # Local scripted backend
  rigchat chat                        # Interactive chat
  rigchat ask "search golang"         # One question, one reply
  rigchat sessions                    # List sessions
  rigchat history 1 --format md       # Export a transcript`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return app.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Message: err.Error()}
	})
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.SetIn(app.In)
	root.SetOut(app.Out)
	root.SetErr(app.ErrOut)

	pf := root.PersistentFlags()
	pf.StringVar(&app.flags.configPath, "config", "", "Config file (default ~/.rigchat/config.toml)")
	pf.StringVar(&app.flags.baseURL, "base-url", "", "Backend origin, e.g. http://localhost:5000")
	pf.StringVar(&app.flags.cookie, "cookie", "", "Cookie header sent with every request")
	pf.StringVar(&app.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error, off")
	pf.StringVar(&app.flags.color, "color", "", "Color output: auto, always, never")

	root.AddCommand(
		newChatCmd(app),
		newAskCmd(app),
		newSessionsCmd(app),
		newHistoryCmd(app),
		newSearchCmd(app),
		newDevserverCmd(app),
		newConfigCmd(app),
		newVersionCmd(app),
	)
	return root
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(app.Out, "rigchat %s\n", Version)
			fmt.Fprintf(app.Out, "  commit: %s\n", GitCommit)
			fmt.Fprintf(app.Out, "  built:  %s\n", BuildDate)
		},
	}
}

// Execute runs the CLI on the process's arguments and returns the exit code.
func Execute() int {
	return run(NewApp(), os.Args[1:])
}

func run(app *App, args []string) int {
	defer app.close()

	root := NewRootCmd(app)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(app.ErrOut, "Error: %v\n", err)
	return ExitCode(err)
}
