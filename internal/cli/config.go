// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/config"
)

// configPathInfo is the --json payload of "config path".
type configPathInfo struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long: `View and modify the rigchat configuration file.

Keys use dotted names matching the file, e.g. server.base_url,
stream.stale_after or ui.color. Environment variables (RIGCHAT_*) and
global flags override the file at run time but are never written back.`,
		Example: `  rigchat config                          # Show the effective config
  rigchat config path
  rigchat config init
  rigchat config get server.base_url
  rigchat config set server.base_url http://localhost:5000
  rigchat config set archive.enabled true`,
		Args: cobra.NoArgs,
	}
	show := newConfigShowCmd(app)
	cmd.RunE = show.RunE
	cmd.AddCommand(
		show,
		newConfigPathCmd(app),
		newConfigInitCmd(app),
		newConfigGetCmd(app),
		newConfigSetCmd(app),
	)
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (cookie redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(app.Out, app.cfg.String())
			return nil
		},
	}
}

func newConfigPathCmd(app *App) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:         "path",
		Short:       "Print the config file location",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return OutputJSON(app.Out, jsonOut, "config path", func() (any, error) {
				path, err := app.configFile()
				if err != nil {
					return nil, err
				}
				_, statErr := os.Stat(path)
				info := configPathInfo{Path: path, Exists: statErr == nil}
				if !jsonOut {
					fmt.Fprintln(app.Out, info.Path)
				}
				return info, nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	return cmd
}

func newConfigInitCmd(app *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the default settings",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configFile()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return &CommandError{
					Command: "config",
					Action:  "init",
					Reason:  path + " already exists (use --force to overwrite)",
				}
			}
			if err := saveConfigFile(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigGetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one effective setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := app.cfg.Get(args[0])
			if err != nil {
				return &UsageError{Message: err.Error()}
			}
			if strings.EqualFold(args[0], "server.cookie") && v != "" {
				v = "[REDACTED]"
			}
			fmt.Fprintln(app.Out, formatValue(v))
			return nil
		},
	}
}

func newConfigSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "set <key> <value>",
		Short:       "Change one setting in the config file",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configFile()
			if err != nil {
				return err
			}
			cfg, err := readConfigFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return &UsageError{Message: err.Error()}
			}
			check := cfg.Clone()
			check.SetDefaults()
			if err := check.Validate(); err != nil {
				return &CommandError{Command: "config", Action: "set", Reason: "rejected", Err: err}
			}
			if err := saveConfigFile(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Set %s in %s\n", args[0], path)
			return nil
		},
	}
}

// configFile is the file config commands read and write.
func (a *App) configFile() (string, error) {
	if a.flags.configPath != "" {
		return a.flags.configPath, nil
	}
	return config.ActivePath()
}

// readConfigFile decodes path over the defaults without environment
// overrides, so a save never persists them.
func readConfigFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	var err error
	if strings.HasSuffix(path, ".json") {
		err = config.LoadJSON(cfg, path)
	} else {
		err = config.LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, &CommandError{Command: "config", Action: "read", Reason: path, Err: err}
	}
	return cfg, nil
}

func saveConfigFile(cfg *config.Config, path string) error {
	var err error
	if strings.HasSuffix(path, ".json") {
		err = config.SaveJSON(cfg, path)
	} else {
		err = config.SaveTOML(cfg, path)
	}
	if err != nil {
		return &CommandError{Command: "config", Action: "save", Reason: path, Err: err}
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case []string:
		return strings.Join(x, ", ")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
