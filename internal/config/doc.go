// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and manages rigchat configuration.
//
// TOML and JSON files are supported, with defaults, environment variable
// overrides and validation.
//
// # Key Types
//
//   - Config: the whole configuration
//   - ServerConfig: backend address, cookie, timeouts
//   - StreamConfig: classifier cues and the staleness timeout
//   - Watcher: hot reload of the config file
//
// # Configuration Precedence
//
// Highest first:
//   - Environment variables (RIGCHAT_*, NO_COLOR), including .env files
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
//
// RIGCHAT_HOME replaces ~/.rigchat.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := api.New(api.Options{BaseURL: cfg.Server.BaseURL})
package config
