// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigchat command tree.
//
// # Commands
//
//   - chat: interactive session with slash commands (/new, /switch, /pick)
//   - ask: one message, one streamed reply; --json for scripts
//   - sessions: list, create and delete sessions
//   - history: show, render or export a transcript
//   - search: search the local archive
//   - devserver: run the in-memory backend
//   - config: show, init, get and set configuration
//
// Every command loads the config (file, .env, RIGCHAT_* variables, then
// global flags) before it runs. Errors map to exit codes through ExitCode.
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Execute())
//	}
package cli
