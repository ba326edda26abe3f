// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for rigrun-stream.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Parsed global flags plus the command's raw arguments
//   - ArgParser: Flag and positional parsing shared by every command
//   - ChatSession: Conversation state for the interactive REPL
//   - JSONResponse: Envelope for --json output
//
// # Usage
//
//	func main() {
//	    os.Exit(cli.Run(os.Args[1:]))
//	}
//
// # Commands Overview
//
//   - ask: Single question, answer streamed to stdout
//   - chat: Interactive REPL with input history and slash commands
//   - history: List, show, search, export and delete saved transcripts
//   - config: Show, locate, initialize and edit the config file
//   - version, help
//
// All commands support --json for scripting.
package cli
