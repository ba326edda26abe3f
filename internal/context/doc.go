// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package context expands @ mentions in user input into a context block
// sent ahead of the question.
//
// # Mention Types
//
//   - @file:path - Include file contents (quote paths with spaces)
//   - @git or @git:range - Include recent commits, status and diff summary
//   - @error - Include the last stream error of the session
//
// # Usage
//
//	expander := context.NewExpander(nil)
//	result := expander.Expand(ctx, input)
//	if result.HasErrors() {
//		log.Print(result.ErrorSummary())
//	}
//	send(result.ExpandedMessage)
package context
