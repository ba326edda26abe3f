// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the CLI, the config loader
// and the transcript store.
//
// # Key Functions
//
// File Operations:
//   - WriteFileAtomic: crash-safe file writing with fsync and rename
//
// Display Width:
//   - TruncateWidth: cut a string to a terminal column budget
//   - TailWidth: keep the last columns of a string
//   - OneLine: collapse whitespace for single-line previews
//
// # Usage
//
//	preview := util.TruncateWidth(util.OneLine(answer), 60)
//	err := util.WriteFileAtomic(path, data, 0600, 0700)
package util
