// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides transcript persistence for the rigrun-stream CLI.
//
// Each transcript is one JSON file named by its UUID. Files are written
// atomically, and the store prunes the oldest transcripts past its limit.
//
// # Key Types
//
//   - TranscriptStore: saves, lists, loads and deletes transcripts
//   - Transcript: a conversation with per-answer stream statistics
//   - TranscriptMeta: lightweight metadata for listing
//
// # Usage
//
//	store, err := storage.NewTranscriptStore(dir, 500)
//	id, err := store.Save(transcript)
//
//	metas, err := store.List()
//	t, err := store.Load(metas[0].ID[:8]) // unique prefixes resolve
//
// # Storage Location
//
// Transcripts are stored in ~/.rigrun-stream/history/ unless [history].dir
// is set.
package storage
