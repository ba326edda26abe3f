// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry keeps a local ledger of streamed requests.
//
// Each CLI invocation (one ask, or one interactive chat) is a session. The
// tracker counts requests, fragments, errors and time per model, and keeps
// the ten largest answers of the session for review.
//
// # Key Types
//
//   - UsageTracker: Records requests into the current session
//   - SessionUsage: One persisted session
//   - UsageTrends: Totals and a per-day breakdown over N days
//   - UsageStorage: One JSON file per session
//
// # Usage
//
//	tracker, err := telemetry.NewUsageTracker(dir, "ask")
//	tracker.Record(telemetry.RequestUsage{
//	    Model:    "gpt-4o-mini",
//	    Prompt:   question,
//	    Tokens:   stats.TokenCount,
//	    Duration: stats.TotalTime,
//	})
//	err = tracker.Save()
//
//	trends := tracker.Trends(7)
//	fmt.Printf("Weekly tokens: %d\n", trends.Tokens)
//
// # Privacy
//
// The ledger is local-only and never transmitted. Only a short one-line
// preview of each prompt is kept.
package telemetry
