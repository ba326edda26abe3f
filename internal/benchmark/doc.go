// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package benchmark measures streaming latency and throughput per model.
//
// Each test sends one prompt through a streaming session and records the
// time to first token, tokens per second and a rough quality score.
//
// # Usage
//
//	fn := benchmark.SessionStreamer(key, endpoint, 60*time.Second, logger)
//	runner := benchmark.NewRunner(fn, chat.DefaultConfiguration(), nil)
//	result := runner.Run(ctx, "gpt-4o-mini")
//	fmt.Println(result.Summary())
//
// Compare models:
//
//	cmp, err := runner.RunComparison(ctx, []string{"gpt-4o", "gpt-4o-mini"})
//	fmt.Print(cmp.ComparisonSummary())
package benchmark
