// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// bench_cmd.go - Streaming benchmark command.
//
// Command: bench [MODEL...]
// Short:   Measure time to first token and tokens/sec per model
//
// Examples:
//   rigrun-stream bench                      Benchmark the configured model
//   rigrun-stream bench gpt-4o gpt-4o-mini   Compare two models
//   rigrun-stream bench --quick --json
//
// Flags:
//   --quick        One test per category
//   --no-save      Do not store the results under ~/.rigrun-stream/benchmarks

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/rigrun-stream/internal/benchmark"
	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/stream"
	"github.com/jeranaias/rigrun-stream/internal/telemetry"
)

// HandleBench handles the "bench" command.
func HandleBench(cfg *config.Config, args Args) error {
	p := NewArgParser(args.Raw, "quick", "no-save")

	var store *benchmark.Storage
	if !p.BoolFlag("no-save") {
		dir, err := config.BenchmarkDir()
		if err != nil {
			return err
		}
		if store, err = benchmark.NewStorage(dir); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(args.Verbose)
	return runBench(ctx, cfg, p, args.Model, store, args.JSON, os.Stdout, logger)
}

func runBench(ctx context.Context, cfg *config.Config, p *ArgParser, modelFlag string,
	store *benchmark.Storage, jsonMode bool, out io.Writer, logger *log.Logger) error {

	if cfg.API.Key == "" {
		return stream.ErrNotConfigured
	}

	models := p.PositionalFrom(0)
	if len(models) == 0 {
		models = []string{firstNonEmpty(modelFlag, cfg.Chat.Model)}
	}

	var tests []benchmark.Test
	if p.BoolFlag("quick") {
		tests = benchmark.GetQuickTestSuite()
	}

	fn := benchmark.SessionStreamer(cfg.API.Key, cfg.API.Endpoint, cfg.RequestTimeout(), logger)
	tracker := openUsageTracker(cfg, "bench", logger)
	runner := benchmark.NewRunner(meteredStream(fn, tracker, logger), cfg.Chat.Configuration(), tests)

	if !jsonMode {
		fmt.Fprintf(out, "%s %d model(s)\n", TitleStyle.Render("Benchmarking"), len(models))
	}

	if len(models) == 1 {
		result := runner.Run(ctx, models[0])
		saveBenchmark(store, logger, func(s *benchmark.Storage) (string, error) { return s.Save(result) })
		if jsonMode {
			return NewJSONResponse("bench", result).Write(out)
		}
		printBenchResult(out, result)
		return nil
	}

	cmp, err := runner.RunComparison(ctx, models)
	saveBenchmark(store, logger, func(s *benchmark.Storage) (string, error) { return s.SaveComparison(cmp) })
	if jsonMode {
		if werr := NewJSONResponse("bench", cmp).WithError(err).Write(out); werr != nil {
			return werr
		}
		if err != nil {
			return &reportedError{err}
		}
		return nil
	}
	for _, model := range cmp.Models {
		printBenchResult(out, cmp.Results[model])
	}
	fmt.Fprintf(out, "\n%s\n%s", TitleStyle.Render("Comparison"), cmp.ComparisonSummary())
	return err
}

// meteredStream records each benchmark request in the usage ledger.
func meteredStream(fn benchmark.StreamFunc, tracker *telemetry.UsageTracker, logger *log.Logger) benchmark.StreamFunc {
	if tracker == nil {
		return fn
	}
	return func(ctx context.Context, cfg chat.Configuration, messages []chat.Message) (string, stream.Stats, error) {
		text, stats, err := fn(ctx, cfg, messages)
		prompt := ""
		if n := len(messages); n > 0 {
			prompt = messages[n-1].Content
		}
		recordUsage(tracker, cfg.Model(), prompt, &exchange{Text: text, Stats: stats, Err: err}, nil, logger)
		return text, stats, err
	}
}

func saveBenchmark(store *benchmark.Storage, logger *log.Logger, save func(*benchmark.Storage) (string, error)) {
	if store == nil {
		return
	}
	if name, err := save(store); err != nil {
		logger.Printf("failed to save benchmark: %v", err)
	} else {
		logger.Printf("benchmark saved as %s", name)
	}
}

func printBenchResult(out io.Writer, r *benchmark.Result) {
	fmt.Fprintf(out, "\n%s\n", CommandStyle.Render(r.ModelName))
	for _, tr := range r.Tests {
		if tr.Status != benchmark.TestStatusPassed {
			fmt.Fprintf(out, "  %-16s %s\n", tr.Name, ErrorStyle.Render("FAILED "+tr.Error))
			continue
		}
		fmt.Fprintf(out, "  %-16s TTFT %-8s %-10s %4d tokens  quality %s\n",
			tr.Name,
			benchmark.FormatTTFT(tr.TTFT),
			benchmark.FormatTokensPerSec(tr.TokensPerSec),
			tr.TokenCount,
			benchmark.FormatQualityScore(tr.QualityScore))
	}
	fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("  %d passed, %d failed | avg TTFT %s | avg %s",
		r.PassedTests, r.FailedTests, benchmark.FormatTTFT(r.AvgTTFT), benchmark.FormatTokensPerSec(r.AvgTokensPerSec))))
}
