// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// usage_cmd.go - Local usage ledger command.
//
// Command: usage [subcommand]
// Short:   Show request, token and error totals
//
// Subcommands:
//   summary (default)       Totals, per-model tokens and a daily breakdown
//   sessions                One line per saved session
//
// Flags:
//   -d, --days N            Look back N days (default 7)

package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/telemetry"
)

// defaultUsageDays is the look-back window when --days is not given.
const defaultUsageDays = 7

// HandleUsage handles the "usage" command.
func HandleUsage(cfg *config.Config, args Args) error {
	dir, err := cfg.UsageDir()
	if err != nil {
		return err
	}
	// Reading works even with recording disabled
	tracker, err := telemetry.NewUsageTracker(dir, "usage")
	if err != nil {
		return err
	}
	return runUsage(tracker, NewArgParser(args.Raw), args.JSON, os.Stdout)
}

func runUsage(tracker *telemetry.UsageTracker, p *ArgParser, jsonMode bool, out io.Writer) error {
	days, ok, err := p.FlagInt("days", "d")
	if err != nil {
		return err
	}
	if !ok {
		days = defaultUsageDays
	}
	if days <= 0 {
		return &ValidationError{Field: "--days", Value: fmt.Sprint(days), Reason: "must be positive", Example: "rigrun-stream usage --days 30"}
	}

	switch sub := strings.ToLower(p.Subcommand()); sub {
	case "", "summary":
		return usageSummary(tracker, days, jsonMode, out)
	case "sessions", "ls":
		return usageSessions(tracker, days, jsonMode, out)
	default:
		return &ValidationError{
			Field:   "usage subcommand",
			Value:   sub,
			Reason:  "unknown subcommand",
			Example: "rigrun-stream usage [summary|sessions] [--days N]",
		}
	}
}

func usageSummary(tracker *telemetry.UsageTracker, days int, jsonMode bool, out io.Writer) error {
	trends := tracker.Trends(days)
	if jsonMode {
		return NewJSONResponse("usage", trends).Write(out)
	}

	title := fmt.Sprintf("Usage, last %d days", days)
	fmt.Fprintln(out, TitleStyle.Render(title))
	fmt.Fprintln(out, RenderSeparator(len(title)))
	if trends.Sessions == 0 {
		fmt.Fprintln(out, DimStyle.Render("No requests recorded."))
		return nil
	}

	fmt.Fprintf(out, "%s%d\n", RenderLabel("Sessions:", 12), trends.Sessions)
	fmt.Fprintf(out, "%s%d\n", RenderLabel("Requests:", 12), trends.Requests)
	fmt.Fprintf(out, "%s%d\n", RenderLabel("Tokens:", 12), trends.Tokens)
	fmt.Fprintf(out, "%s%d\n", RenderLabel("Errors:", 12), trends.Errors)
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Streaming:", 12),
		formatDurationShort(time.Duration(trends.DurationMs)*time.Millisecond))

	if len(trends.ByModel) > 0 {
		fmt.Fprintf(out, "\n%s\n", LabelStyle.Render("By model"))
		models := make([]string, 0, len(trends.ByModel))
		for m := range trends.ByModel {
			models = append(models, m)
		}
		// Most tokens first
		sort.Slice(models, func(i, j int) bool {
			if trends.ByModel[models[i]] != trends.ByModel[models[j]] {
				return trends.ByModel[models[i]] > trends.ByModel[models[j]]
			}
			return models[i] < models[j]
		})
		for _, m := range models {
			fmt.Fprintf(out, "  %-24s %d tokens\n", m, trends.ByModel[m])
		}
	}

	fmt.Fprintf(out, "\n%s\n", LabelStyle.Render("By day"))
	for _, d := range trends.Daily {
		line := fmt.Sprintf("  %s  %4d requests  %7d tokens", d.Date.Format("2006-01-02"), d.Requests, d.Tokens)
		if d.Errors > 0 {
			line += WarningStyle.Render(fmt.Sprintf("  %d errors", d.Errors))
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func usageSessions(tracker *telemetry.UsageTracker, days int, jsonMode bool, out io.Writer) error {
	to := time.Now()
	sessions := tracker.History(to.AddDate(0, 0, -days), to)
	if jsonMode {
		return NewJSONResponse("usage sessions", sessions).Write(out)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No sessions recorded."))
		return nil
	}

	// Newest first
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		fmt.Fprintf(out, "%s  %-5s %3d req  %6d tok", s.StartTime.Format("2006-01-02 15:04"), s.Command, s.Requests, s.Tokens)
		if s.Errors > 0 {
			fmt.Fprint(out, WarningStyle.Render(fmt.Sprintf("  %d err", s.Errors)))
		}
		if len(s.TopRequests) > 0 {
			fmt.Fprint(out, DimStyle.Render("  "+s.TopRequests[0].Prompt))
		}
		fmt.Fprintln(out)
	}
	return nil
}
