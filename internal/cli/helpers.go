// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared helpers used by the ask and chat commands.

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/config"
	ctxmention "github.com/jeranaias/rigrun-stream/internal/context"
	"github.com/jeranaias/rigrun-stream/internal/storage"
	"github.com/jeranaias/rigrun-stream/internal/stream"
	"github.com/jeranaias/rigrun-stream/internal/telemetry"
)

// formatDurationShort formats a short duration string.
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

// newLogger returns the session logger. Request and stream logs are only
// shown with --verbose.
func newLogger(verbose bool) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "[rigrun-stream] ", log.LstdFlags|log.Lmicroseconds)
}

// =============================================================================
// EXCHANGE
// =============================================================================

// exchange is the outcome of one streamed request.
type exchange struct {
	Chunks []chat.CompletionChunk
	Text   string
	Stats  stream.Stats
	// Err is the transport error that ended the stream early, if any.
	// Chunks and Text hold whatever arrived before it.
	Err error
}

// runExchange streams one request. The returned error is only set when the
// request could not be dispatched; mid-stream failures land in exchange.Err.
func runExchange(ctx context.Context, cfg *config.Config, chatCfg chat.Configuration,
	messages []chat.Message, observer stream.TokenObserver, logger *log.Logger) (*exchange, error) {

	session := stream.NewSession(cfg.API.Key, cfg.RequestTimeout(),
		stream.WithEndpoint(cfg.API.Endpoint),
		stream.WithTokenObserver(observer),
		stream.WithLogger(logger),
	)

	chunks, err := session.Connect(ctx, chat.NewRequest(chatCfg, messages))
	if err != nil {
		return nil, err
	}
	return &exchange{
		Chunks: chunks,
		Text:   chat.Text(chunks),
		Stats:  session.Stats(),
		Err:    session.Err(),
	}, nil
}

// assistantEntry builds the transcript entry for an answer.
func (x *exchange) assistantEntry(model string) storage.Entry {
	entry := storage.NewEntry(chat.RoleAssistant, x.Text)
	entry.Model = model
	if x.Stats.Model != "" {
		entry.Model = x.Stats.Model
	}
	entry.TokenCount = x.Stats.TokenCount
	entry.DurationMs = x.Stats.TotalTime.Milliseconds()
	entry.TokensPerSec = x.Stats.TokensPerSecond()
	entry.TTFTMs = x.Stats.FirstTokenTime.Milliseconds()
	entry.FinishReason = x.Stats.FinishReason
	if x.Err != nil {
		entry.Error = x.Err.Error()
	}
	return entry
}

// printStats writes the one-line stats summary.
func printStats(w io.Writer, stats stream.Stats) {
	line := stats.Format()
	if stats.Model != "" {
		line = stats.Model + " | " + line
	}
	if stats.SkippedRecords > 0 {
		line += fmt.Sprintf(" | %d skipped", stats.SkippedRecords)
	}
	fmt.Fprintf(w, "%s %s\n", DimStyle.Render("[Stats]"), DimStyle.Render(line))
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

// openTranscriptStore opens the store configured in [history].
func openTranscriptStore(cfg *config.Config) (*storage.TranscriptStore, error) {
	dir, err := cfg.HistoryDir()
	if err != nil {
		return nil, err
	}
	return storage.NewTranscriptStore(dir, cfg.History.MaxTranscripts)
}

// saveTranscript persists t when history is enabled. Failures are logged
// and never fail the command.
func saveTranscript(cfg *config.Config, t *storage.Transcript, logger *log.Logger) string {
	if !cfg.History.Enabled || t == nil || len(t.Entries) == 0 {
		return ""
	}
	store, err := openTranscriptStore(cfg)
	if err != nil {
		logger.Printf("transcript store unavailable: %v", err)
		return ""
	}
	id, err := store.Save(t)
	if err != nil {
		logger.Printf("failed to save transcript: %v", err)
		return ""
	}
	return id
}

// =============================================================================
// USAGE LEDGER
// =============================================================================

// openUsageTracker starts a ledger session for command. Returns nil when the
// ledger is disabled or its directory is unusable.
func openUsageTracker(cfg *config.Config, command string, logger *log.Logger) *telemetry.UsageTracker {
	if !cfg.Usage.Enabled {
		return nil
	}
	dir, err := cfg.UsageDir()
	if err != nil {
		logger.Printf("usage ledger unavailable: %v", err)
		return nil
	}
	tracker, err := telemetry.NewUsageTracker(dir, command)
	if err != nil {
		logger.Printf("usage ledger unavailable: %v", err)
		return nil
	}
	if n, err := tracker.Prune(cfg.Usage.RetentionDays); err != nil {
		logger.Printf("usage prune failed: %v", err)
	} else if n > 0 {
		logger.Printf("pruned %d usage sessions older than %d days", n, cfg.Usage.RetentionDays)
	}
	return tracker
}

// recordUsage adds one request to the ledger and saves it. x is nil when the
// request failed before streaming; err then holds the reason.
func recordUsage(tracker *telemetry.UsageTracker, model, prompt string, x *exchange, err error, logger *log.Logger) {
	if tracker == nil {
		return
	}
	r := telemetry.RequestUsage{Model: model, Prompt: prompt}
	if x != nil {
		if x.Stats.Model != "" {
			r.Model = x.Stats.Model
		}
		r.Tokens = x.Stats.TokenCount
		r.Duration = x.Stats.TotalTime
		r.TTFT = x.Stats.FirstTokenTime
		r.FinishReason = x.Stats.FinishReason
		err = x.Err
	}
	if err != nil {
		r.Error = err.Error()
	}
	tracker.Record(r)
	if err := tracker.Save(); err != nil {
		logger.Printf("failed to save usage: %v", err)
	}
}

// expandMentions resolves the @ mentions of input. Mentions that fail are
// reported on errOut and left out of the message.
func expandMentions(ctx context.Context, e *ctxmention.Expander, input string, errOut io.Writer) string {
	if e == nil {
		return input
	}
	result := e.Expand(ctx, input)
	if result.HasErrors() {
		fmt.Fprintln(errOut, WarningStyle.Render("Context: "+result.ErrorSummary()))
	}
	return result.ExpandedMessage
}
