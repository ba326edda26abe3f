// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single question command.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Handles "rigrun-stream ask", which sends one question and streams the
// answer to stdout as it arrives.
//
// Command: ask [question]
// Short:   Ask a single question
//
// Examples:
//   rigrun-stream ask "What is the capital of France?"
//   rigrun-stream ask --json "Summarize RFC 6455"
//   rigrun-stream ask "Review this code:" --file main.go
//   git diff | rigrun-stream ask --system "You review diffs."
//   rigrun-stream ask "Write a commit message for @git"
//
// Flags:
//   -f, --file FILE         Include file content with the question
//   -m, --model NAME        Use specific model (overrides config)
//   -s, --system TEXT       System prompt (overrides config)
//   -t, --temperature T     Sampling temperature, 0 to 2
//   --max-tokens N          Cap the answer length
//   --timeout SECS          Idle timeout in seconds
//   --markdown              Render the finished answer with glamour
//   --no-save               Do not store a transcript
//   --json                  Output the answer and fragments as JSON

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/config"
	ctxmention "github.com/jeranaias/rigrun-stream/internal/context"
	"github.com/jeranaias/rigrun-stream/internal/storage"
)

// MaxFileSize is the largest file accepted by --file (50KB).
const MaxFileSize = 50 * 1024

// askUsage is shown when no question is given.
const askUsage = `rigrun-stream ask "your question"`

// askOptions holds the parsed ask flags.
type askOptions struct {
	Question    string
	File        string
	System      string
	Temperature *float64
	MaxTokens   *int
	TimeoutSecs int
	Markdown    bool
	NoSave      bool
}

// parseAskOptions parses the ask command's flags and question.
func parseAskOptions(raw []string) (askOptions, error) {
	p := NewArgParser(raw, "markdown", "no-save")

	opts := askOptions{
		Question: strings.TrimSpace(strings.Join(p.PositionalFrom(0), " ")),
		File:     p.Flag("file", "f"),
		System:   p.Flag("system", "s"),
		Markdown: p.BoolFlag("markdown"),
		NoSave:   p.BoolFlag("no-save"),
	}

	if v, ok, err := p.FlagFloat("temperature", "t"); err != nil {
		return opts, err
	} else if ok {
		opts.Temperature = &v
	}
	if v, ok, err := p.FlagInt("max-tokens"); err != nil {
		return opts, err
	} else if ok {
		opts.MaxTokens = &v
	}
	if v, ok, err := p.FlagInt("timeout"); err != nil {
		return opts, err
	} else if ok {
		opts.TimeoutSecs = v
	}
	return opts, nil
}

// apply returns a copy of cfg with the flag overrides applied and validated.
func (o askOptions) apply(cfg *config.Config, model string) (*config.Config, error) {
	out := cfg.Clone()
	if model != "" {
		out.Chat.Model = model
	}
	if o.System != "" {
		out.Chat.SystemPrompt = o.System
	}
	if o.Temperature != nil {
		out.Chat.Temperature = o.Temperature
	}
	if o.MaxTokens != nil {
		out.Chat.MaxTokens = o.MaxTokens
	}
	if o.TimeoutSecs != 0 {
		out.API.RequestTimeoutSecs = o.TimeoutSecs
	}
	if o.Markdown {
		out.UI.Markdown = true
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// askMessages builds the request history for a single question.
func askMessages(systemPrompt, question string) []chat.Message {
	messages := make([]chat.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chat.SystemMessage(systemPrompt))
	}
	return append(messages, chat.UserMessage(question))
}

// =============================================================================
// FILE AND STDIN INPUT
// =============================================================================

// readFileForContext reads a file and formats it for inclusion in a prompt.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ValidationError{Field: "--file", Value: path, Reason: "file not found"}
		}
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return "", &ValidationError{
			Field:  "--file",
			Value:  path,
			Reason: fmt.Sprintf("file too large: %d bytes (max %d bytes)", info.Size(), MaxFileSize),
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("\n--- File: %s ---\n", path))
	builder.Write(content)
	builder.WriteString("\n--- End of file ---\n")
	return builder.String(), nil
}

// readStdinQuestion reads the question from a pipe. Returns "" when stdin
// is a terminal.
func readStdinQuestion(r io.Reader) (string, error) {
	if IsTTY() {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) > MaxFileSize {
		return "", &ValidationError{Field: "stdin", Reason: fmt.Sprintf("input larger than %d bytes", MaxFileSize)}
	}
	return strings.TrimSpace(string(data)), nil
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// HandleAskCommand handles the "ask" command.
func HandleAskCommand(cfg *config.Config, args Args) error {
	opts, err := parseAskOptions(args.Raw)
	if err != nil {
		return err
	}

	// With no question argument (or "-"), a pipe supplies it
	if opts.Question == "" || opts.Question == "-" {
		if opts.Question, err = readStdinQuestion(os.Stdin); err != nil {
			return err
		}
	}

	if opts.File != "" {
		content, err := readFileForContext(opts.File)
		if err != nil {
			return err
		}
		opts.Question += content
	}

	if opts.Question == "" {
		return ErrMissingArgument("question", askUsage)
	}

	runCfg, err := opts.apply(cfg, args.Model)
	if err != nil {
		return err
	}

	// Ctrl+C cancels the request; the partial answer is still printed
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	question := expandMentions(ctx, ctxmention.NewExpander(nil), opts.Question, os.Stderr)

	logger := newLogger(args.Verbose)
	tracker := openUsageTracker(runCfg, "ask", logger)
	x, err := runAsk(ctx, runCfg, question, args.JSON, os.Stdout, logger)
	recordUsage(tracker, runCfg.Chat.Model, opts.Question, x, err, logger)
	if err != nil {
		return err
	}

	transcriptID := ""
	if !opts.NoSave {
		t := &storage.Transcript{Model: runCfg.Chat.Model}
		for _, m := range askMessages(runCfg.Chat.SystemPrompt, question) {
			t.Append(storage.NewEntry(m.Role, m.Content))
		}
		t.Append(x.assistantEntry(runCfg.Chat.Model))
		transcriptID = saveTranscript(runCfg, t, logger)
	}

	if args.JSON {
		data := AskData{
			Response:     x.Text,
			Model:        firstNonEmpty(x.Stats.Model, runCfg.Chat.Model),
			FinishReason: x.Stats.FinishReason,
			Tokens:       x.Stats.TokenCount,
			DurationMs:   x.Stats.TotalTime.Milliseconds(),
			TTFTMs:       x.Stats.FirstTokenTime.Milliseconds(),
			TokensPerSec: x.Stats.TokensPerSecond(),
			TranscriptID: transcriptID,
			Chunks:       x.Chunks,
		}
		if err := NewJSONResponse("ask", data).WithError(x.Err).Print(); err != nil {
			return err
		}
		if x.Err != nil {
			return &reportedError{x.Err}
		}
		return nil
	}

	if runCfg.UI.ShowStats && !args.Quiet {
		printStats(os.Stderr, x.Stats)
	}
	return x.Err
}

// runAsk streams the answer to out. With JSON output nothing is written
// here; with markdown the answer is rendered once complete.
func runAsk(ctx context.Context, cfg *config.Config, question string, jsonMode bool,
	out io.Writer, logger *log.Logger) (*exchange, error) {
	markdown := !jsonMode && useMarkdown(cfg.UI.Markdown)

	var observer func(string)
	if !jsonMode && !markdown {
		observer = func(token string) { fmt.Fprint(out, token) }
	}

	x, err := runExchange(ctx, cfg, cfg.Chat.Configuration(),
		askMessages(cfg.Chat.SystemPrompt, question), observer, logger)
	if err != nil {
		return nil, err
	}

	switch {
	case jsonMode:
	case markdown:
		fmt.Fprint(out, renderMarkdown(x.Text))
	case x.Text != "" && !strings.HasSuffix(x.Text, "\n"):
		fmt.Fprintln(out)
	}
	return x, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
