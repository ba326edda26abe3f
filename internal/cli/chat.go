// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Handles "rigrun-stream chat", a REPL that keeps the conversation as
// context for each request and streams every answer as it arrives.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   rigrun-stream chat
//   rigrun-stream chat --model gpt-4o-mini
//   rigrun-stream chat --resume 3f2a    Continue a saved transcript
//
// Flags:
//   -m, --model NAME     Use specific model (overrides config)
//   -s, --system TEXT    System prompt (overrides config)
//   -r, --resume ID      Continue a saved transcript
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /clear, /c          Clear conversation history
//   /model [name]       Show or switch model
//   /history            Show conversation history
//   /save [FILE]        Save the transcript, or export it to FILE (.md, .json, .html)
//   /stats, /s          Show session statistics
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat
//
// Messages may reference @file:PATH, @git[:RANGE] and @error (the last
// failed request); their content is sent ahead of the message.
//
// Edits to the config file take effect on the next message.

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/config"
	ctxmention "github.com/jeranaias/rigrun-stream/internal/context"
	"github.com/jeranaias/rigrun-stream/internal/export"
	"github.com/jeranaias/rigrun-stream/internal/offline"
	"github.com/jeranaias/rigrun-stream/internal/storage"
	"github.com/jeranaias/rigrun-stream/internal/telemetry"
	"github.com/jeranaias/rigrun-stream/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history.
// SECURITY: 0600, since prompts may contain sensitive text.
func (c *ChatCLI) SaveHistory() {
	var buf bytes.Buffer
	if _, err := c.line.WriteHistory(&buf); err != nil {
		return
	}
	util.WriteFileAtomic(c.historyFile, buf.Bytes(), 0600, 0700)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for an interactive chat session.
type ChatSession struct {
	mu     sync.Mutex
	cfg    *config.Config
	model  string // /model or --model override; "" follows the config
	system string // --system override

	messages   []chat.Message
	transcript *storage.Transcript

	// Tracking
	StartTime   time.Time
	Turns       int
	TotalTokens int
	Errors      int

	cancel context.CancelFunc

	// usage is nil when the ledger is disabled
	usage *telemetry.UsageTracker

	mentions *ctxmention.Expander

	quiet  bool
	logger *log.Logger
}

// NewChatSession creates a chat session for cfg.
func NewChatSession(cfg *config.Config, model, system string, quiet bool, logger *log.Logger) *ChatSession {
	return &ChatSession{
		cfg:        cfg,
		model:      model,
		system:     system,
		transcript: &storage.Transcript{},
		StartTime:  time.Now(),
		mentions:   ctxmention.NewExpander(nil),
		quiet:      quiet,
		logger:     logger,
	}
}

// Resume continues t: its messages become the conversation context.
func (s *ChatSession) Resume(t *storage.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = t
	s.messages = t.Messages()
	if s.model == "" && t.Model != "" {
		s.model = t.Model
	}
}

// SetConfig swaps in a reloaded configuration.
func (s *ChatSession) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Config returns the current configuration.
func (s *ChatSession) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Model returns the model the next request will use.
func (s *ChatSession) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelLocked()
}

func (s *ChatSession) modelLocked() string {
	if s.model != "" {
		return s.model
	}
	return s.cfg.Chat.Model
}

// Messages returns a copy of the conversation.
func (s *ChatSession) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.messages...)
}

// Clear drops the conversation and starts a new transcript.
func (s *ChatSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.transcript = &storage.Transcript{}
}

// Cancel aborts the in-flight request. Returns false if none is running.
func (s *ChatSession) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// prepare records the user message and snapshots what the request needs.
func (s *ChatSession) prepare(parent context.Context, input string) (context.Context, *config.Config, chat.Configuration, []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	s.messages = append(s.messages, chat.UserMessage(input))

	systemPrompt := s.system
	if systemPrompt == "" {
		systemPrompt = s.cfg.Chat.SystemPrompt
	}
	msgs := make([]chat.Message, 0, len(s.messages)+1)
	if systemPrompt != "" && (len(s.messages) == 0 || s.messages[0].Role != chat.RoleSystem) {
		msgs = append(msgs, chat.SystemMessage(systemPrompt))
	}
	msgs = append(msgs, s.messages...)

	return ctx, s.cfg, s.cfg.Chat.Configuration().WithModel(s.modelLocked()), msgs
}

// finish releases the request context and records the outcome.
func (s *ChatSession) finish(input string, x *exchange) (*storage.Transcript, *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	// Nothing arrived: forget the question so it is not sent twice
	if x == nil || x.Text == "" {
		if n := len(s.messages); n > 0 {
			s.messages = s.messages[:n-1]
		}
		if x == nil || x.Err != nil {
			s.Errors++
		}
		return nil, s.cfg
	}

	// A partial answer is kept as context; the transcript records the error
	s.messages = append(s.messages, chat.AssistantMessage(x.Text))
	s.Turns++
	s.TotalTokens += x.Stats.TokenCount
	if x.Err != nil {
		s.Errors++
	}

	if s.transcript.Model == "" {
		s.transcript.Model = s.modelLocked()
	}
	s.transcript.Append(storage.NewEntry(chat.RoleUser, input), x.assistantEntry(s.modelLocked()))
	return s.transcript, s.cfg
}

// Send streams the answer to input onto out. Warnings and stats go to errOut.
func (s *ChatSession) Send(parent context.Context, input string, out, errOut io.Writer) error {
	sent := expandMentions(parent, s.mentions, input, errOut)
	ctx, cfg, chatCfg, msgs := s.prepare(parent, sent)

	markdown := useMarkdown(cfg.UI.Markdown)
	var observer func(string)
	if !markdown {
		observer = func(token string) { fmt.Fprint(out, token) }
	}

	x, err := runExchange(ctx, cfg, chatCfg, msgs, observer, s.logger)
	recordUsage(s.usage, chatCfg.Model(), input, x, err, s.logger)
	s.rememberError(x, err)
	if err != nil {
		s.finish(sent, nil)
		return err
	}

	if markdown {
		fmt.Fprint(out, renderMarkdown(x.Text))
	} else if x.Text != "" {
		fmt.Fprintln(out)
	}

	t, cfg := s.finish(sent, x)
	if t != nil {
		saveTranscript(cfg, t, s.logger)
	}

	if x.Err != nil {
		if errors.Is(x.Err, context.Canceled) {
			fmt.Fprintln(errOut, WarningStyle.Render("[Cancelled]"))
			return nil
		}
		return x.Err
	}
	if cfg.UI.ShowStats && !s.quiet {
		printStats(errOut, x.Stats)
	}
	return nil
}

// rememberError keeps the last failure for @error. Cancellation is not one.
func (s *ChatSession) rememberError(x *exchange, err error) {
	if s.mentions == nil {
		return
	}
	if err == nil && x != nil {
		err = x.Err
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.mentions.Fetcher().StoreError(err.Error())
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChatCommand handles the "chat" command.
func HandleChatCommand(cfg *config.Config, args Args) error {
	p := NewArgParser(args.Raw)
	logger := newLogger(args.Verbose)
	session := NewChatSession(cfg, args.Model, p.Flag("system", "s"), args.Quiet, logger)
	session.usage = openUsageTracker(cfg, "chat", logger)
	if session.usage != nil {
		defer func() {
			if err := session.usage.EndSession(); err != nil {
				logger.Printf("failed to save usage: %v", err)
			}
		}()
	}

	if id := p.Flag("resume", "r"); id != "" {
		store, err := openTranscriptStore(cfg)
		if err != nil {
			return err
		}
		t, err := store.Load(id)
		if err != nil {
			return err
		}
		session.Resume(t)
	}

	// Hot reload: config edits apply to the next message
	if path := watchedConfigPath(args.ConfigPath); path != "" {
		watcher, err := config.NewWatcher(path, config.DefaultWatchDebounce, func(newCfg *config.Config, err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "\n%s %v (keeping previous config)\n", WarningStyle.Render("[Config]"), err)
				return
			}
			if err := reloadConfig(session, newCfg, args); err != nil {
				fmt.Fprintf(os.Stderr, "\n%s %v (keeping previous config)\n", WarningStyle.Render("[Config]"), err)
				return
			}
			ApplyColorMode(newCfg.UI.Color)
			logger.Printf("config reloaded from %s", path)
		})
		if err != nil {
			logger.Printf("config watcher disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	if !args.Quiet {
		printWelcome(os.Stdout, session)
	}

	input := NewChatCLI()
	defer input.Close()

	// First Ctrl+C during a response cancels it; at the prompt liner
	// reports it as ErrPromptAborted. SIGTERM ends the session.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	terminated := make(chan struct{})
	go watchSignals(sigChan, session, terminated)
	go func() {
		<-terminated
		session.Cancel()
		input.Close()
		if session.usage != nil {
			if err := session.usage.EndSession(); err != nil {
				logger.Printf("failed to save usage: %v", err)
			}
		}
		fmt.Println()
		printExitSummary(os.Stdout, session)
		os.Exit(ExitSuccess)
	}()

	for {
		line, err := input.ReadInput(PromptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or closed stdin
			fmt.Println()
			printExitSummary(os.Stdout, session)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			shouldContinue, err := handleSlashCommand(line, session, os.Stdout)
			if err != nil {
				displayErrorTo(os.Stderr, err)
			}
			if !shouldContinue {
				printExitSummary(os.Stdout, session)
				return nil
			}
			continue
		}

		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			printExitSummary(os.Stdout, session)
			return nil
		}

		fmt.Println()
		if err := session.Send(context.Background(), line, os.Stdout, os.Stderr); err != nil {
			displayErrorTo(os.Stderr, err)
		}
		fmt.Println()
	}
}

// reloadConfig re-applies the command-line overrides to a reloaded config
// and swaps it in. On error the session keeps its current config.
func reloadConfig(session *ChatSession, newCfg *config.Config, args Args) error {
	cfg, err := applyOverrides(newCfg, args)
	if err != nil {
		return err
	}
	if args.Model != "" && cfg.Chat.Model != args.Model {
		cfg = cfg.Clone()
		cfg.Chat.Model = args.Model
	}
	session.SetConfig(cfg)
	return nil
}

// watchSignals cancels the running request on os.Interrupt and closes
// terminated on SIGTERM. It returns when sigs is closed or after SIGTERM.
func watchSignals(sigs <-chan os.Signal, session *ChatSession, terminated chan<- struct{}) {
	for sig := range sigs {
		if sig == syscall.SIGTERM {
			close(terminated)
			return
		}
		session.Cancel()
	}
}

// watchedConfigPath returns the config file to watch, or "" if none exists.
func watchedConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, pathFn := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		if path, err := pathFn(); err == nil {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(cmd string, session *ChatSession, out io.Writer) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printHelp(out)
	case "/clear", "/c":
		session.Clear()
		fmt.Fprintln(out, CommandStyle.Render("[Conversation cleared]"))
	case "/model", "/m":
		if len(args) == 0 {
			fmt.Fprintf(out, "%s Current model: %s\n", DimStyle.Render("[Model]"), CommandStyle.Render(session.Model()))
			return true, nil
		}
		session.mu.Lock()
		session.model = args[0]
		session.mu.Unlock()
		fmt.Fprintf(out, "%s Switched to model: %s\n", SuccessStyle.Render("[OK]"), args[0])
	case "/history":
		printHistory(out, session)
	case "/save":
		return true, saveCommand(session, args, out)
	case "/stats", "/s", "/status":
		printStatus(out, session)
	case "/quit", "/q", "/exit":
		return false, nil
	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

// saveCommand stores the transcript, or exports it as Markdown to a file.
func saveCommand(session *ChatSession, args []string, out io.Writer) error {
	session.mu.Lock()
	t := session.transcript
	cfg := session.cfg
	exported := *t
	session.mu.Unlock()

	if len(exported.Entries) == 0 {
		return errors.New("nothing to save yet")
	}

	if len(args) > 0 {
		if exported.Title == "" {
			exported.Title = "Chat " + time.Now().Format("2006-01-02 15:04")
		}
		if err := export.ToFile(&exported, args[0], nil); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Exported to %s\n", SuccessStyle.Render("[OK]"), args[0])
		return nil
	}

	store, err := openTranscriptStore(cfg)
	if err != nil {
		return err
	}
	session.mu.Lock()
	id, err := store.Save(t)
	session.mu.Unlock()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s Saved transcript %s\n", SuccessStyle.Render("[OK]"), id[:8])
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func printWelcome(out io.Writer, session *ChatSession) {
	cfg := session.Config()
	fmt.Fprintln(out)
	fmt.Fprintln(out, TitleStyle.Render("rigrun-stream interactive chat"))
	fmt.Fprintln(out, RenderSeparator(30))
	fmt.Fprintf(out, "%s %s\n", DimStyle.Render("Model:"), CommandStyle.Render(session.Model()))
	if badge := offline.StatusBadge(cfg.API.Offline); badge != "" {
		fmt.Fprintf(out, "%s %s %s\n", DimStyle.Render("Endpoint:"), cfg.API.Endpoint, WarningStyle.Render(badge))
	}
	if cfg.API.Key == "" {
		fmt.Fprintf(out, "%s %s\n", DimStyle.Render("API key:"), WarningStyle.Render("not set (export OPENAI_API_KEY)"))
	}
	if n := len(session.Messages()); n > 0 {
		fmt.Fprintf(out, "%s %d messages\n", DimStyle.Render("Resumed:"), n)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(out)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(out, RenderSeparator(20))

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Clear conversation history"},
		{"/model [name]", "Show or switch model"},
		{"/history", "Show conversation history"},
		{"/save [FILE]", "Save transcript, or export to FILE"},
		{"/stats, /s", "Show session statistics"},
		{"/quit, /q", "Exit chat"},
	}
	for _, c := range commands {
		fmt.Fprintf(out, "  %s  %s\n", CommandStyle.Render(fmt.Sprintf("%-15s", c.cmd)), DimStyle.Render(c.desc))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, DimStyle.Render("Context: @file:PATH, @git[:RANGE], @error"))
	fmt.Fprintln(out, DimStyle.Render("Tip: Ctrl+C cancels current generation, Ctrl+D exits"))
	fmt.Fprintln(out)
}

// historyPreviewWidth bounds each line of /history.
const historyPreviewWidth = 100

func printHistory(out io.Writer, session *ChatSession) {
	messages := session.Messages()
	if len(messages) == 0 {
		fmt.Fprintln(out, DimStyle.Render("[No messages yet]"))
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, TitleStyle.Render("Conversation History"))
	fmt.Fprintln(out, RenderSeparator(25))
	for i, msg := range messages {
		// UNICODE: width-aware truncation keeps CJK and emoji intact
		content := util.TruncateWidth(util.OneLine(msg.Content), historyPreviewWidth)
		fmt.Fprintf(out, "  %d. %s: %s\n", i+1, RenderRole(string(msg.Role)), content)
	}
	fmt.Fprintln(out)
}

func printStatus(out io.Writer, session *ChatSession) {
	session.mu.Lock()
	turns, tokens, errs := session.Turns, session.TotalTokens, session.Errors
	history := len(session.messages)
	session.mu.Unlock()

	fmt.Fprintln(out)
	fmt.Fprintln(out, TitleStyle.Render("Session Status"))
	fmt.Fprintln(out, RenderSeparator(20))
	fmt.Fprintf(out, "  %s%s\n", RenderLabel("Model:", 12), CommandStyle.Render(session.Model()))
	fmt.Fprintf(out, "  %s%s\n", RenderLabel("Duration:", 12), formatDurationShort(time.Since(session.StartTime)))
	fmt.Fprintf(out, "  %s%d messages\n", RenderLabel("History:", 12), history)
	fmt.Fprintf(out, "  %s%d\n", RenderLabel("Answers:", 12), turns)
	fmt.Fprintf(out, "  %s%d\n", RenderLabel("Tokens:", 12), tokens)
	if errs > 0 {
		fmt.Fprintf(out, "  %s%s\n", RenderLabel("Errors:", 12), WarningStyle.Render(fmt.Sprint(errs)))
	}
	fmt.Fprintln(out)
}

func printExitSummary(out io.Writer, session *ChatSession) {
	session.mu.Lock()
	turns, tokens := session.Turns, session.TotalTokens
	session.mu.Unlock()

	if turns > 0 {
		fmt.Fprintf(out, "%s %d answers | %d tokens | %s\n",
			DimStyle.Render("[Session]"), turns, tokens,
			formatDurationShort(time.Since(session.StartTime)))
	}
	fmt.Fprintln(out, DimStyle.Render("Goodbye!"))
}
