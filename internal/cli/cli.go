// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for rigrun-stream.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/jeranaias/rigrun-stream/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdHistory
	CmdConfig
	CmdUsage
	CmdBench
	CmdVersion
	CmdHelp
	CmdUnknown
)

// String returns the command name used in JSON output.
func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdHistory:
		return "history"
	case CmdConfig:
		return "config"
	case CmdUsage:
		return "usage"
	case CmdBench:
		return "bench"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	Offline    bool
	Model      string
	ConfigPath string

	// Unknown holds the unrecognized command name for CmdUnknown
	Unknown string

	// Raw args (remaining after the command name and global flags)
	Raw []string
}

const usageText = `rigrun-stream - streaming chat completions in the terminal

Usage:
  rigrun-stream                      Interactive chat (default)
  rigrun-stream ask "question"       Ask a single question
  rigrun-stream chat                 Interactive chat
  rigrun-stream history [list|show ID|search Q|export ID|delete ID|clear]
  rigrun-stream history export ID [-o PATH] [--format markdown|json|html]
  rigrun-stream config [show|path|init|set KEY VALUE]
  rigrun-stream usage [summary|sessions] [--days N]
  rigrun-stream bench [MODEL...] [--quick] [--no-save]
  rigrun-stream version
  rigrun-stream help

Ask flags:
  -f, --file FILE        Include file content with the question
  -s, --system TEXT      System prompt
  -t, --temperature T    Sampling temperature (0-2)
  --max-tokens N         Cap the answer length
  --timeout SECS         Idle timeout in seconds
  --markdown             Render the finished answer
  --no-save              Do not store a transcript

Context mentions (ask and chat):
  @file:PATH             Include a file
  @git[:RANGE]           Include recent commits, status and diff summary
  @error                 Include the last failed request (chat)

Global flags:
  -m, --model NAME       Model to use (overrides config)
  -c, --config PATH      Config file (default ~/.rigrun-stream/config.toml)
  --json                 Machine-readable output
  --offline              Only allow a localhost endpoint
  -q, --quiet            Minimal output
  -v, --verbose          Log requests and stream events to stderr

Environment:
  OPENAI_API_KEY, RIGRUN_STREAM_API_KEY, RIGRUN_STREAM_MODEL,
  RIGRUN_STREAM_ENDPOINT, RIGRUN_STREAM_TIMEOUT, RIGRUN_STREAM_OFFLINE,
  NO_COLOR

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "rigrun-stream version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	parsedArgs.Raw = remaining[1:]

	switch cmd {
	case "ask", "a":
		return CmdAsk, parsedArgs
	case "chat":
		return CmdChat, parsedArgs
	case "history", "hist":
		return CmdHistory, parsedArgs
	case "config":
		return CmdConfig, parsedArgs
	case "usage":
		return CmdUsage, parsedArgs
	case "bench", "benchmark":
		return CmdBench, parsedArgs
	case "version", "--version":
		return CmdVersion, parsedArgs
	case "help", "-h", "--help":
		return CmdHelp, parsedArgs
	default:
		parsedArgs.Unknown = remaining[0]
		parsedArgs.Raw = remaining
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns the rest.
// Parsing stops at "--" so a question can start with a dash.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "--":
			return append(remaining, args[i:]...), parsedArgs
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--offline":
			parsedArgs.Offline = true
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		case "-c", "--config":
			if i+1 < len(args) {
				i++
				parsedArgs.ConfigPath = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}
	return remaining, parsedArgs
}

// =============================================================================
// DISPATCH
// =============================================================================

// reportedError marks an error the handler already showed to the user
// (as a JSON error response). Run only uses it for the exit code.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// loadConfig returns the config named by --config, or the global one.
func loadConfig(args Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		return config.LoadFromPath(args.ConfigPath)
	}
	return config.Global(), nil
}

// applyOverrides applies the global flags that change the configuration and
// validates the result. cfg is cloned before any change.
func applyOverrides(cfg *config.Config, args Args) (*config.Config, error) {
	if !args.Offline || cfg.API.Offline {
		return cfg, nil
	}
	cfg = cfg.Clone()
	cfg.API.Offline = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run executes the command line and returns the process exit code.
func Run(argv []string) int {
	cmd, args := Parse(argv)

	err := dispatch(cmd, args)
	if err == nil {
		return ExitSuccess
	}

	var reported *reportedError
	if !errors.As(err, &reported) {
		DisplayError(cmd.String(), err, args.JSON)
	}
	return GetExitCode(err)
}

func dispatch(cmd Command, args Args) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(os.Stdout)
		return nil
	case CmdVersion:
		return handleVersion(args)
	case CmdUnknown:
		return &UnknownCommandError{Name: args.Unknown, Suggestion: SuggestCommand(args.Unknown)}
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cfg, err = applyOverrides(cfg, args); err != nil {
		return err
	}
	ApplyColorMode(cfg.UI.Color)

	switch cmd {
	case CmdAsk:
		return HandleAskCommand(cfg, args)
	case CmdChat:
		return HandleChatCommand(cfg, args)
	case CmdHistory:
		return HandleHistory(cfg, args)
	case CmdConfig:
		return HandleConfig(cfg, args)
	case CmdUsage:
		return HandleUsage(cfg, args)
	case CmdBench:
		return HandleBench(cfg, args)
	}
	return fmt.Errorf("unhandled command %v", cmd)
}

// handleVersion handles the "version" command with JSON output support.
func handleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print()
	}
	PrintVersion(os.Stdout)
	return nil
}
