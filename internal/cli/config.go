// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display the effective configuration
//   path                Show configuration file path
//   init [--force]      Write a config file, prompting for the API key
//   set <key> <value>   Set a configuration value
//
// Examples:
//   rigrun-stream config show --json
//   rigrun-stream config set model gpt-4o-mini
//   rigrun-stream config set markdown true
//   rigrun-stream config set timeout 120

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/stream"
)

// HandleConfig handles the "config" command.
func HandleConfig(cfg *config.Config, args Args) error {
	p := NewArgParser(args.Raw, "force")

	path := args.ConfigPath
	if path == "" {
		var err error
		if path, err = config.ConfigPathTOML(); err != nil {
			return err
		}
	}

	switch sub := strings.ToLower(p.Subcommand()); sub {
	case "", "show":
		return configShow(cfg, path, args.JSON, os.Stdout)
	case "path":
		return configPath(cfg, path, args.JSON, os.Stdout)
	case "init":
		return configInit(path, p.BoolFlag("force"), args.JSON, os.Stdout)
	case "set":
		return configSet(path, p.Positional(1), p.Positional(2), args.JSON, os.Stdout)
	default:
		return &ValidationError{
			Field:   "config subcommand",
			Value:   sub,
			Reason:  "unknown subcommand",
			Example: "rigrun-stream config [show|path|init|set KEY VALUE]",
		}
	}
}

// configShow displays the effective configuration with the key masked.
func configShow(cfg *config.Config, path string, jsonMode bool, out io.Writer) error {
	if jsonMode {
		safe := cfg.Clone()
		safe.API.Key = maskAPIKey(cfg.API.Key)
		return NewJSONResponse("config show", safe).Write(out)
	}

	fmt.Fprintln(out, TitleStyle.Render("rigrun-stream configuration"))
	fmt.Fprintln(out, RenderSeparator(41))
	fmt.Fprintf(out, "%s%s\n", RenderLabel("api key:"), maskAPIKey(cfg.API.Key))
	fmt.Fprintf(out, "%s%s\n\n", RenderLabel("config file:"), path)
	fmt.Fprint(out, cfg.String())
	return nil
}

func configPath(cfg *config.Config, path string, jsonMode bool, out io.Writer) error {
	_, statErr := os.Stat(path)
	historyDir, err := cfg.HistoryDir()
	if err != nil {
		return err
	}

	if jsonMode {
		return NewJSONResponse("config path", ConfigPathData{
			Path:       path,
			Exists:     statErr == nil,
			HistoryDir: historyDir,
		}).Write(out)
	}

	fmt.Fprintln(out, path)
	if errors.Is(statErr, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, DimStyle.Render("(file does not exist; run 'rigrun-stream config init')"))
	}
	return nil
}

// configInit writes a config file with defaults and an API key read
// without echo. Environment keys are not copied into the file.
func configInit(path string, force, jsonMode bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return &ValidationError{
			Field:   "config file",
			Value:   path,
			Reason:  "already exists (use --force to overwrite)",
			Example: "rigrun-stream config init --force",
		}
	}

	cfg := config.Default()
	if !jsonMode && IsTTY() {
		key, err := ReadSecret("API key (leave empty to use OPENAI_API_KEY): ")
		if err != nil {
			return err
		}
		cfg.API.Key = key
	}

	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("config init", ConfigPathData{Path: path, Exists: true}).Write(out)
	}
	fmt.Fprintf(out, "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

// =============================================================================
// CONFIG SET
// =============================================================================

// configSetters maps the keys accepted by "config set" to their fields.
var configSetters = map[string]func(c *config.Config, v string) error{
	"model":         func(c *config.Config, v string) error { c.Chat.Model = v; return nil },
	"system_prompt": func(c *config.Config, v string) error { c.Chat.SystemPrompt = v; return nil },
	"endpoint":      func(c *config.Config, v string) error { c.API.Endpoint = v; return nil },
	"color":         func(c *config.Config, v string) error { c.UI.Color = v; return nil },
	"history_dir":   func(c *config.Config, v string) error { c.History.Dir = v; return nil },
	"timeout": func(c *config.Config, v string) error {
		return setInt(&c.API.RequestTimeoutSecs, v)
	},
	"max_transcripts": func(c *config.Config, v string) error {
		return setInt(&c.History.MaxTranscripts, v)
	},
	"markdown":   func(c *config.Config, v string) error { return setBool(&c.UI.Markdown, v) },
	"show_stats": func(c *config.Config, v string) error { return setBool(&c.UI.ShowStats, v) },
	"history":    func(c *config.Config, v string) error { return setBool(&c.History.Enabled, v) },
	"offline":    func(c *config.Config, v string) error { return setBool(&c.API.Offline, v) },
	"usage":      func(c *config.Config, v string) error { return setBool(&c.Usage.Enabled, v) },
	"usage_dir":  func(c *config.Config, v string) error { c.Usage.Dir = v; return nil },
	"usage_retention_days": func(c *config.Config, v string) error {
		return setInt(&c.Usage.RetentionDays, v)
	},
	"temperature": func(c *config.Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Chat.Temperature = &f
		return nil
	},
	"max_tokens": func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Chat.MaxTokens = &n
		return nil
	},
}

func configSet(path, key, value string, jsonMode bool, out io.Writer) error {
	if key == "" || value == "" {
		return ErrMissingArgument("key and value", "rigrun-stream config set model gpt-4o-mini")
	}
	set, ok := configSetters[strings.ToLower(key)]
	if !ok {
		return &ValidationError{Field: "config key", Value: key, Reason: "unknown key", Example: "one of: " + configKeys()}
	}

	// Start from the file alone so environment overrides are not persisted
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}

	if err := set(cfg, value); err != nil {
		return &ValidationError{Field: key, Value: value, Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	if jsonMode {
		return NewJSONResponse("config set", map[string]string{"key": key, "value": value}).Write(out)
	}
	fmt.Fprintf(out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, value)
	return nil
}

func configKeys() string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := ParseBoolString(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// maskAPIKey masks an API key for display.
// SECURITY: Only a SHA-256 fingerprint is shown, never key characters.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	return "sha256:" + stream.KeyFingerprint(key)
}
