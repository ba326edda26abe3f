// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/offline"
	"github.com/jeranaias/rigrun-stream/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigrun-stream configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// API connection settings
	API APIConfig `toml:"api" json:"api"`

	// Request defaults
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Terminal output
	UI UIConfig `toml:"ui" json:"ui"`

	// Transcript persistence
	History HistoryConfig `toml:"history" json:"history"`

	// Request usage ledger
	Usage UsageConfig `toml:"usage" json:"usage"`
}

// APIConfig contains chat completions API settings.
type APIConfig struct {
	// Key is the bearer token. Prefer OPENAI_API_KEY over storing it here.
	Key string `toml:"key" json:"key"`
	// Endpoint is the chat completions URL
	Endpoint string `toml:"endpoint" json:"endpoint"`
	// RequestTimeoutSecs bounds the wait for the response and between reads
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
	// Offline restricts the endpoint to localhost
	Offline bool `toml:"offline" json:"offline"`
}

// ChatConfig holds the default model and sampling parameters. Unset pointer
// fields are not sent, leaving the service default in effect.
type ChatConfig struct {
	Model            string   `toml:"model" json:"model"`
	SystemPrompt     string   `toml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Temperature      *float64 `toml:"temperature,omitempty" json:"temperature,omitempty"`
	N                *int     `toml:"n,omitempty" json:"n,omitempty"`
	MaxTokens        *int     `toml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	TopP             *float64 `toml:"top_p,omitempty" json:"top_p,omitempty"`
	FrequencyPenalty *float64 `toml:"frequency_penalty,omitempty" json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `toml:"presence_penalty,omitempty" json:"presence_penalty,omitempty"`
	Logprobs         *int     `toml:"logprobs,omitempty" json:"logprobs,omitempty"`
	// ResponseFormat is "text" or "json_object"; empty leaves it unset
	ResponseFormat string   `toml:"response_format,omitempty" json:"response_format,omitempty"`
	Stop           []string `toml:"stop,omitempty" json:"stop,omitempty"`
}

// UIConfig contains terminal output settings.
type UIConfig struct {
	// Markdown renders finished answers with glamour
	Markdown bool `toml:"markdown" json:"markdown"`
	// ShowStats prints timing and token counts after each answer
	ShowStats bool `toml:"show_stats" json:"show_stats"`
	// Color is "auto", "always" or "never"
	Color string `toml:"color" json:"color"`
}

// HistoryConfig contains transcript storage settings.
type HistoryConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Dir overrides the transcript directory (default ~/.rigrun-stream/history)
	Dir string `toml:"dir,omitempty" json:"dir,omitempty"`
	// MaxTranscripts caps stored transcripts; 0 means unlimited
	MaxTranscripts int `toml:"max_transcripts" json:"max_transcripts"`
}

// UsageConfig contains usage ledger settings.
type UsageConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Dir overrides the ledger directory (default ~/.rigrun-stream/usage)
	Dir string `toml:"dir,omitempty" json:"dir,omitempty"`
	// RetentionDays prunes older sessions; 0 keeps everything
	RetentionDays int `toml:"retention_days" json:"retention_days"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

const (
	// DefaultEndpoint is the chat completions URL.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	// DefaultRequestTimeoutSecs matches the session default.
	DefaultRequestTimeoutSecs = 60
	// MaxRequestTimeoutSecs is the largest accepted timeout.
	MaxRequestTimeoutSecs = 3600
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		API: APIConfig{
			Endpoint:           DefaultEndpoint,
			RequestTimeoutSecs: DefaultRequestTimeoutSecs,
		},
		Chat: ChatConfig{
			Model: chat.DefaultModel,
		},
		UI: UIConfig{
			Markdown:  false,
			ShowStats: true,
			Color:     "auto",
		},
		History: HistoryConfig{
			Enabled:        true,
			MaxTranscripts: 500,
		},
		Usage: UsageConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-stream"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: Config files may hold the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
//
// When a file exists but cannot be decoded, Load still returns a usable
// default config together with the error.
func Load() (*Config, error) {
	var loadErr error

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err != nil {
			loadErr = err
			break
		}
		return cfg, nil
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %v\n", path, undecoded)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Values missing from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills in values a file may have blanked.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if strings.TrimSpace(c.API.Endpoint) == "" {
		c.API.Endpoint = defaults.API.Endpoint
	}
	if c.API.RequestTimeoutSecs == 0 {
		c.API.RequestTimeoutSecs = defaults.API.RequestTimeoutSecs
	}
	if strings.TrimSpace(c.Chat.Model) == "" {
		c.Chat.Model = defaults.Chat.Model
	}
	if c.UI.Color == "" {
		c.UI.Color = defaults.UI.Color
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Written with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigrun-stream configuration file\n")
	buf.WriteString("# Unset [chat] parameters use the service default.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if err := offline.ValidateEndpoint(c.API.Endpoint, c.API.Offline); err != nil {
		add("api.endpoint", "%v", err)
	}
	if c.API.RequestTimeoutSecs < 1 || c.API.RequestTimeoutSecs > MaxRequestTimeoutSecs {
		add("api.request_timeout_secs", "must be between 1 and %d, got %d", MaxRequestTimeoutSecs, c.API.RequestTimeoutSecs)
	}

	// Chat
	if strings.TrimSpace(c.Chat.Model) == "" {
		add("chat.model", "must not be empty")
	}
	checkFloat := func(field string, v *float64, lo, hi float64) {
		if v != nil && (*v < lo || *v > hi) {
			add(field, "must be between %g and %g, got %g", lo, hi, *v)
		}
	}
	checkFloat("chat.temperature", c.Chat.Temperature, 0, 2)
	checkFloat("chat.top_p", c.Chat.TopP, 0, 1)
	checkFloat("chat.frequency_penalty", c.Chat.FrequencyPenalty, -2, 2)
	checkFloat("chat.presence_penalty", c.Chat.PresencePenalty, -2, 2)
	if c.Chat.N != nil && *c.Chat.N < 1 {
		add("chat.n", "must be at least 1, got %d", *c.Chat.N)
	}
	if c.Chat.MaxTokens != nil && *c.Chat.MaxTokens < 1 {
		add("chat.max_tokens", "must be at least 1, got %d", *c.Chat.MaxTokens)
	}
	if c.Chat.Logprobs != nil && (*c.Chat.Logprobs < 0 || *c.Chat.Logprobs > 20) {
		add("chat.logprobs", "must be between 0 and 20, got %d", *c.Chat.Logprobs)
	}
	switch chat.FormatType(c.Chat.ResponseFormat) {
	case "", chat.FormatText, chat.FormatJSONObject:
	default:
		add("chat.response_format", "must be %q or %q, got %q", chat.FormatText, chat.FormatJSONObject, c.Chat.ResponseFormat)
	}
	if len(c.Chat.Stop) > 4 {
		add("chat.stop", "at most 4 stop sequences, got %d", len(c.Chat.Stop))
	}

	// UI
	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		add("ui.color", "must be auto, always or never, got %q", c.UI.Color)
	}

	// History
	if c.History.MaxTranscripts < 0 {
		add("history.max_transcripts", "must not be negative, got %d", c.History.MaxTranscripts)
	}
	if c.Usage.RetentionDays < 0 {
		add("usage.retention_days", "must not be negative, got %d", c.Usage.RetentionDays)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OPENAI_API_KEY: overrides api.key
//   - RIGRUN_STREAM_API_KEY: overrides api.key, wins over OPENAI_API_KEY
//   - RIGRUN_STREAM_MODEL: overrides chat.model
//   - RIGRUN_STREAM_ENDPOINT: overrides api.endpoint
//   - RIGRUN_STREAM_TIMEOUT: overrides api.request_timeout_secs (seconds or a duration like "90s")
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.API.Key = key
	}
	if key := os.Getenv("RIGRUN_STREAM_API_KEY"); key != "" {
		c.API.Key = key
	}
	if model := os.Getenv("RIGRUN_STREAM_MODEL"); model != "" {
		c.Chat.Model = model
	}
	if endpoint := os.Getenv("RIGRUN_STREAM_ENDPOINT"); endpoint != "" {
		c.API.Endpoint = endpoint
	}
	if v := os.Getenv("RIGRUN_STREAM_OFFLINE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.API.Offline = b
		} else {
			fmt.Fprintf(os.Stderr, "Warning: ignoring RIGRUN_STREAM_OFFLINE: %v\n", err)
		}
	}
	if timeout := os.Getenv("RIGRUN_STREAM_TIMEOUT"); timeout != "" {
		if secs, err := parseTimeoutSecs(timeout); err == nil {
			c.API.RequestTimeoutSecs = secs
		} else {
			fmt.Fprintf(os.Stderr, "Warning: ignoring RIGRUN_STREAM_TIMEOUT: %v\n", err)
		}
	}
}

// parseTimeoutSecs accepts whole seconds or a Go duration string.
func parseTimeoutSecs(s string) (int, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return secs, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	return int(d.Round(time.Second) / time.Second), nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// RequestTimeout returns the request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSecs) * time.Second
}

// HistoryDir returns the transcript directory.
func (c *Config) HistoryDir() (string, error) {
	if c.History.Dir != "" {
		return c.History.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history"), nil
}

// UsageDir returns the usage ledger directory.
func (c *Config) UsageDir() (string, error) {
	if c.Usage.Dir != "" {
		return c.Usage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "usage"), nil
}

// BenchmarkDir returns the directory for saved benchmark results.
func BenchmarkDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "benchmarks"), nil
}

// Configuration converts the [chat] section into a request configuration.
func (c ChatConfig) Configuration() chat.Configuration {
	cfg := chat.DefaultConfiguration().WithModel(c.Model)
	if c.Temperature != nil {
		cfg = cfg.WithTemperature(*c.Temperature)
	}
	if c.N != nil {
		cfg = cfg.WithN(*c.N)
	}
	if c.MaxTokens != nil {
		cfg = cfg.WithMaxTokens(*c.MaxTokens)
	}
	if c.TopP != nil {
		cfg = cfg.WithTopP(*c.TopP)
	}
	if c.FrequencyPenalty != nil {
		cfg = cfg.WithFrequencyPenalty(*c.FrequencyPenalty)
	}
	if c.PresencePenalty != nil {
		cfg = cfg.WithPresencePenalty(*c.PresencePenalty)
	}
	if c.Logprobs != nil {
		cfg = cfg.WithLogprobs(*c.Logprobs)
	}
	if c.ResponseFormat != "" {
		cfg = cfg.WithResponseFormat(chat.ResponseFormat{Type: chat.FormatType(c.ResponseFormat)})
	}
	if len(c.Stop) > 0 {
		cfg = cfg.WithStop(c.Stop...)
	}
	return cfg
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Chat.Temperature = clonePtr(c.Chat.Temperature)
	clone.Chat.N = clonePtr(c.Chat.N)
	clone.Chat.MaxTokens = clonePtr(c.Chat.MaxTokens)
	clone.Chat.TopP = clonePtr(c.Chat.TopP)
	clone.Chat.FrequencyPenalty = clonePtr(c.Chat.FrequencyPenalty)
	clone.Chat.PresencePenalty = clonePtr(c.Chat.PresencePenalty)
	clone.Chat.Logprobs = clonePtr(c.Chat.Logprobs)
	if c.Chat.Stop != nil {
		clone.Chat.Stop = append([]string(nil), c.Chat.Stop...)
	}
	return &clone
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// String returns the config as TOML for display.
// SECURITY: The API key is redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.API.Key != "" {
		safe.API.Key = "[REDACTED]"
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return buf.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
