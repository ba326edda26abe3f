// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-stream/internal/chat"
)

// clearEnv unsets every variable ApplyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "RIGRUN_STREAM_API_KEY", "RIGRUN_STREAM_MODEL", "RIGRUN_STREAM_ENDPOINT", "RIGRUN_STREAM_TIMEOUT", "RIGRUN_STREAM_OFFLINE"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, chat.DefaultModel, cfg.Chat.Model)
	assert.Equal(t, DefaultEndpoint, cfg.API.Endpoint)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
}

func TestLoadFromPath_TOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[api]
key = "sk-file"
request_timeout_secs = 30

[chat]
model = "gpt-4o"
temperature = 0.3
max_tokens = 256
response_format = "json_object"
stop = ["END"]

[ui]
markdown = true

[history]
enabled = false
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.API.Key)
	assert.Equal(t, DefaultEndpoint, cfg.API.Endpoint, "missing keys keep defaults")
	assert.Equal(t, 30, cfg.API.RequestTimeoutSecs)
	assert.Equal(t, "gpt-4o", cfg.Chat.Model)
	require.NotNil(t, cfg.Chat.Temperature)
	assert.Equal(t, 0.3, *cfg.Chat.Temperature)
	assert.Nil(t, cfg.Chat.TopP)
	assert.True(t, cfg.UI.Markdown)
	assert.True(t, cfg.UI.ShowStats)
	assert.False(t, cfg.History.Enabled)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"chat":{"model":"gpt-4o-mini","n":2},"ui":{"color":"never"}}`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Chat.Model)
	require.NotNil(t, cfg.Chat.N)
	assert.Equal(t, 2, *cfg.Chat.N)
	assert.Equal(t, "never", cfg.UI.Color)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[chat]
temperature = 3.5
top_p = -1.0
response_format = "xml"
`)

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, v := range verrs {
		fields = append(fields, v.Field)
	}
	assert.ElementsMatch(t, []string{"chat.temperature", "chat.top_p", "chat.response_format"}, fields)
}

func TestLoadFromPath_Malformed(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "[api\nkey=")
	_, err := LoadFromPath(path)
	assert.Error(t, err)
}

func TestLoad_UsesHomeDirectory(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultModel, cfg.Chat.Model)

	dir := filepath.Join(home, ".rigrun-stream")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[chat]\nmodel = \"from-file\"\n"), 0600))

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Chat.Model)
}

func TestLoad_BrokenFileFallsBackToDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	dir := filepath.Join(home, ".rigrun-stream")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not = [valid"), 0600))

	cfg, err := Load()
	assert.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, chat.DefaultModel, cfg.Chat.Model)
}

// =============================================================================
// ENVIRONMENT TESTS
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("RIGRUN_STREAM_MODEL", "gpt-4.1")
	t.Setenv("RIGRUN_STREAM_ENDPOINT", "http://localhost:8080/v1/chat/completions")
	t.Setenv("RIGRUN_STREAM_TIMEOUT", "2m")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "sk-openai", cfg.API.Key)
	assert.Equal(t, "gpt-4.1", cfg.Chat.Model)
	assert.Equal(t, "http://localhost:8080/v1/chat/completions", cfg.API.Endpoint)
	assert.Equal(t, 120, cfg.API.RequestTimeoutSecs)

	t.Setenv("RIGRUN_STREAM_API_KEY", "sk-specific")
	t.Setenv("RIGRUN_STREAM_TIMEOUT", "45")
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "sk-specific", cfg.API.Key)
	assert.Equal(t, 45, cfg.API.RequestTimeoutSecs)
}

func TestApplyEnvOverrides_BadTimeoutIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIGRUN_STREAM_TIMEOUT", "soon")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, DefaultRequestTimeoutSecs, cfg.API.RequestTimeoutSecs)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.API.Endpoint = "ftp://example.com" }, "api.endpoint"},
		{"no host", func(c *Config) { c.API.Endpoint = "not a url" }, "api.endpoint"},
		{"remote offline", func(c *Config) { c.API.Offline = true }, "api.endpoint"},
		{"timeout zero", func(c *Config) { c.API.RequestTimeoutSecs = 0 }, "api.request_timeout_secs"},
		{"timeout huge", func(c *Config) { c.API.RequestTimeoutSecs = 99999 }, "api.request_timeout_secs"},
		{"blank model", func(c *Config) { c.Chat.Model = " " }, "chat.model"},
		{"penalty", func(c *Config) { c.Chat.PresencePenalty = f(2.5) }, "chat.presence_penalty"},
		{"n", func(c *Config) { c.Chat.N = i(0) }, "chat.n"},
		{"max tokens", func(c *Config) { c.Chat.MaxTokens = i(-1) }, "chat.max_tokens"},
		{"logprobs", func(c *Config) { c.Chat.Logprobs = i(21) }, "chat.logprobs"},
		{"stop", func(c *Config) { c.Chat.Stop = []string{"a", "b", "c", "d", "e"} }, "chat.stop"},
		{"color", func(c *Config) { c.UI.Color = "rainbow" }, "ui.color"},
		{"max transcripts", func(c *Config) { c.History.MaxTranscripts = -1 }, "history.max_transcripts"},
		{"usage retention", func(c *Config) { c.Usage.RetentionDays = -7 }, "usage.retention_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidateErrors_Error(t *testing.T) {
	assert.Equal(t, "no validation errors", ValidateErrors{}.Error())
	errs := ValidateErrors{{Field: "a", Message: "x"}, {Field: "b", Message: "y"}}
	assert.Equal(t, "a: x; b: y", errs.Error())
}

// =============================================================================
// CONVERSION TESTS
// =============================================================================

func TestChatConfig_Configuration(t *testing.T) {
	temp, maxTokens := 0.7, 100
	cc := ChatConfig{
		Model:          "gpt-4o",
		Temperature:    &temp,
		MaxTokens:      &maxTokens,
		ResponseFormat: "json_object",
		Stop:           []string{"###"},
	}

	cfg := cc.Configuration()
	assert.Equal(t, "gpt-4o", cfg.Model())
	v, ok := cfg.Temperature()
	assert.True(t, ok)
	assert.Equal(t, 0.7, v)
	n, ok := cfg.MaxTokens()
	assert.True(t, ok)
	assert.Equal(t, 100, n)
	_, ok = cfg.TopP()
	assert.False(t, ok)
	rf, ok := cfg.ResponseFormat()
	assert.True(t, ok)
	assert.Equal(t, chat.ResponseFormatJSON, rf)
	assert.Equal(t, []string{"###"}, cfg.Stop())

	// The conversion is a snapshot.
	temp = 1.9
	v, _ = cfg.Temperature()
	assert.Equal(t, 0.7, v)
}

func TestClone_IsDeep(t *testing.T) {
	temp := 0.5
	cfg := Default()
	cfg.Chat.Temperature = &temp
	cfg.Chat.Stop = []string{"x"}

	clone := cfg.Clone()
	*clone.Chat.Temperature = 1.5
	clone.Chat.Stop[0] = "y"

	assert.Equal(t, 0.5, *cfg.Chat.Temperature)
	assert.Equal(t, "x", cfg.Chat.Stop[0])
}

func TestString_RedactsKey(t *testing.T) {
	cfg := Default()
	cfg.API.Key = "sk-very-secret"
	out := cfg.String()
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "sk-very-secret", cfg.API.Key)
}

func TestHistoryDir(t *testing.T) {
	cfg := Default()
	cfg.History.Dir = "/tmp/transcripts"
	dir, err := cfg.HistoryDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/transcripts", dir)

	cfg.History.Dir = ""
	dir, err = cfg.HistoryDir()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dir, filepath.Join(".rigrun-stream", "history")))
}

func TestOffline(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.API.Offline = true
	cfg.API.Endpoint = "http://127.0.0.1:8080/v1/chat/completions"
	assert.NoError(t, cfg.Validate())

	t.Setenv("RIGRUN_STREAM_OFFLINE", "true")
	env := Default()
	env.ApplyEnvOverrides()
	assert.True(t, env.API.Offline)
	assert.Error(t, env.Validate(), "default endpoint is remote")

	t.Setenv("RIGRUN_STREAM_OFFLINE", "maybe")
	env = Default()
	env.ApplyEnvOverrides()
	assert.False(t, env.API.Offline)
}

func TestUsageDir(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Usage.Enabled)
	assert.Equal(t, 90, cfg.Usage.RetentionDays)

	dir, err := cfg.UsageDir()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dir, filepath.Join(".rigrun-stream", "usage")))

	cfg.Usage.Dir = "/tmp/usage"
	dir, err = cfg.UsageDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/usage", dir)

	dir, err = BenchmarkDir()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dir, filepath.Join(".rigrun-stream", "benchmarks")))
}

// =============================================================================
// SAVE TESTS
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	temp := 1.1
	cfg := Default()
	cfg.API.Key = "sk-saved"
	cfg.Chat.Model = "gpt-4o"
	cfg.Chat.Temperature = &temp
	cfg.UI.Markdown = true

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# rigrun-stream configuration file"))
	assert.NotContains(t, string(data), "top_p", "unset parameters are omitted")

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-saved", loaded.API.Key)
	assert.Equal(t, "gpt-4o", loaded.Chat.Model)
	require.NotNil(t, loaded.Chat.Temperature)
	assert.Equal(t, 1.1, *loaded.Chat.Temperature)
	assert.True(t, loaded.UI.Markdown)
}

// =============================================================================
// GLOBAL CONFIG TESTS
// =============================================================================

// TestConfig_ConcurrentAccess tests that Global(), SetGlobal(), and ReloadGlobal()
// can be safely called concurrently without race conditions.
// Run with: go test -race -v ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			c := Default()
			c.Chat.Model = "test-model"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
		go func() {
			defer wg.Done()
			_ = ReloadGlobal()
		}()
	}
	wg.Wait()
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "[chat]\nmodel = \"before\"\n")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			changes <- cfg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	updated := Default()
	updated.Chat.Model = "after"
	require.NoError(t, SaveTOML(updated, path))

	select {
	case cfg := <-changes:
		assert.Equal(t, "after", cfg.Chat.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", "[chat]\nmodel = \"m\"\n")

	changes := make(chan struct{}, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(*Config, error) { changes <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x"), 0600))

	select {
	case <-changes:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing", "config.toml"), 0, nil)
	assert.Error(t, err)
}
