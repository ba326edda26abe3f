// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrFileNotFound is returned when a file doesn't exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileTooLarge is returned when a file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNotGitRepo is returned when not in a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrNoError is returned when there's no stored error.
	ErrNoError = errors.New("no recent error stored")
)

// gitTimeout bounds each git invocation when the caller sets no deadline.
const gitTimeout = 5 * time.Second

// =============================================================================
// FETCHER CONFIG
// =============================================================================

// FetcherConfig holds configuration for context fetchers.
type FetcherConfig struct {
	// MaxFileSize is the maximum file size to read (default: 100KB)
	MaxFileSize int64

	// MaxLines is the maximum number of lines to include (default: 1000)
	MaxLines int

	// WorkingDirectory is the base directory for relative paths and git
	WorkingDirectory string

	// GitCommitCount is the number of commits to show for a bare @git
	GitCommitCount int
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() *FetcherConfig {
	wd, _ := os.Getwd()
	return &FetcherConfig{
		MaxFileSize:      100 * 1024,
		MaxLines:         1000,
		WorkingDirectory: wd,
		GitCommitCount:   10,
	}
}

// =============================================================================
// FETCHER
// =============================================================================

// Fetcher resolves mentions into content. It is safe for concurrent use.
type Fetcher struct {
	config *FetcherConfig

	mu        sync.Mutex
	lastError string
}

// NewFetcher creates a new fetcher with the given config.
func NewFetcher(config *FetcherConfig) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Fetcher{config: config}
}

// Fetch fills in the content or error of a single mention.
func (f *Fetcher) Fetch(ctx context.Context, m *Mention) {
	switch m.Type {
	case MentionFile:
		m.Content, m.Error = f.FetchFile(m.Path)
	case MentionGit:
		m.Content, m.Error = f.FetchGit(ctx, m.Range)
	case MentionLastError:
		m.Content, m.Error = f.FetchError()
	default:
		m.Error = fmt.Errorf("unsupported mention %q", m.Raw)
	}
}

// =============================================================================
// FILE FETCHER
// =============================================================================

// FetchFile reads a file and returns it with line numbers.
func (f *Fetcher) FetchFile(path string) (string, error) {
	if path == "" {
		return "", ErrFileNotFound
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.config.WorkingDirectory, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileNotFound
		}
		return "", err
	}
	if info.IsDir() {
		return "", errors.New("path is a directory")
	}
	if info.Size() > f.config.MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), f.config.MaxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	if f.config.MaxLines > 0 && len(lines) > f.config.MaxLines {
		lines = append(lines[:f.config.MaxLines], "... (truncated)")
	}
	return formatWithLineNumbers(lines), nil
}

// formatWithLineNumbers prefixes each line with a right-aligned number.
func formatWithLineNumbers(lines []string) string {
	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%4d| %s\n", i+1, line)
	}
	return sb.String()
}

// =============================================================================
// GIT FETCHER
// =============================================================================

// FetchGit returns recent commits, status and a diff summary. A range such
// as "HEAD~3..HEAD" replaces the default commit count.
func (f *Fetcher) FetchGit(ctx context.Context, gitRange string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gitTimeout)
		defer cancel()
	}

	// SECURITY: A range starting with '-' would be read as a git option
	if strings.HasPrefix(gitRange, "-") {
		return "", fmt.Errorf("invalid git range %q", gitRange)
	}

	if _, err := f.git(ctx, "rev-parse", "--git-dir"); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrNotGitRepo
	}

	logArgs := []string{"log", "--oneline"}
	if gitRange != "" {
		logArgs = append(logArgs, gitRange)
	} else {
		logArgs = append(logArgs, "-n", strconv.Itoa(f.config.GitCommitCount))
	}

	sections := []struct {
		title string
		args  []string
	}{
		{"Recent Commits", logArgs},
		{"Status", []string{"status", "--short"}},
		{"Changes", []string{"diff", "--stat"}},
	}

	var sb strings.Builder
	for _, s := range sections {
		out, err := f.git(ctx, s.args...)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if out == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(s.title + ":\n")
		sb.WriteString(out)
		sb.WriteString("\n")
	}

	if sb.Len() == 0 {
		return "No git information available", nil
	}
	return sb.String(), nil
}

// git runs one git command in the working directory.
func (f *Fetcher) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = f.config.WorkingDirectory
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// =============================================================================
// ERROR FETCHER
// =============================================================================

// FetchError returns the last stored error.
func (f *Fetcher) FetchError() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastError == "" {
		return "", ErrNoError
	}
	return f.lastError, nil
}

// StoreError stores an error message for @error retrieval.
func (f *Fetcher) StoreError(msg string) {
	f.mu.Lock()
	f.lastError = msg
	f.mu.Unlock()
}

// ClearError clears the stored error.
func (f *Fetcher) ClearError() {
	f.StoreError("")
}
