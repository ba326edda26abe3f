// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/storage"
	"github.com/jeranaias/rigrun-stream/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a transcript to a document format.
type Exporter interface {
	// Export converts a transcript to the target format and returns the content.
	Export(t *storage.Transcript) ([]byte, error)

	// FileExtension returns the file extension including the dot (e.g. ".md").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata includes the header block (model, dates, stats).
	IncludeMetadata bool

	// IncludeTimestamps includes per-entry timestamps.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	// Default: "dark"
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

// Supported format names.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatHTML     = "html"
)

var (
	// ErrUnsupportedFormat is returned for an unknown format name or extension.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrEmptyTranscript is returned when there is nothing to export.
	ErrEmptyTranscript = errors.New("transcript has no entries")
)

// =============================================================================
// EXPORTER SELECTION
// =============================================================================

// ForFormat returns the exporter for a format name. Accepts "markdown"/"md",
// "json" and "html"/"htm"; "" selects Markdown.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatMarkdown, "md":
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	case FormatHTML, "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (use markdown, json or html)", ErrUnsupportedFormat, format)
	}
}

// ForPath picks the exporter from a file extension. Files without a known
// extension are exported as Markdown.
func ForPath(path string, opts *Options) Exporter {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONExporter(opts)
	case ".html", ".htm":
		return NewHTMLExporter(opts)
	default:
		return NewMarkdownExporter(opts)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports t to path. A nil exporter selects one from the file
// extension with default options.
//
// NOTE: The whole document is built in memory before it is written.
func ToFile(t *storage.Transcript, path string, exporter Exporter) error {
	if exporter == nil {
		exporter = ForPath(path, nil)
	}
	content, err := exporter.Export(t)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	// RELIABILITY: Atomic write so a failed export never leaves half a file
	if err := util.WriteFileAtomic(path, content, 0600, 0700); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// FileName returns a default file name for exporting t.
func FileName(t *storage.Transcript, exporter Exporter) string {
	return fmt.Sprintf("transcript_%s_%s%s",
		sanitizeFilename(t.Title),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
}

// validate rejects transcripts the document exporters cannot render.
func validate(t *storage.Transcript) error {
	if t == nil {
		return errors.New("transcript is nil")
	}
	if len(t.Entries) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	// Limit length
	maxLen := 50
	runes := []rune(s)
	if len(runes) > maxLen {
		s = string(runes[:maxLen])
	}

	// Replace problematic characters (Windows and Unix)
	replacer := map[rune]rune{
		'/':  '-',
		'\\': '-',
		':':  '-',
		'*':  '-',
		'?':  '-',
		'"':  '-',
		'<':  '-',
		'>':  '-',
		'|':  '-',
		'.':  '-',
		' ':  '_',
		'\t': '_',
	}

	result := make([]rune, 0, len(s))
	for _, r := range s {
		if replacement, found := replacer[r]; found {
			result = append(result, replacement)
		} else if r < 32 || r == 127 {
			// Control characters, including newlines
			result = append(result, '_')
		} else {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "transcript"
	}
	return string(result)
}

// formatDuration formats a duration in milliseconds to a human-readable string.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	if seconds < 60 {
		return fmt.Sprintf("%.2fs", seconds)
	}
	minutes := int(seconds / 60)
	remainingSeconds := int(seconds) % 60
	return fmt.Sprintf("%dm %ds", minutes, remainingSeconds)
}

// formatTokensPerSec formats tokens per second for display.
func formatTokensPerSec(tps float64) string {
	if tps == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f tok/s", tps)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// roleLabel returns the display label for a role.
func roleLabel(role string) string {
	switch role {
	case "":
		return "Unknown"
	case "user":
		return "[User]"
	case "assistant":
		return "[Assistant]"
	case "system":
		return "[System]"
	default:
		runes := []rune(role)
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}

// entryStats returns the stat fragments for an assistant entry.
func entryStats(e *storage.Entry) []string {
	var parts []string
	if e.TokenCount > 0 {
		parts = append(parts, fmt.Sprintf("Tokens: %d", e.TokenCount))
	}
	if e.DurationMs > 0 {
		parts = append(parts, "Duration: "+formatDuration(e.DurationMs))
	}
	if e.TTFTMs > 0 {
		parts = append(parts, "TTFT: "+formatDuration(e.TTFTMs))
	}
	if e.TokensPerSec > 0 {
		parts = append(parts, "Speed: "+formatTokensPerSec(e.TokensPerSec))
	}
	if e.FinishReason != "" {
		parts = append(parts, "Finish: "+e.FinishReason)
	}
	return parts
}

// totalTokens sums the token counts of all entries.
func totalTokens(t *storage.Transcript) int {
	n := 0
	for _, e := range t.Entries {
		n += e.TokenCount
	}
	return n
}
