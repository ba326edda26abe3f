// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/jeranaias/rigrun-stream/internal/storage"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a standalone HTML page with embedded CSS
// and no scripts.
type HTMLExporter struct {
	options  *Options
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Theme != "light" {
		opts.Theme = "dark"
	}

	// SECURITY: Model output is untrusted. goldmark drops raw HTML and the
	// UGC policy strips anything that survives rendering.
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[a-zA-Z0-9_+-]+$`)).OnElements("code")

	return &HTMLExporter{
		options: opts,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		policy: policy,
	}
}

// Export converts a transcript to HTML format.
func (e *HTMLExporter) Export(t *storage.Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(t.Title)))
	sb.WriteString("    <meta name=\"generator\" content=\"rigrun-stream\">\n")
	if !t.CreatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", t.CreatedAt.Format(time.RFC3339)))
	}
	sb.WriteString(pageCSS)
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", e.options.Theme))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(t))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for i := range t.Entries {
		content, err := e.renderEntry(&t.Entries[i])
		if err != nil {
			return nil, err
		}
		sb.WriteString(content)
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("            <p>Exported from <strong>rigrun-stream</strong> on %s</p>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(t *storage.Transcript) string {
	var sb strings.Builder

	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(t.Title)))
	sb.WriteString("            <div class=\"metadata\">\n")
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Model:</strong> %s</span>\n", html.EscapeString(t.Model)))
	if !t.CreatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(t.CreatedAt)))
	}
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(t.Entries)))
	if n := totalTokens(t); n > 0 {
		sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Tokens:</strong> %d</span>\n", n))
	}
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")

	return sb.String()
}

func (e *HTMLExporter) renderEntry(entry *storage.Entry) (string, error) {
	var sb strings.Builder

	role := string(entry.Role)
	sb.WriteString(fmt.Sprintf("            <div class=\"message %s-message\">\n", html.EscapeString(strings.ToLower(role))))

	sb.WriteString("                <div class=\"message-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role-label\">%s</span>\n", html.EscapeString(roleLabel(role))))
	if e.options.IncludeTimestamps && !entry.Timestamp.IsZero() {
		sb.WriteString(fmt.Sprintf("                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(entry.Timestamp)))
	}
	sb.WriteString("                </div>\n")

	content, err := e.renderContent(entry.Content)
	if err != nil {
		return "", err
	}
	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(content)
	sb.WriteString("                </div>\n")

	if entry.Error != "" {
		sb.WriteString(fmt.Sprintf("                <p class=\"error\">[Stream error] %s</p>\n", html.EscapeString(entry.Error)))
	}
	if role == "assistant" && e.options.IncludeMetadata {
		if stats := entryStats(entry); len(stats) > 0 {
			sb.WriteString("                <div class=\"message-stats\">\n")
			for _, s := range stats {
				sb.WriteString(fmt.Sprintf("                    <span class=\"stat\">%s</span>\n", html.EscapeString(s)))
			}
			sb.WriteString("                </div>\n")
		}
	}

	sb.WriteString("            </div>\n")
	return sb.String(), nil
}

// renderContent converts Markdown content to sanitized HTML.
func (e *HTMLExporter) renderContent(content string) (string, error) {
	var buf bytes.Buffer
	if err := e.markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return string(e.policy.SanitizeBytes(buf.Bytes())), nil
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

// pageCSS styles the exported page. The body class picks the palette.
const pageCSS = `    <style>
        body { margin: 0; padding: 24px; font: 15px/1.6 system-ui, sans-serif; background: var(--page); color: var(--ink); }
        .dark-theme { --page: #16181d; --panel: #1f232b; --ink: #d8dee9; --dim: #7b8496; --rule: #313744; --user: #5e81ac; --bot: #a3be8c; --sys: #b48ead; --bad: #bf616a; }
        .light-theme { --page: #f4f5f7; --panel: #ffffff; --ink: #1f2328; --dim: #6e7781; --rule: #d0d7de; --user: #0969da; --bot: #1a7f37; --sys: #8250df; --bad: #cf222e; }
        .container { max-width: 860px; margin: 0 auto; background: var(--panel); border: 1px solid var(--rule); border-radius: 8px; }
        .header, .conversation, .footer { padding: 20px 28px; }
        .header { border-bottom: 1px solid var(--rule); }
        .header h1 { margin: 0 0 8px; font-size: 24px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 14px; color: var(--dim); font-size: 13px; }
        .message { margin: 0 0 18px; padding: 14px 18px; border-left: 3px solid var(--rule); }
        .user-message { border-left-color: var(--user); }
        .assistant-message { border-left-color: var(--bot); }
        .system-message { border-left-color: var(--sys); }
        .message-header { display: flex; justify-content: space-between; font-size: 13px; margin-bottom: 6px; }
        .role-label { font-weight: 600; }
        .timestamp, .message-stats, .footer { color: var(--dim); font-size: 13px; }
        .message-stats { display: flex; gap: 14px; margin-top: 8px; }
        .message-content pre { padding: 12px; overflow-x: auto; border: 1px solid var(--rule); border-radius: 6px; }
        .message-content code { font-family: ui-monospace, monospace; font-size: 13px; }
        .message-content td, .message-content th { border: 1px solid var(--rule); padding: 3px 8px; }
        .message-content table { border-collapse: collapse; }
        .footer { border-top: 1px solid var(--rule); text-align: center; }
        .error { color: var(--bad); }
        @media print { body { padding: 0; } .container { border: none; } .message { break-inside: avoid; } }
    </style>
`
