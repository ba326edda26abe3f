// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/storage"
)

func testTranscript() *storage.Transcript {
	created := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return &storage.Transcript{
		ID:        "3f2a6c1e-8b4d-4e0f-9a7b-2c5d8e1f4a6b",
		Title:     "Sorting in Go",
		Model:     "gpt-4o-mini",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
		Entries: []storage.Entry{
			{Role: chat.RoleUser, Content: "How do I sort a slice?", Timestamp: created},
			{
				Role:         chat.RoleAssistant,
				Content:      "Use `slices.Sort`:\n\n```go\nslices.Sort(xs)\n```",
				Timestamp:    created.Add(2 * time.Second),
				TokenCount:   12,
				DurationMs:   1500,
				TTFTMs:       200,
				TokensPerSec: 8,
				FinishReason: "stop",
			},
		},
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{"", ".md", false},
		{"md", ".md", false},
		{"Markdown", ".md", false},
		{"json", ".json", false},
		{"htm", ".html", false},
		{"HTML", ".html", false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		exp, err := ForFormat(tt.format, nil)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("ForFormat(%q) error = %v, want ErrUnsupportedFormat", tt.format, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ForFormat(%q) error = %v", tt.format, err)
			continue
		}
		if exp.FileExtension() != tt.wantExt {
			t.Errorf("ForFormat(%q) extension = %q, want %q", tt.format, exp.FileExtension(), tt.wantExt)
		}
	}
}

func TestForPath(t *testing.T) {
	tests := map[string]string{
		"chat.json": "application/json",
		"chat.HTML": "text/html",
		"chat.md":   "text/markdown",
		"chat":      "text/markdown",
		"notes.txt": "text/markdown",
	}
	for path, want := range tests {
		if got := ForPath(path, nil).MimeType(); got != want {
			t.Errorf("ForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(testTranscript())
	if err != nil {
		t.Fatal(err)
	}
	md := string(out)

	for _, want := range []string{
		"---\ntitle: Sorting in Go\n",
		"model: gpt-4o-mini\n",
		"messages: 2\n",
		"tokens: 12\n",
		"# Sorting in Go",
		"### [User] <sub>09:26:53</sub>",
		"### [Assistant]",
		"```go\nslices.Sort(xs)\n```",
		"Tokens: 12 | Duration: 1.50s | TTFT: 200ms | Speed: 8.0 tok/s | Finish: stop",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdownExport_NoMetadata(t *testing.T) {
	opts := &Options{}
	out, err := NewMarkdownExporter(opts).Export(testTranscript())
	if err != nil {
		t.Fatal(err)
	}
	md := string(out)
	if strings.HasPrefix(md, "---") || strings.Contains(md, "Tokens:") || strings.Contains(md, "<sub>") {
		t.Errorf("metadata present with options disabled:\n%s", md)
	}
}

func TestMarkdownExport_StreamError(t *testing.T) {
	tr := testTranscript()
	tr.Entries[1].Error = "idle timeout"
	out, err := NewMarkdownExporter(nil).Export(tr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "> **Stream error:** idle timeout") {
		t.Errorf("stream error not recorded:\n%s", out)
	}
}

// TestYAMLNewlineInjection checks titles cannot add frontmatter keys.
func TestYAMLNewlineInjection(t *testing.T) {
	tr := testTranscript()
	tr.Title = "Test\nInjection: malicious"

	out, err := NewMarkdownExporter(nil).Export(tr)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "\nInjection: malicious") {
		t.Error("newline in title injected a YAML key")
	}
	if !strings.Contains(string(out), `title: "Test\nInjection: malicious"`) {
		t.Errorf("title not quoted:\n%s", out)
	}
}

func TestExport_EmptyTranscript(t *testing.T) {
	for _, exp := range []Exporter{NewMarkdownExporter(nil), NewHTMLExporter(nil)} {
		if _, err := exp.Export(&storage.Transcript{Title: "empty"}); !errors.Is(err, ErrEmptyTranscript) {
			t.Errorf("%T error = %v, want ErrEmptyTranscript", exp, err)
		}
		if _, err := exp.Export(nil); err == nil {
			t.Errorf("%T accepted nil transcript", exp)
		}
	}
}

func TestJSONExport(t *testing.T) {
	tr := testTranscript()
	out, err := NewJSONExporter(nil).Export(tr)
	if err != nil {
		t.Fatal(err)
	}

	var decoded storage.Transcript
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.ID != tr.ID || len(decoded.Entries) != 2 || decoded.Entries[1].TokenCount != 12 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestHTMLExport(t *testing.T) {
	out, err := NewHTMLExporter(nil).Export(testTranscript())
	if err != nil {
		t.Fatal(err)
	}
	page := string(out)

	for _, want := range []string{
		"<title>Sorting in Go</title>",
		`<body class="dark-theme">`,
		`<div class="message user-message">`,
		"<code>slices.Sort</code>",
		`<code class="language-go">`,
		`<span class="stat">Tokens: 12</span>`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestHTMLExport_LightTheme(t *testing.T) {
	out, err := NewHTMLExporter(&Options{Theme: "light"}).Export(testTranscript())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `<body class="light-theme">`) {
		t.Error("light theme not applied")
	}
}

// TestHTMLExport_SanitizesContent checks model output cannot inject markup.
func TestHTMLExport_SanitizesContent(t *testing.T) {
	tr := testTranscript()
	tr.Title = "<b>title</b>"
	tr.Entries[1].Content = "<script>alert(1)</script>\n\n<img src=x onerror=alert(2)>\n\n```<script>alert(3)</script>\ncode here\n```"

	out, err := NewHTMLExporter(nil).Export(tr)
	if err != nil {
		t.Fatal(err)
	}
	page := string(out)

	if strings.Contains(page, "alert(") {
		t.Errorf("script content survived sanitizing:\n%s", page)
	}
	if strings.Count(page, "<script>") != 1 {
		t.Error("only the theme script may appear")
	}
	if strings.Contains(page, "<b>title</b>") || !strings.Contains(page, "&lt;b&gt;title&lt;/b&gt;") {
		t.Error("title not escaped")
	}
	if !strings.Contains(page, "code here") {
		t.Error("code block content lost")
	}
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	tr := testTranscript()

	for _, name := range []string{"out.md", "out.json", "sub/out.html"} {
		path := filepath.Join(dir, name)
		if err := ToFile(tr, path, nil); err != nil {
			t.Fatalf("ToFile(%s): %v", name, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "Sorting in Go") {
			t.Errorf("%s missing title", name)
		}
	}

	if err := ToFile(&storage.Transcript{}, filepath.Join(dir, "empty.md"), nil); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("empty transcript error = %v", err)
	}
}

func TestFileName(t *testing.T) {
	tr := testTranscript()
	tr.Title = "a/b: c?"
	name := FileName(tr, NewHTMLExporter(nil))
	if !strings.HasPrefix(name, "transcript_a-b-_c-_") || !strings.HasSuffix(name, ".html") {
		t.Errorf("FileName = %q", name)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello world", "hello_world"},
		{"../../etc/passwd", "------etc-passwd"},
		{"line\nbreak", "line_break"},
		{"", "transcript"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{250, "250ms"},
		{1500, "1.50s"},
		{125000, "2m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.ms); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
