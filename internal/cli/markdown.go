// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// maxRenderWidth caps word wrap on wide terminals.
const maxRenderWidth = 100

var (
	rendererOnce     sync.Once
	markdownRenderer *glamour.TermRenderer
)

// getRenderer builds the glamour renderer on first use, sized to the
// terminal. Returns nil if glamour cannot be initialized.
func getRenderer() *glamour.TermRenderer {
	rendererOnce.Do(func() {
		width := GetTerminalWidth()
		if width > maxRenderWidth {
			width = maxRenderWidth
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	return markdownRenderer
}

// renderMarkdown renders content for terminal display. The original
// content is returned if rendering fails.
func renderMarkdown(content string) string {
	r := getRenderer()
	if r == nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// useMarkdown reports whether answers should be buffered and rendered.
// Piped output is never rendered.
func useMarkdown(enabled bool) bool {
	return enabled && IsStdoutTTY()
}
