// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// UNICODE: Width-aware truncation never splits a rune and counts CJK and
// emoji as two columns.

const ellipsis = "..."

// TruncateWidth cuts s to at most maxWidth terminal columns, ending with an
// ellipsis when anything was removed.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, ellipsis)
}

// TailWidth returns the longest suffix of s that fits in maxWidth columns,
// prefixed with an ellipsis when anything was removed.
func TailWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	budget := maxWidth - runewidth.StringWidth(ellipsis)
	runes := []rune(s)
	width := 0
	start := len(runes)
	for start > 0 {
		w := runewidth.RuneWidth(runes[start-1])
		if width+w > budget {
			break
		}
		width += w
		start--
	}
	return ellipsis + string(runes[start:])
}

// StringWidth returns the display width of s.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// OneLine collapses every run of whitespace, newlines included, to a single
// space and trims the ends.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
