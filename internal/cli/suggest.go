// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - Command suggestion for typo correction.
package cli

import (
	"strings"
)

// validCommands lists the command names and aliases accepted by Parse.
var validCommands = []string{
	"ask",
	"chat",
	"history",
	"config",
	"usage",
	"bench",
	"version",
	"help",
	// Aliases
	"a",         // ask
	"hist",      // history
	"benchmark", // bench
}

// SuggestCommand returns the command closest to a mistyped input, or "" when
// nothing is close. A swap of two adjacent letters counts as one edit, and
// an input of three or more letters that starts a command matches it.
// Ties go to the command listed first.
func SuggestCommand(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if len([]rune(input)) < 2 {
		return ""
	}
	for _, cmd := range validCommands {
		if cmd == input {
			return ""
		}
	}

	// One edit per three letters, at least one
	maxDistance := max(1, len([]rune(input))/3)

	best, bestDistance := "", maxDistance+1
	for _, cmd := range validCommands {
		d := editDistance(input, cmd)
		if len(input) >= 3 && strings.HasPrefix(cmd, input) {
			d = 1
		}
		if d < bestDistance {
			best, bestDistance = cmd, d
		}
	}
	return best
}

// editDistance returns the optimal string alignment distance between a and
// b: insertions, deletions, substitutions and adjacent transpositions.
func editDistance(a, b string) int {
	s, t := []rune(a), []rune(b)

	// d[i][j] is the distance between s[:i] and t[:j]
	d := make([][]int, len(s)+1)
	for i := range d {
		d[i] = make([]int, len(t)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}

	for i := 1; i <= len(s); i++ {
		for j := 1; j <= len(t); j++ {
			cost := 1
			if s[i-1] == t[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && s[i-1] == t[j-2] && s[i-2] == t[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[len(s)][len(t)]
}
