// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// MENTION TYPES
// =============================================================================

// MentionType indicates the type of @ mention.
type MentionType int

const (
	MentionFile      MentionType = iota // @file:path
	MentionGit                          // @git or @git:range
	MentionLastError                    // @error
)

// String returns the string representation of the mention type.
func (t MentionType) String() string {
	switch t {
	case MentionFile:
		return "file"
	case MentionGit:
		return "git"
	case MentionLastError:
		return "error"
	default:
		return "unknown"
	}
}

// Mention represents a parsed @ mention in user input.
type Mention struct {
	Type MentionType

	// Raw is the original text (e.g., "@file:src/main.go")
	Raw string

	// Path for file mentions, Range for git mentions
	Path  string
	Range string

	// Content and Error are set once fetched
	Content string
	Error   error

	// Start and End are byte offsets in the original input
	Start int
	End   int
}

// IsResolved returns true if the mention has been fetched.
func (m *Mention) IsResolved() bool {
	return m.Content != "" || m.Error != nil
}

// =============================================================================
// PARSER
// =============================================================================

var (
	// @file:path, @file:"path with spaces" or @file:'path'
	filePattern = regexp.MustCompile(`@file:(?:"([^"]+)"|'([^']+)'|(\S+))`)

	// @git or @git:range
	gitPattern = regexp.MustCompile(`@git(?::(\S+))?\b`)

	errorPattern = regexp.MustCompile(`@error\b`)
)

// span is a byte range of the input.
type span struct {
	start, end int
}

// Parse extracts the @ mentions of input in order of appearance and returns
// them with the remaining text.
func Parse(input string) ([]Mention, string) {
	var mentions []Mention

	for _, match := range filePattern.FindAllStringSubmatchIndex(input, -1) {
		var path string
		for i := 2; i+1 < len(match); i += 2 {
			if match[i] != -1 {
				path = input[match[i]:match[i+1]]
				break
			}
		}
		mentions = append(mentions, Mention{
			Type:  MentionFile,
			Raw:   input[match[0]:match[1]],
			Path:  path,
			Start: match[0],
			End:   match[1],
		})
	}

	for _, match := range gitPattern.FindAllStringSubmatchIndex(input, -1) {
		m := Mention{
			Type:  MentionGit,
			Raw:   input[match[0]:match[1]],
			Start: match[0],
			End:   match[1],
		}
		if match[2] != -1 {
			m.Range = input[match[2]:match[3]]
		}
		mentions = append(mentions, m)
	}

	for _, match := range errorPattern.FindAllStringIndex(input, -1) {
		mentions = append(mentions, Mention{
			Type:  MentionLastError,
			Raw:   input[match[0]:match[1]],
			Start: match[0],
			End:   match[1],
		})
	}

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].Start < mentions[j].Start
	})
	return mentions, removeMentions(input, mentions)
}

// HasMentions returns true if the input contains any @ mention prefix.
func HasMentions(input string) bool {
	return strings.Contains(input, "@file:") ||
		strings.Contains(input, "@git") ||
		strings.Contains(input, "@error")
}

// removeMentions cuts the mentions out of input and collapses the spaces
// left behind. Line breaks are kept.
func removeMentions(input string, mentions []Mention) string {
	if len(mentions) == 0 {
		return input
	}

	var sb strings.Builder
	last := 0
	for _, m := range mentions {
		if m.Start < last {
			continue
		}
		sb.WriteString(input[last:m.Start])
		last = m.End
	}
	sb.WriteString(input[last:])

	lines := strings.Split(sb.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
