// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"context"
	"strings"
)

// =============================================================================
// EXPANDER
// =============================================================================

// Expander turns @ mentions into a context block ahead of the message.
type Expander struct {
	fetcher *Fetcher
}

// NewExpander creates an expander. A nil fetcher uses DefaultConfig.
func NewExpander(fetcher *Fetcher) *Expander {
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	return &Expander{fetcher: fetcher}
}

// Fetcher returns the fetcher, for storing the last error.
func (e *Expander) Fetcher() *Fetcher {
	return e.fetcher
}

// ExpansionResult contains the result of expanding a message.
type ExpansionResult struct {
	// OriginalMessage is the message as typed
	OriginalMessage string

	// ExpandedMessage is the message with context prepended
	ExpandedMessage string

	// CleanMessage is the message with mentions removed
	CleanMessage string

	Mentions []Mention
}

// HasErrors returns true if any mention failed to resolve.
func (r *ExpansionResult) HasErrors() bool {
	for _, m := range r.Mentions {
		if m.Error != nil {
			return true
		}
	}
	return false
}

// ErrorSummary returns "raw: error" pairs joined by "; ".
func (r *ExpansionResult) ErrorSummary() string {
	var parts []string
	for _, m := range r.Mentions {
		if m.Error != nil {
			parts = append(parts, m.Raw+": "+m.Error.Error())
		}
	}
	return strings.Join(parts, "; ")
}

// Expand resolves every mention in message. Without mentions the message is
// returned unchanged.
func (e *Expander) Expand(ctx context.Context, message string) *ExpansionResult {
	result := &ExpansionResult{OriginalMessage: message, ExpandedMessage: message, CleanMessage: message}
	if !HasMentions(message) {
		return result
	}

	mentions, clean := Parse(message)
	if len(mentions) == 0 {
		return result
	}
	for i := range mentions {
		e.fetcher.Fetch(ctx, &mentions[i])
	}

	result.Mentions = mentions
	result.CleanMessage = clean
	result.ExpandedMessage = buildExpandedMessage(mentions, clean)
	return result
}

// buildExpandedMessage wraps the fetched content in <context> tags followed
// by the user message.
func buildExpandedMessage(mentions []Mention, userMessage string) string {
	var sb strings.Builder
	for _, m := range mentions {
		if m.Content == "" {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("<context>\n")
		}
		sb.WriteString("\n<")
		sb.WriteString(m.Type.String())
		if m.Type == MentionFile {
			sb.WriteString(` path="` + m.Path + `"`)
		}
		if m.Type == MentionGit && m.Range != "" {
			sb.WriteString(` range="` + m.Range + `"`)
		}
		sb.WriteString(">\n")
		sb.WriteString(strings.TrimSuffix(m.Content, "\n"))
		sb.WriteString("\n</")
		sb.WriteString(m.Type.String())
		sb.WriteString(">\n")
	}
	if sb.Len() > 0 {
		sb.WriteString("\n</context>\n\n")
	}
	sb.WriteString(userMessage)
	return sb.String()
}
