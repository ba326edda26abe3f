// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import "strings"

// =============================================================================
// COMPLETION CHUNK
// =============================================================================

// CompletionChunk is one decoded fragment of a streamed chat completion.
type CompletionChunk struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	SystemFingerprint *string  `json:"system_fingerprint,omitempty"`
	Choices           []Choice `json:"choices"`
}

// Choice is the per-choice delta carried by a chunk.
type Choice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Delta is the incremental content of a choice.
type Delta struct {
	Content *string `json:"content,omitempty"`
}

// Content returns the incremental text of the first choice, or "".
func (c *CompletionChunk) Content() string {
	if len(c.Choices) > 0 && c.Choices[0].Delta.Content != nil {
		return *c.Choices[0].Delta.Content
	}
	return ""
}

// FinishReason returns the finish reason of the first choice, or "".
func (c *CompletionChunk) FinishReason() string {
	if len(c.Choices) > 0 && c.Choices[0].FinishReason != nil {
		return *c.Choices[0].FinishReason
	}
	return ""
}

// Done returns true if the first choice carries a finish reason.
func (c *CompletionChunk) Done() bool {
	return c.FinishReason() != ""
}

// Text concatenates the first-choice content of chunks in order.
func Text(chunks []CompletionChunk) string {
	var b strings.Builder
	for i := range chunks {
		b.WriteString(chunks[i].Content())
	}
	return b.String()
}

// ChoiceText concatenates the content of the choice with the given index,
// for requests made with n > 1.
func ChoiceText(chunks []CompletionChunk, index int) string {
	var b strings.Builder
	for i := range chunks {
		for _, ch := range chunks[i].Choices {
			if ch.Index == index && ch.Delta.Content != nil {
				b.WriteString(*ch.Delta.Content)
			}
		}
	}
	return b.String()
}
