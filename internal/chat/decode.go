// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// CHUNK DECODER
// =============================================================================

// ErrMissingField is wrapped by Decoded.Err when a payload is valid JSON but
// lacks a field every chunk must carry.
var ErrMissingField = errors.New("missing required field")

// Decoded is the result of decoding one data payload: either a chunk, or
// skipped with the reason in Err.
type Decoded struct {
	Chunk CompletionChunk
	Err   error
}

// Skipped returns true if the payload produced no chunk.
func (d Decoded) Skipped() bool {
	return d.Err != nil
}

// wireChunk mirrors CompletionChunk with pointers on required fields so a
// missing field can be told apart from a zero value.
type wireChunk struct {
	ID                *string      `json:"id"`
	Object            *string      `json:"object"`
	Created           *int64       `json:"created"`
	Model             *string      `json:"model"`
	SystemFingerprint *string      `json:"system_fingerprint"`
	Choices           []wireChoice `json:"choices"`
}

type wireChoice struct {
	Index        *int    `json:"index"`
	Delta        *Delta  `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Decode parses a data payload into a CompletionChunk. Malformed JSON and
// payloads missing required fields are reported as skipped; the caller drops
// them and carries on with the stream.
func Decode(payload string) Decoded {
	var w wireChunk
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return Decoded{Err: fmt.Errorf("decode chunk: %w", err)}
	}

	switch {
	case w.ID == nil:
		return missing("id")
	case w.Object == nil:
		return missing("object")
	case w.Created == nil:
		return missing("created")
	case w.Model == nil:
		return missing("model")
	case w.Choices == nil:
		return missing("choices")
	}

	chunk := CompletionChunk{
		ID:                *w.ID,
		Object:            *w.Object,
		Created:           *w.Created,
		Model:             *w.Model,
		SystemFingerprint: w.SystemFingerprint,
		Choices:           make([]Choice, 0, len(w.Choices)),
	}
	for i, wc := range w.Choices {
		if wc.Index == nil {
			return missing(fmt.Sprintf("choices[%d].index", i))
		}
		if wc.Delta == nil {
			return missing(fmt.Sprintf("choices[%d].delta", i))
		}
		chunk.Choices = append(chunk.Choices, Choice{
			Index:        *wc.Index,
			Delta:        *wc.Delta,
			FinishReason: wc.FinishReason,
		})
	}

	return Decoded{Chunk: chunk}
}

func missing(field string) Decoded {
	return Decoded{Err: fmt.Errorf("decode chunk: %w: %s", ErrMissingField, field)}
}
