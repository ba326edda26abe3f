// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat holds the chat-completions data model: the immutable request
// Configuration, conversation Messages, the wire Request snapshot, and the
// CompletionChunk fragments decoded from a streamed response.
//
// # Key Types
//
//   - Configuration: model and optional sampling parameters, copy-with-override
//   - Message: role and content, order is dialogue order
//   - Request: JSON body sent to the chat completions endpoint
//   - CompletionChunk: one decoded fragment of a streamed response
//   - Decoded: result of decoding one data payload (chunk or skipped)
//
// # Usage
//
//	cfg := chat.DefaultConfiguration().
//	    WithModel("gpt-4o").
//	    WithTemperature(0.2)
//	req := chat.NewRequest(cfg, []chat.Message{chat.UserMessage("Hello")})
//
// Wire field names are snake_case (max_tokens, top_p, system_fingerprint,
// finish_reason); the mapping lives in the struct tags of this package.
package chat
