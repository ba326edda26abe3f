// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatgpt is the public entry point for streaming chat completions.
//
// A call builds the request from a Configuration and the ordered message
// history, streams the answer, and returns every decoded fragment once the
// stream ends:
//
//	cfg := chatgpt.DefaultConfiguration().WithModel("gpt-4o").WithTemperature(0.7)
//	chunks, err := chatgpt.Invoke(ctx, cfg,
//		[]chatgpt.Message{chatgpt.UserMessage("Hello")},
//		os.Getenv("OPENAI_API_KEY"),
//		func(token string) { fmt.Print(token) },
//		60*time.Second,
//	)
//	fmt.Println(chatgpt.Text(chunks))
//
// Transport failures after the request is sent are not returned: Invoke
// returns whatever arrived before them. Use WithErrorObserver, or a Session
// and its Err method, to see them.
package chatgpt

import (
	"context"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/stream"
)

// Data model.
type (
	Configuration   = chat.Configuration
	Message         = chat.Message
	Role            = chat.Role
	Param           = chat.Param
	ResponseFormat  = chat.ResponseFormat
	CompletionChunk = chat.CompletionChunk
	Choice          = chat.Choice
	Delta           = chat.Delta
	Request         = chat.Request
)

// Streaming.
type (
	Session       = stream.Session
	Option        = stream.Option
	Stats         = stream.Stats
	APIError      = stream.APIError
	TokenObserver = stream.TokenObserver
	ErrorObserver = stream.ErrorObserver
)

// Roles.
const (
	RoleUser      = chat.RoleUser
	RoleAssistant = chat.RoleAssistant
	RoleSystem    = chat.RoleSystem
)

// Optional configuration parameters, for Configuration.Unset.
const (
	ParamTemperature      = chat.ParamTemperature
	ParamN                = chat.ParamN
	ParamMaxTokens        = chat.ParamMaxTokens
	ParamTopP             = chat.ParamTopP
	ParamFrequencyPenalty = chat.ParamFrequencyPenalty
	ParamPresencePenalty  = chat.ParamPresencePenalty
	ParamLogprobs         = chat.ParamLogprobs
	ParamResponseFormat   = chat.ParamResponseFormat
	ParamStop             = chat.ParamStop
)

// DefaultModel is used when a Configuration names no model.
const DefaultModel = chat.DefaultModel

// DefaultEndpoint is the chat completions URL requests are sent to.
const DefaultEndpoint = stream.DefaultEndpoint

// Response formats.
var (
	ResponseFormatText = chat.ResponseFormatText
	ResponseFormatJSON = chat.ResponseFormatJSON
)

// Errors.
var (
	ErrNotConfigured       = stream.ErrNotConfigured
	ErrSessionUsed         = stream.ErrSessionUsed
	ErrIdleTimeout         = stream.ErrIdleTimeout
	ErrAuthFailed          = stream.ErrAuthFailed
	ErrRateLimited         = stream.ErrRateLimited
	ErrModelNotFound       = stream.ErrModelNotFound
	ErrInsufficientCredits = stream.ErrInsufficientCredits
)

// Session options.
var (
	WithTokenObserver = stream.WithTokenObserver
	WithErrorObserver = stream.WithErrorObserver
	WithEndpoint      = stream.WithEndpoint
	WithHTTPClient    = stream.WithHTTPClient
	WithLogger        = stream.WithLogger
)

// DefaultConfiguration returns a Configuration with the default model and no
// optional parameters set.
func DefaultConfiguration() Configuration { return chat.DefaultConfiguration() }

// UserMessage returns a user message.
func UserMessage(content string) Message { return chat.UserMessage(content) }

// AssistantMessage returns an assistant message.
func AssistantMessage(content string) Message { return chat.AssistantMessage(content) }

// SystemMessage returns a system message.
func SystemMessage(content string) Message { return chat.SystemMessage(content) }

// Text concatenates the first-choice content of chunks in order.
func Text(chunks []CompletionChunk) string { return chat.Text(chunks) }

// ChoiceText concatenates the content of one choice index.
func ChoiceText(chunks []CompletionChunk, index int) string { return chat.ChoiceText(chunks, index) }

// NewRequest builds the request snapshot sent for cfg and messages.
func NewRequest(cfg Configuration, messages []Message) *Request {
	return chat.NewRequest(cfg, messages)
}

// NewSession creates a single-use streaming session. See Invoke for the
// meaning of timeout.
func NewSession(apiToken string, timeout time.Duration, opts ...Option) *Session {
	return stream.NewSession(apiToken, timeout, opts...)
}

// Invoke streams one chat completion and returns its fragments in arrival
// order. observer, if non-nil, receives each non-empty token as it arrives.
// timeout bounds the wait for the response and between reads of the stream.
//
// The error is non-nil only if the request could not be sent.
func Invoke(
	ctx context.Context,
	cfg Configuration,
	messages []Message,
	apiToken string,
	observer func(token string),
	timeout time.Duration,
	opts ...Option,
) ([]CompletionChunk, error) {
	req := chat.NewRequest(cfg, messages)
	if observer != nil {
		opts = append([]Option{stream.WithTokenObserver(observer)}, opts...)
	}
	return stream.NewSession(apiToken, timeout, opts...).Connect(ctx, req)
}
