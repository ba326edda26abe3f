// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

// Request is the JSON body of a streaming chat completions request.
//
// A Request is a snapshot: NewRequest copies everything it takes from the
// Configuration and the message history, so later changes to either do not
// reach a request that is already in flight.
type Request struct {
	Model            string          `json:"model"`
	Stream           bool            `json:"stream"`
	Messages         []Message       `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	N                *int            `json:"n,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Logprobs         *int            `json:"logprobs,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
}

// NewRequest builds the request snapshot for cfg and messages. Stream is
// always true and message order is preserved.
func NewRequest(cfg Configuration, messages []Message) *Request {
	req := &Request{
		Model:    cfg.Model(),
		Stream:   true,
		Messages: append([]Message{}, messages...),
		Stop:     cfg.Stop(),
	}

	if v, ok := cfg.Temperature(); ok {
		req.Temperature = &v
	}
	if v, ok := cfg.N(); ok {
		req.N = &v
	}
	if v, ok := cfg.MaxTokens(); ok {
		req.MaxTokens = &v
	}
	if v, ok := cfg.TopP(); ok {
		req.TopP = &v
	}
	if v, ok := cfg.FrequencyPenalty(); ok {
		req.FrequencyPenalty = &v
	}
	if v, ok := cfg.PresencePenalty(); ok {
		req.PresencePenalty = &v
	}
	if v, ok := cfg.Logprobs(); ok {
		req.Logprobs = &v
	}
	if v, ok := cfg.ResponseFormat(); ok {
		req.ResponseFormat = &v
	}

	return req
}
