// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error variables for session and service errors.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrSessionUsed is returned by Connect on a session that already ran.
	ErrSessionUsed = errors.New("session already used")

	// ErrIdleTimeout indicates no bytes arrived within the request timeout.
	ErrIdleTimeout = errors.New("request timed out waiting for data")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has insufficient quota.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// errStreamClosed is the cancellation cause the session uses once the
	// stream is finished. Transport errors carrying it are self-induced.
	errStreamClosed = errors.New("stream closed")
)

// APIError represents an error response from the chat completions service.
type APIError struct {
	Code    string
	Type    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse represents an error response body.
type apiErrorResponse struct {
	Error struct {
		Code    any    `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusError converts a non-2xx response into an error. Known statuses
// wrap the matching sentinel so callers can use errors.Is.
func statusError(statusCode int, body []byte) error {
	apiErr := &APIError{Status: statusCode, Message: string(body)}

	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Type
		if parsed.Error.Code != nil {
			apiErr.Code = fmt.Sprint(parsed.Error.Code)
		}
	}

	var sentinel error
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrAuthFailed
	case http.StatusPaymentRequired:
		sentinel = ErrInsufficientCredits
	case http.StatusNotFound:
		sentinel = ErrModelNotFound
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	default:
		return apiErr
	}
	return fmt.Errorf("%w: %w", sentinel, apiErr)
}

// isSelfCancellation reports whether err was caused by the session cancelling
// its own request after the stream finished.
func isSelfCancellation(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errStreamClosed) {
		return true
	}
	return errors.Is(err, context.Canceled) && errors.Is(context.Cause(ctx), errStreamClosed)
}
