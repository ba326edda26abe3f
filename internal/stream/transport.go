// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Configuration constants for the chat completions API.
const (
	// DefaultEndpoint is the chat completions URL.
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"

	// DefaultRequestTimeout is the idle timeout used when none is given.
	DefaultRequestTimeout = 60 * time.Second

	// MaxErrorBodySize caps how much of a non-2xx body is read.
	MaxErrorBodySize = 64 * 1024

	// readBufferSize is the size of one read from the response body.
	readBufferSize = 4096

	userAgent = "rigrun-stream/0.1.0"
)

// sharedStreamingClient is used for streaming requests. It has no overall
// timeout: a stream may legitimately run for minutes, so the session enforces
// an idle timeout between reads instead.
// SECURITY: TLS 1.2+ required
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// setHeaders sets the headers for a streaming chat completions request and
// returns the generated request ID.
func setHeaders(req *http.Request, apiKey string) string {
	requestID := uuid.NewString()

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-Id", requestID)

	return requestID
}

// readErrorBody reads at most MaxErrorBodySize bytes of a failed response.
func readErrorBody(resp *http.Response) []byte {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
	if err != nil {
		return []byte(fmt.Sprintf("failed to read error body: %v", err))
	}
	return body
}

// KeyFingerprint returns a short SHA-256 fingerprint of an API key, safe to
// log in place of the key.
// SECURITY: Never log API key fragments.
func KeyFingerprint(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:4])
}
