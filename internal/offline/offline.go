// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidEndpoint is returned for endpoints that do not parse as an
	// absolute URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint URL")

	// ErrInvalidURLScheme is returned when the scheme is not http or https.
	ErrInvalidURLScheme = errors.New("only http and https endpoints are allowed")

	// ErrNonLocalhost is returned for a remote endpoint in offline mode.
	ErrNonLocalhost = errors.New("offline mode: only localhost endpoints are allowed")
)

// =============================================================================
// URL VALIDATION
// =============================================================================

// IsLocalhost reports whether host names the local machine. It accepts
// "localhost", the whole 127.0.0.0/8 range and every spelling of ::1, with
// or without a port or brackets.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateEndpoint checks that rawURL is an http(s) URL with a host and, in
// offline mode, that the host is loopback.
//
// SECURITY: The scheme is always checked. file:, data: and custom schemes
// are never dialed.
func ValidateEndpoint(rawURL string, offline bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: got %q", ErrInvalidURLScheme, parsed.Scheme)
	}

	// NOTE: A hostname that resolves to loopback (other than "localhost")
	// is still rejected; resolution happens too late to trust.
	if offline && !IsLocalhost(parsed.Hostname()) {
		return fmt.Errorf("%w: %s", ErrNonLocalhost, parsed.Hostname())
	}
	return nil
}

// =============================================================================
// STATUS DISPLAY
// =============================================================================

// StatusBadge returns "[OFFLINE]" in offline mode and "" otherwise.
func StatusBadge(offline bool) string {
	if offline {
		return "[OFFLINE]"
	}
	return ""
}
