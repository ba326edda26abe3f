// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection and handling for the CLI.
//
// USABILITY: TTY detection for proper terminal handling
//
// Piped output gets no colors and no markdown rendering. NO_COLOR and
// FORCE_COLOR are honored, and the [ui].color setting overrides both.

package cli

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// defaultTerminalWidth is used when the width cannot be detected.
const defaultTerminalWidth = 80

// GetTerminalWidth returns the stdout width, or 80 when unknown.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return width
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

var (
	colorMu       sync.Mutex
	colorsEnabled bool
	colorsDecided bool
)

// ColorsEnabled returns true if colored output should be used.
// See https://no-color.org/ for NO_COLOR.
func ColorsEnabled() bool {
	colorMu.Lock()
	defer colorMu.Unlock()
	if !colorsDecided {
		colorsEnabled = detectColors()
		colorsDecided = true
	}
	return colorsEnabled
}

func detectColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return IsStdoutTTY()
}

// ApplyColorMode applies the [ui].color setting: "always", "never" or
// "auto". The lipgloss profile is updated to match.
func ApplyColorMode(mode string) {
	colorMu.Lock()
	switch strings.ToLower(mode) {
	case "always":
		colorsEnabled = true
	case "never":
		colorsEnabled = false
	default:
		colorsEnabled = detectColors()
	}
	colorsDecided = true
	colorMu.Unlock()

	lipgloss.SetColorProfile(GetColorProfile())
}

// GetColorProfile returns the termenv profile to render with.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	profile := termenv.ColorProfile()
	if profile == termenv.Ascii {
		// Forced colors on a non-terminal
		return termenv.ANSI256
	}
	return profile
}

// =============================================================================
// INTERACTIVE INPUT
// =============================================================================

// RequiresTTY returns an error if stdin is not a terminal.
func RequiresTTY(operation string) error {
	if !IsTTY() {
		return &TTYRequiredError{Operation: operation}
	}
	return nil
}

// TTYRequiredError is returned when an operation needs a TTY but none is available.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	if e.Operation != "" {
		return "stdin is not a terminal; cannot " + e.Operation + " interactively"
	}
	return "stdin is not a terminal; interactive input not available"
}

// ReadSecret prompts on stderr and reads a line without echo.
// SECURITY: API keys never appear on screen or in shell history.
func ReadSecret(prompt string) (string, error) {
	if err := RequiresTTY("read a secret"); err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
