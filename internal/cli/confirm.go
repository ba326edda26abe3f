// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation handling for destructive commands.
//
// USABILITY: TTY detection for proper terminal handling
//
//  1. If --confirm is present, proceed without prompting
//  2. In --json mode, require --confirm (no interactive prompts)
//  3. If stdin is not a TTY, require --confirm
//  4. Otherwise, ask interactively

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// RequireConfirmation checks if the user has confirmed a destructive action.
//
// Example:
//
//	confirmed, err := RequireConfirmation(p.BoolFlag("confirm"), "delete all transcripts", args.JSON)
//	if err != nil {
//	    return err
//	}
//	if !confirmed {
//	    ShowCancellationMessage()
//	    return nil
//	}
func RequireConfirmation(confirmFlag bool, action string, jsonMode bool) (bool, error) {
	if confirmFlag {
		return true, nil
	}
	if jsonMode {
		return false, &ValidationError{Field: "--confirm", Reason: "confirmation is required for destructive actions in JSON mode"}
	}
	if !IsTTY() {
		return false, &ValidationError{Field: "--confirm", Reason: "confirmation required but stdin is not a terminal"}
	}
	return promptConfirmation(os.Stdin, os.Stderr, action)
}

// promptConfirmation asks a [y/N] question on w and reads the answer from r.
func promptConfirmation(r io.Reader, w io.Writer, action string) (bool, error) {
	fmt.Fprintf(w, "Are you sure you want to %s? [y/N]: ", action)

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && input == "" {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes", nil
}

// ShowCancellationMessage displays a standard cancellation message.
func ShowCancellationMessage() {
	fmt.Fprintln(os.Stderr, DimStyle.Render("Cancelled."))
}
