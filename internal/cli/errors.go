// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all CLI commands.
//
// Handlers return errors and never print-and-return-nil. main displays the
// error once and exits with the code GetExitCode picks.
//
// ERROR HANDLING: Errors must not be silently ignored

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/storage"
	"github.com/jeranaias/rigrun-stream/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the API rejected the key
	ExitAuthError = 4
	// ExitNetworkError indicates a transport or API failure
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted follows the shell convention for SIGINT
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// UnknownCommandError is returned for an unrecognized command name.
type UnknownCommandError struct {
	Name       string
	Suggestion string
}

func (e *UnknownCommandError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown command %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown command %q (run 'rigrun-stream help')", e.Name)
}

// ErrMissingArgument creates an error for a missing required argument.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{
		Field:   argName,
		Reason:  "required argument missing",
		Example: usage,
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to stderr, or as a JSON error response to stdout
// in JSON mode.
func DisplayError(command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		NewJSONErrorResponse(command, err).Print()
		return
	}
	displayErrorTo(os.Stderr, err)
}

func displayErrorTo(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, DimStyle.Render(hint))
	}
}

// errorHint returns a one-line suggestion for well-known failures.
func errorHint(err error) string {
	switch {
	case errors.Is(err, stream.ErrNotConfigured):
		return "Set OPENAI_API_KEY or run 'rigrun-stream config init'."
	case errors.Is(err, stream.ErrAuthFailed):
		return "Check the API key with 'rigrun-stream config show'."
	case errors.Is(err, stream.ErrModelNotFound):
		return "Pick another model with --model or [chat].model."
	case errors.Is(err, stream.ErrIdleTimeout):
		return "Raise --timeout or [api].request_timeout_secs."
	}
	return ""
}

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var unknownErr *UnknownCommandError
	var ttyErr *TTYRequiredError
	var configErrs config.ValidateErrors
	var netErr net.Error
	var apiErr *stream.APIError

	switch {
	case errors.As(err, &validationErr), errors.As(err, &unknownErr), errors.As(err, &ttyErr),
		errors.Is(err, storage.ErrAmbiguousID), errors.Is(err, storage.ErrInvalidID):
		return ExitUsageError
	case errors.As(err, &configErrs), errors.Is(err, stream.ErrNotConfigured):
		return ExitConfigError
	case errors.Is(err, stream.ErrAuthFailed):
		return ExitAuthError
	case errors.Is(err, storage.ErrTranscriptNotFound), errors.Is(err, stream.ErrModelNotFound):
		return ExitNotFoundError
	case errors.Is(err, stream.ErrIdleTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &apiErr), errors.As(err, &netErr):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// =============================================================================
// JSON ERROR DETAILS
// =============================================================================

// errorDetails returns structured fields for a JSON error response.
func errorDetails(err error) map[string]interface{} {
	details := map[string]interface{}{
		"exit_code": GetExitCode(err),
	}

	var apiErr *stream.APIError
	var validationErr *ValidationError
	switch {
	case errors.As(err, &apiErr):
		details["error_type"] = "api_error"
		details["status_code"] = apiErr.Status
		if apiErr.Code != "" {
			details["code"] = apiErr.Code
		}
	case errors.As(err, &validationErr):
		details["error_type"] = "validation_error"
		details["field"] = validationErr.Field
		details["reason"] = validationErr.Reason
	default:
		details["error_type"] = "generic_error"
	}
	return details
}
