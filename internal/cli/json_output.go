// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for scripting.
//
// Every command that accepts --json writes exactly one JSONResponse to
// stdout. Human-readable messages go to stderr in JSON mode.

package cli

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/chat"
)

// JSONResponse is the response envelope for all commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Details carries structured error fields (exit code, API status)
	Details map[string]interface{} `json:"error_details,omitempty"`

	// Timestamp is when the response was generated (RFC 3339, UTC)
	Timestamp string `json:"timestamp"`

	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	return NewJSONResponse(command, nil).WithError(err)
}

// WithError marks the response failed. Data is kept so partial results
// (an answer cut short by a transport error) still reach the caller.
func (r *JSONResponse) WithError(err error) *JSONResponse {
	if err == nil {
		return r
	}
	errStr := err.Error()
	r.Success = false
	r.Error = &errStr
	r.Details = errorDetails(err)
	return r
}

// Print writes the response to stdout.
func (r *JSONResponse) Print() error {
	return r.Write(os.Stdout)
}

// Write writes the indented response to w.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// AskData represents the data returned by the ask command.
type AskData struct {
	Response     string                 `json:"response"`
	Model        string                 `json:"model"`
	FinishReason string                 `json:"finish_reason,omitempty"`
	Tokens       int                    `json:"tokens"`
	DurationMs   int64                  `json:"duration_ms"`
	TTFTMs       int64                  `json:"ttft_ms"`
	TokensPerSec float64                `json:"tokens_per_sec"`
	TranscriptID string                 `json:"transcript_id,omitempty"`
	Chunks       []chat.CompletionChunk `json:"chunks"`
}

// ConfigPathData represents the data returned by config path.
type ConfigPathData struct {
	Path       string `json:"path"`
	Exists     bool   `json:"exists"`
	HistoryDir string `json:"history_dir"`
}
