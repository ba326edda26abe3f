// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders saved transcripts as documents.
//
// # Key Types
//
//   - Exporter: Converts a transcript to one format
//   - Options: Metadata, timestamps and HTML theme
//
// # Supported Formats
//
//   - Markdown: YAML frontmatter, one section per message
//   - JSON: The stored transcript, indented
//   - HTML: Standalone page; message Markdown is rendered and sanitized
//
// # Usage
//
//	exporter, err := export.ForFormat("html", nil)
//	content, err := exporter.Export(transcript)
//
// Export to a file, choosing the format from its extension:
//
//	err := export.ToFile(transcript, "chat.html", nil)
//
// Or force a format:
//
//	err := export.ToFile(transcript, "notes.txt", export.NewHTMLExporter(nil))
package export
