// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import "strings"

// =============================================================================
// CLASSIFIER
// =============================================================================

const (
	// CloseMarker starts a record that closes the stream.
	CloseMarker = "event: close"

	// DataMarker starts a record that carries a payload. One optional space
	// after the colon belongs to the marker.
	DataMarker = "data:"

	// DoneSentinel is the data payload that ends the stream.
	DoneSentinel = "[DONE]"
)

// Kind is the classification of one record.
type Kind int

const (
	// KindIgnored records are neither data nor close (comments, keep-alives).
	KindIgnored Kind = iota
	// KindData records carry a payload for the chunk decoder.
	KindData
	// KindClose records end the stream.
	KindClose
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindClose:
		return "close"
	default:
		return "ignored"
	}
}

// Event is a classified record.
type Event struct {
	Kind Kind
	// Data holds the payload for KindData, unmodified after the marker.
	Data string
}

// Classify interprets one complete record.
func Classify(record string) Event {
	if strings.HasPrefix(record, CloseMarker) {
		return Event{Kind: KindClose}
	}

	if strings.HasPrefix(record, DataMarker) {
		content := strings.TrimPrefix(record[len(DataMarker):], " ")
		if content == DoneSentinel {
			return Event{Kind: KindClose}
		}
		return Event{Kind: KindData, Data: content}
	}

	return Event{Kind: KindIgnored}
}
