// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/chat"
)

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// Stats holds statistics collected during one streaming exchange.
type Stats struct {
	StartTime      time.Time
	FirstTokenTime time.Duration // time to first non-empty token
	TotalTime      time.Duration

	Model        string
	FinishReason string
	Fragments    int // decoded and kept
	TokenCount   int // fragments with non-empty first-choice content

	SkippedRecords int // data payloads that failed to decode
	IgnoredRecords int // records that were neither data nor close
	DroppedChunks  int // network chunks that were not valid UTF-8
	DiscardedBytes int // incomplete trailing record left at end of stream
	ClosedBySignal bool
}

// recordFragment updates the stats for one kept fragment.
func (s *Stats) recordFragment(c *chat.CompletionChunk) {
	s.Fragments++
	if c.Model != "" {
		s.Model = c.Model
	}
	if c.Done() {
		s.FinishReason = c.FinishReason()
	}
	if c.Content() != "" {
		s.TokenCount++
		if s.FirstTokenTime == 0 {
			s.FirstTokenTime = time.Since(s.StartTime)
		}
	}
}

// TokensPerSecond returns the streaming rate, or 0 before any time elapsed.
func (s Stats) TokensPerSecond() float64 {
	if s.TotalTime <= 0 {
		return 0
	}
	return float64(s.TokenCount) / s.TotalTime.Seconds()
}

// Format returns a one-line summary.
func (s Stats) Format() string {
	return fmt.Sprintf("%.1fs | %d tokens | %.1f tok/s | TTFT %dms",
		s.TotalTime.Seconds(), s.TokenCount, s.TokensPerSecond(), s.FirstTokenTime.Milliseconds())
}
