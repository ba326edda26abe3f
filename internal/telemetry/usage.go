// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigrun-stream/internal/util"
)

// =============================================================================
// USAGE TRACKER
// =============================================================================

const (
	// topRequestLimit is how many requests a session keeps for review.
	topRequestLimit = 10
	// promptPreviewWidth bounds the stored prompt preview.
	promptPreviewWidth = 60
)

// UsageTracker records requests into the current session.
type UsageTracker struct {
	mu      sync.RWMutex
	current *SessionUsage
	storage *UsageStorage
}

// SessionUsage is the ledger entry for one CLI invocation.
type SessionUsage struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`

	Requests   int   `json:"requests"`
	Errors     int   `json:"errors"`
	Tokens     int   `json:"tokens"`
	DurationMs int64 `json:"duration_ms"`

	// Per-model breakdown
	Models map[string]*ModelUsage `json:"models"`

	// Largest answers, by token count
	TopRequests []RequestUsage `json:"top_requests"`
}

// ModelUsage aggregates the requests sent to one model.
type ModelUsage struct {
	Requests   int   `json:"requests"`
	Tokens     int   `json:"tokens"`
	DurationMs int64 `json:"duration_ms"`
	// TTFTMs is the summed time to first token, for averaging
	TTFTMs int64 `json:"ttft_ms"`
}

// AvgTTFT returns the mean time to first token.
func (m *ModelUsage) AvgTTFT() time.Duration {
	if m.Requests == 0 {
		return 0
	}
	return time.Duration(m.TTFTMs/int64(m.Requests)) * time.Millisecond
}

// RequestUsage describes one streamed request.
type RequestUsage struct {
	Timestamp    time.Time     `json:"timestamp"`
	Model        string        `json:"model"`
	Prompt       string        `json:"prompt"` // one-line preview
	Tokens       int           `json:"tokens"`
	Duration     time.Duration `json:"duration"`
	TTFT         time.Duration `json:"ttft"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// UsageTrends aggregates sessions over a number of days.
type UsageTrends struct {
	Days       int            `json:"days"`
	Sessions   int            `json:"sessions"`
	Requests   int            `json:"requests"`
	Errors     int            `json:"errors"`
	Tokens     int            `json:"tokens"`
	DurationMs int64          `json:"duration_ms"`
	Daily      []DailyUsage   `json:"daily"`
	ByModel    map[string]int `json:"by_model"` // tokens per model
}

// DailyUsage aggregates one calendar day.
type DailyUsage struct {
	Date     time.Time `json:"date"`
	Requests int       `json:"requests"`
	Tokens   int       `json:"tokens"`
	Errors   int       `json:"errors"`
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// NewUsageTracker opens the ledger in dir and starts a session for command.
func NewUsageTracker(dir, command string) (*UsageTracker, error) {
	storage, err := NewUsageStorage(dir)
	if err != nil {
		return nil, err
	}
	return &UsageTracker{
		current: newSession(command),
		storage: storage,
	}, nil
}

func newSession(command string) *SessionUsage {
	now := time.Now()
	return &SessionUsage{
		ID:          generateSessionID(now),
		Command:     command,
		StartTime:   now,
		Models:      make(map[string]*ModelUsage),
		TopRequests: make([]RequestUsage, 0),
	}
}

// =============================================================================
// RECORDING
// =============================================================================

// Record adds a request to the current session.
func (ut *UsageTracker) Record(r RequestUsage) {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	// UNICODE: width-aware truncation keeps CJK and emoji intact
	r.Prompt = util.TruncateWidth(util.OneLine(r.Prompt), promptPreviewWidth)

	s := ut.current
	s.Requests++
	s.Tokens += r.Tokens
	s.DurationMs += r.Duration.Milliseconds()
	if r.Error != "" {
		s.Errors++
	}

	m := s.Models[r.Model]
	if m == nil {
		m = &ModelUsage{}
		s.Models[r.Model] = m
	}
	m.Requests++
	m.Tokens += r.Tokens
	m.DurationMs += r.Duration.Milliseconds()
	m.TTFTMs += r.TTFT.Milliseconds()

	s.TopRequests = append(s.TopRequests, r)
	sort.SliceStable(s.TopRequests, func(i, j int) bool {
		return s.TopRequests[i].Tokens > s.TopRequests[j].Tokens
	})
	if len(s.TopRequests) > topRequestLimit {
		s.TopRequests = s.TopRequests[:topRequestLimit]
	}
}

// =============================================================================
// RETRIEVAL
// =============================================================================

// Current returns a copy of the current session.
func (ut *UsageTracker) Current() *SessionUsage {
	ut.mu.RLock()
	defer ut.mu.RUnlock()
	return copySession(ut.current)
}

// History returns the saved sessions started within [from, to], oldest first.
func (ut *UsageTracker) History(from, to time.Time) []*SessionUsage {
	ids, err := ut.storage.List(from, to)
	if err != nil {
		return nil
	}

	sessions := make([]*SessionUsage, 0, len(ids))
	for _, id := range ids {
		session, err := ut.storage.Load(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions
}

// Trends aggregates the sessions of the last days days.
func (ut *UsageTracker) Trends(days int) *UsageTrends {
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	trends := &UsageTrends{
		Days:    days,
		Daily:   make([]DailyUsage, 0),
		ByModel: make(map[string]int),
	}

	daily := make(map[string]*DailyUsage)
	for _, s := range ut.History(from, to) {
		trends.Sessions++
		trends.Requests += s.Requests
		trends.Errors += s.Errors
		trends.Tokens += s.Tokens
		trends.DurationMs += s.DurationMs

		key := s.StartTime.Format("2006-01-02")
		d, ok := daily[key]
		if !ok {
			y, mo, dd := s.StartTime.Date()
			d = &DailyUsage{Date: time.Date(y, mo, dd, 0, 0, 0, 0, s.StartTime.Location())}
			daily[key] = d
		}
		d.Requests += s.Requests
		d.Tokens += s.Tokens
		d.Errors += s.Errors

		for model, m := range s.Models {
			trends.ByModel[model] += m.Tokens
		}
	}

	for _, d := range daily {
		trends.Daily = append(trends.Daily, *d)
	}
	sort.Slice(trends.Daily, func(i, j int) bool {
		return trends.Daily[i].Date.Before(trends.Daily[j].Date)
	})
	return trends
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// Save writes the current session. Sessions without requests are not saved.
func (ut *UsageTracker) Save() error {
	ut.mu.RLock()
	defer ut.mu.RUnlock()

	if ut.current.Requests == 0 {
		return nil
	}
	return ut.storage.Save(ut.current)
}

// EndSession stamps and saves the current session and starts a new one.
func (ut *UsageTracker) EndSession() error {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	var err error
	if ut.current.Requests > 0 {
		ut.current.EndTime = time.Now()
		err = ut.storage.Save(ut.current)
	}
	ut.current = newSession(ut.current.Command)
	return err
}

// Prune deletes sessions older than retentionDays. Zero keeps everything.
func (ut *UsageTracker) Prune(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return ut.storage.DeleteBefore(time.Now().AddDate(0, 0, -retentionDays))
}

// =============================================================================
// HELPERS
// =============================================================================

// copySession creates a deep copy of a session.
func copySession(src *SessionUsage) *SessionUsage {
	dst := *src
	dst.Models = make(map[string]*ModelUsage, len(src.Models))
	for k, v := range src.Models {
		m := *v
		dst.Models[k] = &m
	}
	dst.TopRequests = append([]RequestUsage(nil), src.TopRequests...)
	return &dst
}

// generateSessionID returns a sortable, unique session ID:
// local start time plus a random suffix so concurrent processes never collide.
func generateSessionID(now time.Time) string {
	return now.Format(sessionTimeLayout) + "-" + uuid.NewString()[:8]
}
