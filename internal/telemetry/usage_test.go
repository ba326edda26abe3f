// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T) *UsageTracker {
	t.Helper()
	tracker, err := NewUsageTracker(t.TempDir(), "ask")
	require.NoError(t, err)
	return tracker
}

// writeSession stores a session that started at the given time.
func writeSession(t *testing.T, storage *UsageStorage, started time.Time, tokens int) *SessionUsage {
	t.Helper()
	s := &SessionUsage{
		ID:        generateSessionID(started),
		Command:   "chat",
		StartTime: started,
		Requests:  1,
		Tokens:    tokens,
		Models: map[string]*ModelUsage{
			"gpt-4o-mini": {Requests: 1, Tokens: tokens},
		},
	}
	require.NoError(t, storage.Save(s))
	return s
}

// =============================================================================
// TRACKER
// =============================================================================

func TestUsageTracker_Record(t *testing.T) {
	tracker := newTracker(t)

	tracker.Record(RequestUsage{Model: "gpt-4o-mini", Prompt: "first", Tokens: 10, Duration: time.Second, TTFT: 200 * time.Millisecond})
	tracker.Record(RequestUsage{Model: "gpt-4o-mini", Prompt: "second", Tokens: 30, Duration: 2 * time.Second, TTFT: 400 * time.Millisecond})
	tracker.Record(RequestUsage{Model: "gpt-4o", Prompt: "third", Error: "stream idle", Duration: 500 * time.Millisecond})

	s := tracker.Current()
	assert.Equal(t, "ask", s.Command)
	assert.Equal(t, 3, s.Requests)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 40, s.Tokens)
	assert.Equal(t, int64(3500), s.DurationMs)

	require.Contains(t, s.Models, "gpt-4o-mini")
	mini := s.Models["gpt-4o-mini"]
	assert.Equal(t, 2, mini.Requests)
	assert.Equal(t, 40, mini.Tokens)
	assert.Equal(t, 300*time.Millisecond, mini.AvgTTFT())

	require.Len(t, s.TopRequests, 3)
	assert.Equal(t, "second", s.TopRequests[0].Prompt)
	assert.Equal(t, "first", s.TopRequests[1].Prompt)
	assert.False(t, s.TopRequests[0].Timestamp.IsZero())
}

func TestUsageTracker_TopRequestsBounded(t *testing.T) {
	tracker := newTracker(t)
	for i := 0; i < topRequestLimit+5; i++ {
		tracker.Record(RequestUsage{Model: "m", Tokens: i})
	}

	s := tracker.Current()
	require.Len(t, s.TopRequests, topRequestLimit)
	assert.Equal(t, topRequestLimit+4, s.TopRequests[0].Tokens)
	assert.Equal(t, 5, s.TopRequests[topRequestLimit-1].Tokens)
}

func TestUsageTracker_PromptPreview(t *testing.T) {
	tracker := newTracker(t)
	tracker.Record(RequestUsage{Model: "m", Prompt: "line one\nline two " + strings.Repeat("x", 200)})

	p := tracker.Current().TopRequests[0].Prompt
	assert.NotContains(t, p, "\n")
	assert.LessOrEqual(t, len([]rune(p)), promptPreviewWidth)
}

func TestUsageTracker_CurrentIsCopy(t *testing.T) {
	tracker := newTracker(t)
	tracker.Record(RequestUsage{Model: "m", Tokens: 5})

	s := tracker.Current()
	s.Models["m"].Tokens = 999
	s.TopRequests[0].Tokens = 999

	fresh := tracker.Current()
	assert.Equal(t, 5, fresh.Models["m"].Tokens)
	assert.Equal(t, 5, fresh.TopRequests[0].Tokens)
}

func TestUsageTracker_SaveSkipsEmptySession(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewUsageTracker(dir, "chat")
	require.NoError(t, err)

	require.NoError(t, tracker.Save())
	count, err := tracker.storage.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	tracker.Record(RequestUsage{Model: "m", Tokens: 3})
	require.NoError(t, tracker.Save())
	// Saving again overwrites the same file
	tracker.Record(RequestUsage{Model: "m", Tokens: 4})
	require.NoError(t, tracker.Save())

	count, err = tracker.storage.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	loaded, err := tracker.storage.Load(tracker.Current().ID)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Tokens)
}

func TestUsageTracker_EndSession(t *testing.T) {
	tracker := newTracker(t)
	tracker.Record(RequestUsage{Model: "m", Tokens: 3})
	firstID := tracker.Current().ID

	require.NoError(t, tracker.EndSession())

	next := tracker.Current()
	assert.NotEqual(t, firstID, next.ID)
	assert.Equal(t, 0, next.Requests)
	assert.Equal(t, "ask", next.Command)

	saved, err := tracker.storage.Load(firstID)
	require.NoError(t, err)
	assert.False(t, saved.EndTime.IsZero())
}

func TestUsageTracker_ConcurrentRecord(t *testing.T) {
	tracker := newTracker(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.Record(RequestUsage{Model: fmt.Sprintf("m%d", i%3), Tokens: 1})
			_ = tracker.Current()
		}(i)
	}
	wg.Wait()

	s := tracker.Current()
	assert.Equal(t, 20, s.Requests)
	assert.Equal(t, 20, s.Tokens)
}

func TestUsageTracker_HistoryAndTrends(t *testing.T) {
	tracker := newTracker(t)
	now := time.Now()

	writeSession(t, tracker.storage, now.Add(-1*time.Hour), 10)
	writeSession(t, tracker.storage, now.Add(-26*time.Hour), 20)
	writeSession(t, tracker.storage, now.AddDate(0, 0, -30), 40)

	history := tracker.History(now.AddDate(0, 0, -7), now)
	require.Len(t, history, 2)
	assert.Equal(t, 20, history[0].Tokens, "oldest first")

	trends := tracker.Trends(7)
	assert.Equal(t, 7, trends.Days)
	assert.Equal(t, 2, trends.Sessions)
	assert.Equal(t, 30, trends.Tokens)
	assert.Equal(t, 30, trends.ByModel["gpt-4o-mini"])
	require.Len(t, trends.Daily, 2)
	assert.True(t, trends.Daily[0].Date.Before(trends.Daily[1].Date))
}

func TestUsageTracker_Prune(t *testing.T) {
	tracker := newTracker(t)
	now := time.Now()
	writeSession(t, tracker.storage, now.Add(-time.Hour), 1)
	writeSession(t, tracker.storage, now.AddDate(0, 0, -100), 1)

	removed, err := tracker.Prune(0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	removed, err = tracker.Prune(90)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := tracker.storage.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// STORAGE
// =============================================================================

func TestUsageStorage_RejectsTraversal(t *testing.T) {
	storage, err := NewUsageStorage(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../evil", "20250101-120000/../../x", "not-a-session", "20250101-120000.json"} {
		_, err := storage.Load(id)
		assert.ErrorIs(t, err, ErrInvalidSessionID, id)
		assert.ErrorIs(t, storage.Delete(id), ErrInvalidSessionID, id)
	}
	assert.ErrorIs(t, storage.Save(&SessionUsage{ID: "../x"}), ErrInvalidSessionID)
}

func TestUsageStorage_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewUsageStorage(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{}"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "20250101-120000-dir.json"), 0700))
	writeSession(t, storage, time.Now(), 1)

	count, err := storage.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	size, err := storage.Size()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))

	ids, err := storage.List(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestUsageStorage_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewUsageStorage(dir)
	require.NoError(t, err)

	id := generateSessionID(time.Now())
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte("{broken"), 0600))

	_, err = storage.Load(id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode usage session")
}
