// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/util"
)

// =============================================================================
// TRANSCRIPT TYPES
// =============================================================================

// Transcript is a persisted conversation.
type Transcript struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Entries []Entry `json:"entries"`
}

// Entry is one message of a transcript.
type Entry struct {
	ID        string    `json:"id"`
	Role      chat.Role `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Statistics (for assistant entries)
	Model        string  `json:"model,omitempty"`
	TokenCount   int     `json:"token_count,omitempty"`
	DurationMs   int64   `json:"duration_ms,omitempty"`
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
	TTFTMs       int64   `json:"ttft_ms,omitempty"`
	FinishReason string  `json:"finish_reason,omitempty"`
	// Error is the transport error that cut the answer short, if any
	Error string `json:"error,omitempty"`
}

// TranscriptMeta contains metadata for listing transcripts.
type TranscriptMeta struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	EntryCount int       `json:"entry_count"`
	Preview    string    `json:"preview"`
}

// NewEntry returns an entry with a fresh ID and the current time.
func NewEntry(role chat.Role, content string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Append adds entries and returns t for chaining.
func (t *Transcript) Append(entries ...Entry) *Transcript {
	t.Entries = append(t.Entries, entries...)
	return t
}

// Messages returns the entries as request messages, in order, skipping
// entries whose role the API does not accept.
func (t *Transcript) Messages() []chat.Message {
	msgs := make([]chat.Message, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.Role.Valid() {
			msgs = append(msgs, chat.Message{Role: e.Role, Content: e.Content})
		}
	}
	return msgs
}

// Preview returns the first user entry on one line, truncated to width
// columns.
func (t *Transcript) Preview(width int) string {
	for _, e := range t.Entries {
		if e.Role == chat.RoleUser && e.Content != "" {
			return util.TruncateWidth(util.OneLine(e.Content), width)
		}
	}
	return ""
}

// =============================================================================
// TRANSCRIPT STORE
// =============================================================================

const (
	titleWidth   = 50
	previewWidth = 80
)

// TranscriptStore handles transcript persistence.
type TranscriptStore struct {
	// BaseDir is the directory holding one JSON file per transcript
	BaseDir string

	// MaxTranscripts limits stored transcripts (0 = unlimited)
	MaxTranscripts int
}

// NewTranscriptStore creates a store in baseDir, creating the directory.
func NewTranscriptStore(baseDir string, maxTranscripts int) (*TranscriptStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	return &TranscriptStore{
		BaseDir:        baseDir,
		MaxTranscripts: maxTranscripts,
	}, nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save persists a transcript and returns its ID. A missing ID, title or
// creation time is filled in.
func (s *TranscriptStore) Save(t *Transcript) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	} else if err := validateID(t.ID); err != nil {
		return "", err
	}
	if t.Title == "" {
		t.Title = generateTitle(t)
	}

	t.UpdatedAt = time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.WriteFileAtomic(s.filePath(t.ID), data, 0600, 0700); err != nil {
		return "", err
	}

	if s.MaxTranscripts > 0 {
		s.enforceLimit()
	}
	return t.ID, nil
}

// generateTitle creates a title from the first user entry.
func generateTitle(t *Transcript) string {
	if title := t.Preview(titleWidth); title != "" {
		return title
	}
	return "New transcript"
}

// enforceLimit removes the oldest transcripts past MaxTranscripts.
func (s *TranscriptStore) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxTranscripts {
		return
	}
	// List is newest first.
	for _, m := range metas[s.MaxTranscripts:] {
		_ = s.Delete(m.ID)
	}
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a transcript by ID or by a unique ID prefix.
func (s *TranscriptStore) Load(idOrPrefix string) (*Transcript, error) {
	id, err := s.Resolve(idOrPrefix)
	if err != nil {
		return nil, err
	}
	return s.load(id)
}

func (s *TranscriptStore) load(id string) (*Transcript, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrTranscriptNotFound
		}
		return nil, err
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode transcript %s: %w", id, err)
	}
	return &t, nil
}

// Resolve expands a unique ID prefix to the full transcript ID.
func (s *TranscriptStore) Resolve(idOrPrefix string) (string, error) {
	idOrPrefix = strings.ToLower(strings.TrimSpace(idOrPrefix))
	if idOrPrefix == "" {
		return "", ErrInvalidID
	}
	if _, err := uuid.Parse(idOrPrefix); err == nil {
		return idOrPrefix, nil
	}
	if strings.ContainsAny(idOrPrefix, `/\.`) {
		return "", ErrInvalidID
	}

	ids, err := s.ids()
	if err != nil {
		return "", err
	}
	var match string
	for _, id := range ids {
		if strings.HasPrefix(id, idOrPrefix) {
			if match != "" {
				return "", fmt.Errorf("%w: %q", ErrAmbiguousID, idOrPrefix)
			}
			match = id
		}
	}
	if match == "" {
		return "", ErrTranscriptNotFound
	}
	return match, nil
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// List returns all saved transcripts, most recently updated first.
// Unreadable files are skipped.
func (s *TranscriptStore) List() ([]TranscriptMeta, error) {
	ids, err := s.ids()
	if err != nil {
		return nil, err
	}

	metas := make([]TranscriptMeta, 0, len(ids))
	for _, id := range ids {
		t, err := s.load(id)
		if err != nil {
			continue
		}
		metas = append(metas, TranscriptMeta{
			ID:         t.ID,
			Title:      t.Title,
			Model:      t.Model,
			CreatedAt:  t.CreatedAt,
			UpdatedAt:  t.UpdatedAt,
			EntryCount: len(t.Entries),
			Preview:    t.Preview(previewWidth),
		})
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Search returns transcripts where the title or any entry contains query,
// case-insensitively. An empty query lists everything.
func (s *TranscriptStore) Search(query string) ([]TranscriptMeta, error) {
	all, err := s.List()
	if err != nil || query == "" {
		return all, err
	}

	query = strings.ToLower(query)
	var results []TranscriptMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Title), query) {
			results = append(results, meta)
			continue
		}
		t, err := s.load(meta.ID)
		if err != nil {
			continue
		}
		for _, e := range t.Entries {
			if strings.Contains(strings.ToLower(e.Content), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results, nil
}

// ids returns the IDs of every transcript file.
func (s *TranscriptStore) ids() ([]string, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if validateID(id) == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a transcript by ID or unique prefix.
func (s *TranscriptStore) Delete(idOrPrefix string) error {
	id, err := s.Resolve(idOrPrefix)
	if err != nil {
		return err
	}
	if err := os.Remove(s.filePath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrTranscriptNotFound
		}
		return err
	}
	return nil
}

// Clear removes every transcript and returns how many were removed.
func (s *TranscriptStore) Clear() (int, error) {
	ids, err := s.ids()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if err := os.Remove(s.filePath(id)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// filePath returns the file path for a transcript ID.
func (s *TranscriptStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// validateID rejects anything but a canonical UUID.
// SECURITY: IDs become file names; this blocks path traversal.
func validateID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil || u.String() != id {
		return ErrInvalidID
	}
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTranscriptNotFound is returned when a transcript doesn't exist.
	ErrTranscriptNotFound = errors.New("transcript not found")
	// ErrAmbiguousID is returned when a prefix matches several transcripts.
	ErrAmbiguousID = errors.New("ambiguous transcript ID")
	// ErrInvalidID is returned for IDs that are not UUIDs or prefixes of one.
	ErrInvalidID = errors.New("invalid transcript ID")
)

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList formats transcripts as a table for display.
func FormatList(metas []TranscriptMeta) string {
	if len(metas) == 0 {
		return "No transcripts found."
	}

	var sb strings.Builder
	sb.WriteString(pad("ID", 10) + pad("Updated", 18) + pad("Msgs", 6) + "Title\n")
	sb.WriteString(strings.Repeat("-", 74) + "\n")
	for _, m := range metas {
		sb.WriteString(pad(m.ID[:8], 10) +
			pad(m.UpdatedAt.Format("2006-01-02 15:04"), 18) +
			pad(fmt.Sprint(m.EntryCount), 6) +
			util.TruncateWidth(m.Title, 40) + "\n")
	}
	return sb.String()
}

// pad fills s with spaces to width display columns.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}
