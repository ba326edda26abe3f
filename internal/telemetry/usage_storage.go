// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/util"
)

// =============================================================================
// USAGE STORAGE
// =============================================================================

// sessionTimeLayout is the time prefix of session IDs.
const sessionTimeLayout = "20060102-150405"

// ErrInvalidSessionID is returned for IDs that could name a path outside the
// ledger directory.
var ErrInvalidSessionID = errors.New("invalid usage session ID")

// UsageStorage persists sessions as one JSON file each.
type UsageStorage struct {
	dir string
}

// NewUsageStorage creates the storage, defaulting to ~/.rigrun-stream/usage.
func NewUsageStorage(dir string) (*UsageStorage, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(homeDir, ".rigrun-stream", "usage")
	}

	// SECURITY: Owner-only; prompt previews can be sensitive
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create usage directory: %w", err)
	}
	return &UsageStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (us *UsageStorage) Dir() string {
	return us.dir
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save persists a session.
func (us *UsageStorage) Save(session *SessionUsage) error {
	if session == nil {
		return nil
	}
	if err := validateSessionID(session.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(us.filePath(session.ID), data, 0600, 0700)
}

// Load reads a session.
func (us *UsageStorage) Load(sessionID string) (*SessionUsage, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(us.filePath(sessionID))
	if err != nil {
		return nil, err
	}

	var session SessionUsage
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode usage session %s: %w", sessionID, err)
	}
	return &session, nil
}

// List returns the IDs of sessions started within [from, to], oldest first.
func (us *UsageStorage) List(from, to time.Time) ([]string, error) {
	entries, err := os.ReadDir(us.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		id, started, ok := parseEntry(entry)
		if !ok {
			continue
		}
		if started.Before(from) || started.After(to) {
			continue
		}
		ids = append(ids, id)
	}

	// IDs start with the timestamp
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a session file.
func (us *UsageStorage) Delete(sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	return os.Remove(us.filePath(sessionID))
}

// DeleteBefore removes sessions started before the given time and returns
// how many were removed.
func (us *UsageStorage) DeleteBefore(before time.Time) (int, error) {
	entries, err := os.ReadDir(us.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		id, started, ok := parseEntry(entry)
		if !ok || !started.Before(before) {
			continue
		}
		if err := os.Remove(us.filePath(id)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Size returns the total size of stored sessions in bytes.
func (us *UsageStorage) Size() (int64, error) {
	entries, err := os.ReadDir(us.dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, entry := range entries {
		if _, _, ok := parseEntry(entry); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// Count returns the number of stored sessions.
func (us *UsageStorage) Count() (int, error) {
	entries, err := os.ReadDir(us.dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if _, _, ok := parseEntry(entry); ok {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (us *UsageStorage) filePath(id string) string {
	return filepath.Join(us.dir, id+".json")
}

// parseEntry extracts the session ID and start time from a file name.
// Files that are not session files report ok == false.
func parseEntry(entry os.DirEntry) (id string, started time.Time, ok bool) {
	if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
		return "", time.Time{}, false
	}
	id = strings.TrimSuffix(entry.Name(), ".json")
	started, err := sessionStart(id)
	if err != nil {
		return "", time.Time{}, false
	}
	return id, started, true
}

// sessionStart parses the local start time from an ID of the form
// YYYYMMDD-HHMMSS-suffix.
func sessionStart(id string) (time.Time, error) {
	if len(id) < len(sessionTimeLayout) {
		return time.Time{}, ErrInvalidSessionID
	}
	return time.ParseInLocation(sessionTimeLayout, id[:len(sessionTimeLayout)], time.Local)
}

// validateSessionID rejects IDs that are not plain file names.
// SECURITY: IDs become file names; this blocks path traversal.
func validateSessionID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\.`) || filepath.Base(id) != id {
		return ErrInvalidSessionID
	}
	if _, err := sessionStart(id); err != nil {
		return ErrInvalidSessionID
	}
	return nil
}
