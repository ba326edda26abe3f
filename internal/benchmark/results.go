// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

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
// RESULT TYPES
// =============================================================================

// Result holds the outcome of one suite run on one model.
type Result struct {
	ModelName       string        `json:"model_name"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Duration        time.Duration `json:"duration"`
	Tests           []TestResult  `json:"tests"`
	AvgTTFT         time.Duration `json:"avg_ttft"`
	AvgTokensPerSec float64       `json:"avg_tokens_per_sec"`
	AvgQualityScore float64       `json:"avg_quality_score"`
	TotalTokens     int           `json:"total_tokens"`
	PassedTests     int           `json:"passed_tests"`
	FailedTests     int           `json:"failed_tests"`
}

// TestResult holds the outcome of one test.
type TestResult struct {
	Name         string        `json:"name"`
	Type         TestType      `json:"type"`
	Status       TestStatus    `json:"status"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
	TTFT         time.Duration `json:"ttft"`
	TokensPerSec float64       `json:"tokens_per_sec"`
	TokenCount   int           `json:"token_count"`
	FinishReason string        `json:"finish_reason,omitempty"`
	QualityScore float64       `json:"quality_score"` // 0-100, -1 when not scored
	Response     string        `json:"response"`
	Error        string        `json:"error,omitempty"`
}

// TestStatus is the outcome of a test.
type TestStatus string

const (
	TestStatusPassed TestStatus = "passed"
	TestStatusFailed TestStatus = "failed"
)

// Comparison holds the results of several models run on the same suite.
type Comparison struct {
	Models    []string           `json:"models"`
	Results   map[string]*Result `json:"results"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Duration  time.Duration      `json:"duration"`
}

// =============================================================================
// RESULT STORAGE
// =============================================================================

// ErrNoResults is returned when no saved result matches a model.
var ErrNoResults = errors.New("no benchmark results")

// Storage saves results as JSON files, one per run.
type Storage struct {
	dir string
}

// NewStorage opens dir, creating it when missing.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create benchmark directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Save writes a result and returns its file name.
func (s *Storage) Save(result *Result) (string, error) {
	name := fmt.Sprintf("%s_%s.json", sanitizeFilename(result.ModelName), result.StartTime.Format("20060102-150405.000"))
	return name, s.write(name, result)
}

// SaveComparison writes a comparison and returns its file name.
func (s *Storage) SaveComparison(comparison *Comparison) (string, error) {
	name := fmt.Sprintf("comparison_%s.json", comparison.StartTime.Format("20060102-150405.000"))
	return name, s.write(name, comparison)
}

func (s *Storage) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal benchmark: %w", err)
	}
	if err := util.WriteFileAtomic(filepath.Join(s.dir, name), data, 0600, 0700); err != nil {
		return fmt.Errorf("write benchmark: %w", err)
	}
	return nil
}

// Load reads a saved result by file name.
func (s *Storage) Load(filename string) (*Result, error) {
	// SECURITY: Only plain file names inside the storage directory
	if filename != filepath.Base(filename) {
		return nil, fmt.Errorf("invalid benchmark file name %q", filename)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("read benchmark: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode benchmark %s: %w", filename, err)
	}
	return &result, nil
}

// List returns the saved single-model result files, newest first.
func (s *Storage) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read benchmark directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "comparison_") {
			continue
		}
		files = append(files, name)
	}

	// Names end with the start time
	sort.Slice(files, func(i, j int) bool {
		return stampOf(files[i]) > stampOf(files[j])
	})
	return files, nil
}

// GetLatestForModel returns the newest saved result for a model.
func (s *Storage) GetLatestForModel(modelName string) (*Result, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	prefix := sanitizeFilename(modelName) + "_"
	for _, file := range files {
		if strings.HasPrefix(file, prefix) && !strings.Contains(strings.TrimPrefix(file, prefix), "_") {
			return s.Load(file)
		}
	}
	return nil, fmt.Errorf("%w for model %s", ErrNoResults, modelName)
}

// stampOf returns the timestamp part of a result file name.
func stampOf(name string) string {
	name = strings.TrimSuffix(name, ".json")
	if i := strings.LastIndex(name, "_"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// sanitizeFilename replaces characters that are unsafe in file names.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', ' ', '*', '?', '<', '>', '|', '"', '_':
			return '-'
		}
		if r < 32 || r == 127 {
			return '-'
		}
		return r
	}, name)
}

// =============================================================================
// RESULT ANALYSIS
// =============================================================================

// GetFastestModel returns the model with the highest average tokens/sec.
func (c *Comparison) GetFastestModel() (string, *Result) {
	return c.best(func(a, b *Result) bool { return a.AvgTokensPerSec > b.AvgTokensPerSec },
		func(r *Result) bool { return r.AvgTokensPerSec > 0 })
}

// GetLowestLatencyModel returns the model with the lowest average TTFT.
func (c *Comparison) GetLowestLatencyModel() (string, *Result) {
	return c.best(func(a, b *Result) bool { return a.AvgTTFT < b.AvgTTFT },
		func(r *Result) bool { return r.AvgTTFT > 0 })
}

// GetHighestQualityModel returns the model with the best average quality.
func (c *Comparison) GetHighestQualityModel() (string, *Result) {
	return c.best(func(a, b *Result) bool { return a.AvgQualityScore > b.AvgQualityScore },
		func(r *Result) bool { return r.AvgQualityScore > 0 })
}

// best walks models in comparison order so ties go to the first listed.
func (c *Comparison) best(better func(a, b *Result) bool, eligible func(*Result) bool) (string, *Result) {
	var name string
	var winner *Result
	for _, model := range c.Models {
		r := c.Results[model]
		if r == nil || !eligible(r) {
			continue
		}
		if winner == nil || better(r, winner) {
			name, winner = model, r
		}
	}
	return name, winner
}

// =============================================================================
// SUMMARY GENERATION
// =============================================================================

// Summary returns a text summary of the result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Model: %s\n"+
			"Duration: %s\n"+
			"Tests: %d passed, %d failed\n"+
			"Avg TTFT: %s\n"+
			"Avg Speed: %s\n"+
			"Avg Quality: %s",
		r.ModelName,
		FormatDuration(r.Duration),
		r.PassedTests,
		r.FailedTests,
		FormatTTFT(r.AvgTTFT),
		FormatTokensPerSec(r.AvgTokensPerSec),
		FormatQualityScore(r.AvgQualityScore),
	)
}

// ComparisonSummary returns a text summary of the comparison.
func (c *Comparison) ComparisonSummary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Models tested: %d\n", len(c.Models))
	fmt.Fprintf(&sb, "Total duration: %s\n", FormatDuration(c.Duration))

	if name, r := c.GetFastestModel(); r != nil {
		fmt.Fprintf(&sb, "Fastest: %s (%s)\n", name, FormatTokensPerSec(r.AvgTokensPerSec))
	}
	if name, r := c.GetLowestLatencyModel(); r != nil {
		fmt.Fprintf(&sb, "Lowest latency: %s (%s)\n", name, FormatTTFT(r.AvgTTFT))
	}
	if name, r := c.GetHighestQualityModel(); r != nil {
		fmt.Fprintf(&sb, "Highest quality: %s (%s)\n", name, FormatQualityScore(r.AvgQualityScore))
	}
	return sb.String()
}
