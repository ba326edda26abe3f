// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"strconv"
	"strings"
)

// =============================================================================
// TEST DEFINITIONS
// =============================================================================

// Test is one prompt in a benchmark suite.
type Test struct {
	Name      string
	Type      TestType
	Prompt    string
	MaxTokens int // 0 leaves the limit to the base configuration
	Evaluator QualityEvaluator
}

// TestType categorizes what a test measures.
type TestType string

const (
	TestTypeLatency     TestType = "latency"
	TestTypeThroughput  TestType = "throughput"
	TestTypeInstruction TestType = "instruction"
)

// QualityEvaluator scores a response from 0 to 100.
type QualityEvaluator func(response string) float64

// =============================================================================
// STANDARD TEST SUITE
// =============================================================================

// GetStandardTests returns the standard suite: one short answer for time to
// first token, two longer ones for throughput and one format check.
func GetStandardTests() []Test {
	return []Test{
		{
			Name:      "Latency",
			Type:      TestTypeLatency,
			Prompt:    "Reply with the single word: ready",
			MaxTokens: 8,
			Evaluator: keywordEvaluator("ready"),
		},
		{
			Name:      "Throughput",
			Type:      TestTypeThroughput,
			Prompt:    "Write a short paragraph explaining how TCP slow start works.",
			MaxTokens: 256,
			Evaluator: keywordEvaluator("congestion", "window", "ack"),
		},
		{
			Name:      "Code",
			Type:      TestTypeThroughput,
			Prompt:    "Write a Go function that reverses a string rune by rune.",
			MaxTokens: 256,
			Evaluator: keywordEvaluator("func", "rune", "return"),
		},
		{
			Name:      "Numbered list",
			Type:      TestTypeInstruction,
			Prompt:    "List exactly 3 HTTP methods. Format: 1. METHOD",
			MaxTokens: 64,
			Evaluator: numberedListEvaluator(3),
		},
	}
}

// GetQuickTestSuite returns one test of each type.
func GetQuickTestSuite() []Test {
	seen := make(map[TestType]bool)
	quick := make([]Test, 0, 3)
	for _, test := range GetStandardTests() {
		if !seen[test.Type] {
			seen[test.Type] = true
			quick = append(quick, test)
		}
	}
	return quick
}

// NewLatencyTest creates a latency test that passes on any answer.
func NewLatencyTest(name, prompt string) Test {
	return Test{
		Name:   name,
		Type:   TestTypeLatency,
		Prompt: prompt,
		Evaluator: func(response string) float64 {
			if strings.TrimSpace(response) != "" {
				return 100
			}
			return 0
		},
	}
}

// FilterTestsByType returns only the tests of a given type.
func FilterTestsByType(tests []Test, testType TestType) []Test {
	filtered := make([]Test, 0, len(tests))
	for _, test := range tests {
		if test.Type == testType {
			filtered = append(filtered, test)
		}
	}
	return filtered
}

// =============================================================================
// EVALUATORS
// =============================================================================

// keywordEvaluator scores the share of keywords present, case-insensitively.
func keywordEvaluator(keywords ...string) QualityEvaluator {
	return func(response string) float64 {
		if len(keywords) == 0 {
			return 100
		}
		lower := strings.ToLower(response)
		found := 0
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found++
			}
		}
		return float64(found) / float64(len(keywords)) * 100
	}
}

// numberedListEvaluator scores a "1. 2. 3." list of exactly n items.
func numberedListEvaluator(n int) QualityEvaluator {
	return func(response string) float64 {
		if n <= 0 {
			return 0
		}
		per := 75.0 / float64(n)
		score := 0.0
		for i := 1; i <= n; i++ {
			if strings.Contains(response, strconv.Itoa(i)+".") {
				score += per
			}
		}
		if !strings.Contains(response, strconv.Itoa(n+1)+".") {
			score += 25
		}
		return score
	}
}
