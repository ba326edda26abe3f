// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/stream"
)

// =============================================================================
// STREAMING
// =============================================================================

// StreamFunc runs one streamed request and returns the assembled answer and
// its statistics. err is set when the request failed or the stream was cut
// short; text and stats then hold whatever arrived.
type StreamFunc func(ctx context.Context, cfg chat.Configuration, messages []chat.Message) (text string, stats stream.Stats, err error)

// SessionStreamer returns a StreamFunc that opens one stream.Session per
// request.
func SessionStreamer(apiKey, endpoint string, timeout time.Duration, logger *log.Logger) StreamFunc {
	return func(ctx context.Context, cfg chat.Configuration, messages []chat.Message) (string, stream.Stats, error) {
		opts := []stream.Option{stream.WithLogger(logger)}
		if endpoint != "" {
			opts = append(opts, stream.WithEndpoint(endpoint))
		}
		session := stream.NewSession(apiKey, timeout, opts...)

		chunks, err := session.Connect(ctx, chat.NewRequest(cfg, messages))
		if err != nil {
			return "", stream.Stats{}, err
		}
		return chat.Text(chunks), session.Stats(), session.Err()
	}
}

// =============================================================================
// BENCHMARK RUNNER
// =============================================================================

// Runner executes a test suite against one or more models.
// A Runner runs tests one after another and is not safe for concurrent use.
type Runner struct {
	stream StreamFunc
	base   chat.Configuration
	tests  []Test
}

// NewRunner creates a runner. base supplies every request parameter except
// the model; a nil tests slice selects the standard suite.
func NewRunner(fn StreamFunc, base chat.Configuration, tests []Test) *Runner {
	if tests == nil {
		tests = GetStandardTests()
	}
	return &Runner{stream: fn, base: base, tests: tests}
}

// Run executes the suite on a model. Failed tests are recorded, not returned.
func (r *Runner) Run(ctx context.Context, modelName string) *Result {
	result := &Result{
		ModelName: modelName,
		StartTime: time.Now(),
		Tests:     make([]TestResult, 0, len(r.tests)),
	}

	for _, test := range r.tests {
		result.Tests = append(result.Tests, r.runTest(ctx, modelName, test))
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.computeAggregates()
	return result
}

// runTest executes a single test.
func (r *Runner) runTest(ctx context.Context, modelName string, test Test) TestResult {
	tr := TestResult{
		Name:      test.Name,
		Type:      test.Type,
		StartTime: time.Now(),
	}

	if err := ctx.Err(); err != nil {
		tr.Status = TestStatusFailed
		tr.Error = err.Error()
		return tr
	}
	if test.Prompt == "" {
		tr.Status = TestStatusFailed
		tr.Error = "empty prompt"
		return tr
	}

	cfg := r.base.WithModel(modelName)
	if test.MaxTokens > 0 {
		cfg = cfg.WithMaxTokens(test.MaxTokens)
	}

	text, stats, err := r.stream(ctx, cfg, []chat.Message{chat.UserMessage(test.Prompt)})
	tr.EndTime = time.Now()
	tr.Duration = stats.TotalTime
	if tr.Duration == 0 {
		tr.Duration = tr.EndTime.Sub(tr.StartTime)
	}
	tr.TTFT = stats.FirstTokenTime
	tr.TokenCount = stats.TokenCount
	tr.TokensPerSec = stats.TokensPerSecond()
	tr.FinishReason = stats.FinishReason
	tr.Response = text

	if err != nil {
		tr.Status = TestStatusFailed
		tr.Error = err.Error()
		return tr
	}

	tr.QualityScore = -1
	if test.Evaluator != nil {
		tr.QualityScore = test.Evaluator(text)
	}
	tr.Status = TestStatusPassed
	return tr
}

// ErrAllModelsFailed is returned by RunComparison when no model passed a test.
var ErrAllModelsFailed = errors.New("all models failed to run")

// RunComparison runs the suite on each model. The comparison is returned even
// when some models fail; the error is set only when every model failed.
func (r *Runner) RunComparison(ctx context.Context, modelNames []string) (*Comparison, error) {
	comparison := &Comparison{
		Models:    append([]string(nil), modelNames...),
		Results:   make(map[string]*Result, len(modelNames)),
		StartTime: time.Now(),
	}

	succeeded := 0
	for _, modelName := range modelNames {
		result := r.Run(ctx, modelName)
		comparison.Results[modelName] = result
		if result.PassedTests > 0 {
			succeeded++
		}
	}

	comparison.EndTime = time.Now()
	comparison.Duration = comparison.EndTime.Sub(comparison.StartTime)

	if succeeded == 0 {
		return comparison, ErrAllModelsFailed
	}
	return comparison, nil
}

// =============================================================================
// RESULT COMPUTATION
// =============================================================================

// computeAggregates averages the metrics of passed tests.
func (r *Result) computeAggregates() {
	var totalTTFT time.Duration
	var totalTPS, totalQuality float64
	var ttftCount, tpsCount, qualityCount int

	r.PassedTests, r.FailedTests = 0, 0
	for _, test := range r.Tests {
		if test.Status != TestStatusPassed {
			r.FailedTests++
			continue
		}
		r.PassedTests++
		r.TotalTokens += test.TokenCount

		if test.TTFT > 0 {
			totalTTFT += test.TTFT
			ttftCount++
		}
		if test.TokensPerSec > 0 {
			totalTPS += test.TokensPerSec
			tpsCount++
		}
		// Tests without an evaluator score -1
		if test.QualityScore >= 0 {
			totalQuality += test.QualityScore
			qualityCount++
		}
	}

	if ttftCount > 0 {
		r.AvgTTFT = totalTTFT / time.Duration(ttftCount)
	}
	if tpsCount > 0 {
		r.AvgTokensPerSec = totalTPS / float64(tpsCount)
	}
	if qualityCount > 0 {
		r.AvgQualityScore = totalQuality / float64(qualityCount)
	}
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// FormatTTFT formats time to first token for display.
func FormatTTFT(d time.Duration) string {
	if d == 0 {
		return "N/A"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// FormatTokensPerSec formats tokens per second for display.
func FormatTokensPerSec(tps float64) string {
	if tps == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f t/s", tps)
}

// FormatQualityScore formats a quality score for display.
func FormatQualityScore(score float64) string {
	if score <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.0f%%", score)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "N/A"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}
