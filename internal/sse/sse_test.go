// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "data: {\"id\":\"1\",\"choices\":[{\"delta\":{\"content\":\"Hé\"}}]}\n\n" +
	": keep-alive\n\n" +
	"data: {\"id\":\"2\",\"choices\":[{\"delta\":{\"content\":\"llo ✓\"}}]}\n\n" +
	"event: close\n\n"

// feedAll pushes every chunk through a fresh Framer and collects the records.
func feedAll(t *testing.T, chunks ...[]byte) ([]string, *Framer) {
	t.Helper()
	f := &Framer{}
	var out []string
	for _, c := range chunks {
		recs, err := f.Feed(c)
		require.NoError(t, err)
		out = append(out, recs...)
	}
	return out, f
}

// =============================================================================
// FRAMER TESTS
// =============================================================================

func TestFramer_SingleChunk(t *testing.T) {
	records, f := feedAll(t, []byte(sampleStream))

	require.Len(t, records, 4)
	assert.Equal(t, ": keep-alive", records[1])
	assert.Equal(t, "event: close", records[3])
	assert.Zero(t, f.Pending())
}

// TestFramer_SplitAnywhere verifies that every two-way and a spread of
// three-way splits of the same stream yield the identical record sequence.
func TestFramer_SplitAnywhere(t *testing.T) {
	data := []byte(sampleStream)
	want, _ := feedAll(t, data)

	for i := 0; i <= len(data); i++ {
		got, f := feedAll(t, data[:i], data[i:])
		require.Equal(t, want, got, "split at %d", i)
		require.Zero(t, f.Pending(), "split at %d", i)
	}

	for i := 0; i <= len(data); i += 3 {
		for j := i; j <= len(data); j += 7 {
			got, _ := feedAll(t, data[:i], data[i:j], data[j:])
			require.Equal(t, want, got, "split at %d/%d", i, j)
		}
	}
}

func TestFramer_ByteAtATime(t *testing.T) {
	data := []byte(sampleStream)
	want, _ := feedAll(t, data)

	chunks := make([][]byte, len(data))
	for i := range data {
		chunks[i] = data[i : i+1]
	}
	got, _ := feedAll(t, chunks...)
	assert.Equal(t, want, got)
}

func TestFramer_NeverRedeliversRecords(t *testing.T) {
	f := &Framer{}

	recs, err := f.Feed([]byte("data: a\n\ndata: b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"data: a"}, recs)
	assert.Equal(t, len("data: b"), f.Pending())

	recs, err = f.Feed([]byte("\n\ndata: c\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"data: b", "data: c"}, recs)
	assert.Zero(t, f.Pending())
}

func TestFramer_CRLFDelimiters(t *testing.T) {
	got, _ := feedAll(t, []byte("data: a\r"), []byte("\n\r\ndata: b\r\n\r\n"))
	assert.Equal(t, []string{"data: a", "data: b"}, got)
}

func TestFramer_MalformedChunkIsSoft(t *testing.T) {
	f := &Framer{}

	recs, err := f.Feed([]byte("data: a\n\ndata: b"))
	require.NoError(t, err)
	require.Equal(t, []string{"data: a"}, recs)

	recs, err = f.Feed([]byte{0xff, 0xfe, '\n', '\n'})
	require.ErrorIs(t, err, ErrMalformedChunk)
	assert.Empty(t, recs)
	assert.Equal(t, len("data: b"), f.Pending(), "carry must survive a bad chunk")

	recs, err = f.Feed([]byte("\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"data: b"}, recs)
}

func TestFramer_RuneSplitAcrossChunks(t *testing.T) {
	euro := []byte("€") // 3 bytes
	first := append([]byte("data: "), euro[:2]...)
	second := append(euro[2:], []byte("\n\n")...)

	got, _ := feedAll(t, first, second)
	assert.Equal(t, []string{"data: €"}, got)
}

func TestFramer_BrokenRuneInCarryIsDropped(t *testing.T) {
	euro := []byte("€")
	f := &Framer{}

	_, err := f.Feed(append([]byte("data: x"), euro[:2]...))
	require.NoError(t, err)

	_, err = f.Feed([]byte("y\n\n"))
	require.ErrorIs(t, err, ErrMalformedChunk)

	recs, err := f.Feed([]byte("z\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"data: xz"}, recs)
}

func TestFramer_ResetDiscardsPartialRecord(t *testing.T) {
	f := &Framer{}
	recs, err := f.Feed([]byte("data: {\"id\":\"par"))
	require.NoError(t, err)
	assert.Empty(t, recs)

	assert.Equal(t, 16, f.Reset())
	assert.Zero(t, f.Pending())
}

func TestFramer_EmptyChunk(t *testing.T) {
	f := &Framer{}
	recs, err := f.Feed(nil)
	require.NoError(t, err)
	assert.Nil(t, recs)
}

// =============================================================================
// CLASSIFIER TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   Event
	}{
		{"data payload", `data: {"id":"1"}`, Event{Kind: KindData, Data: `{"id":"1"}`}},
		{"data without space", `data:{"id":"1"}`, Event{Kind: KindData, Data: `{"id":"1"}`}},
		{"payload kept verbatim", "data:  padded ", Event{Kind: KindData, Data: " padded "}},
		{"done sentinel", "data: [DONE]", Event{Kind: KindClose}},
		{"close event", "event: close", Event{Kind: KindClose}},
		{"comment", ": ping", Event{Kind: KindIgnored}},
		{"other field", "id: 42", Event{Kind: KindIgnored}},
		{"sentinel lookalike", "data: [DONE] ", Event{Kind: KindData, Data: "[DONE] "}},
		{"invalid json still data", "data: {not valid json}", Event{Kind: KindData, Data: "{not valid json}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.record))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "data", KindData.String())
	assert.Equal(t, "close", KindClose.String())
	assert.Equal(t, "ignored", KindIgnored.String())
}
