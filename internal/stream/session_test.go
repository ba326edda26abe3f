// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-stream/internal/chat"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var quietLogger = log.New(io.Discard, "", 0)

// chunkEvent returns one SSE data record carrying content for choice 0.
func chunkEvent(t *testing.T, content string) string {
	t.Helper()
	payload := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1700000000,
		"model":   "gpt-3.5-turbo",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": content}}},
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return "data: " + string(b) + "\n\n"
}

// streamServer writes each part as its own flushed write, then either
// returns or, if hold is set, blocks until the client goes away.
func streamServer(t *testing.T, hold bool, parts ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for _, p := range parts {
			_, _ = io.WriteString(w, p)
			flusher.Flush()
		}
		if hold {
			<-r.Context().Done()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// recorder collects observer calls.
type recorder struct {
	mu     sync.Mutex
	tokens []string
	errs   []error
}

func (r *recorder) token(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, s)
}

func (r *recorder) err(e error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func newTestSession(srv *httptest.Server, rec *recorder, timeout time.Duration) *Session {
	return NewSession("sk-test-key", timeout,
		WithEndpoint(srv.URL),
		WithLogger(quietLogger),
		WithTokenObserver(rec.token),
		WithErrorObserver(rec.err),
	)
}

func testRequest() *chat.Request {
	return chat.NewRequest(chat.DefaultConfiguration(), []chat.Message{chat.UserMessage("Hello")})
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestConnect_SingleTokenThenSentinel(t *testing.T) {
	srv := streamServer(t, false, chunkEvent(t, "Hi"), "data: [DONE]\n\n")
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Hi", out[0].Content())
	assert.Equal(t, []string{"Hi"}, rec.tokens)
	assert.Empty(t, rec.errs)
	assert.NoError(t, s.Err())
	assert.Equal(t, StateFinished, s.State())

	stats := s.Stats()
	assert.True(t, stats.ClosedBySignal)
	assert.Equal(t, 1, stats.TokenCount)
	assert.Equal(t, "gpt-3.5-turbo", stats.Model)
}

func TestConnect_RecordSplitAcrossWrites(t *testing.T) {
	ev := chunkEvent(t, "split")
	mid := len(ev) / 2
	srv := streamServer(t, false, ev[:mid], ev[mid:], "event: close\n\n")
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "split", out[0].Content())
	assert.Equal(t, []string{"split"}, rec.tokens)
}

func TestConnect_PreservesArrivalOrder(t *testing.T) {
	words := []string{"The", " quick", " brown", " fox", " jumps"}
	var parts []string
	for _, w := range words {
		parts = append(parts, chunkEvent(t, w))
	}
	parts = append(parts, "data: [DONE]\n\n")
	srv := streamServer(t, false, strings.Join(parts, ""))
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "The quick brown fox jumps", chat.Text(out))
	assert.Equal(t, words, rec.tokens)
}

func TestConnect_CloseEventReleasesWhileServerHolds(t *testing.T) {
	srv := streamServer(t, true, chunkEvent(t, "a"), "event: close\n\n")
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	done := make(chan struct{})
	var out []chat.CompletionChunk
	go func() {
		defer close(done)
		out, _ = s.Connect(context.Background(), testRequest())
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Connect did not return after close signal")
	}
	require.Len(t, out, 1)
	assert.NoError(t, s.Err())
	assert.Empty(t, rec.errs, "self-cancellation must not be reported")
}

func TestConnect_RecordsAfterCloseAreDiscarded(t *testing.T) {
	srv := streamServer(t, false, chunkEvent(t, "kept")+"data: [DONE]\n\n"+chunkEvent(t, "late"))
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"kept"}, rec.tokens)
}

func TestConnect_EndOfBodyWithoutSentinel(t *testing.T) {
	srv := streamServer(t, false, chunkEvent(t, "one"), chunkEvent(t, "two"), `data: {"id":"trunc`)
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "onetwo", chat.Text(out))
	assert.NoError(t, s.Err())
	assert.Empty(t, rec.errs)

	stats := s.Stats()
	assert.False(t, stats.ClosedBySignal)
	assert.Equal(t, len(`data: {"id":"trunc`), stats.DiscardedBytes)
}

func TestConnect_SkipsUndecodablePayloads(t *testing.T) {
	srv := streamServer(t, false,
		chunkEvent(t, "A"),
		"data: {not json}\n\n",
		": heartbeat\n\n",
		`data: {"error":{"message":"overloaded"}}`+"\n\n",
		chunkEvent(t, "B"),
		"data: [DONE]\n\n",
	)
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "AB", chat.Text(out))
	assert.Empty(t, rec.errs)

	stats := s.Stats()
	assert.Equal(t, 2, stats.SkippedRecords)
	assert.Equal(t, 1, stats.IgnoredRecords)
}

func TestConnect_EmptyContentIsKeptButNotObserved(t *testing.T) {
	srv := streamServer(t, false, chunkEvent(t, ""), chunkEvent(t, "x"), "data: [DONE]\n\n")
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, []string{"x"}, rec.tokens)
}

// =============================================================================
// REQUEST TESTS
// =============================================================================

func TestConnect_SendsBearerAndStreamingBody(t *testing.T) {
	var (
		gotHeader http.Header
		gotBody   map[string]any
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	cfg := chat.DefaultConfiguration().WithModel("gpt-4o").WithTemperature(0.5)
	req := chat.NewRequest(cfg, []chat.Message{chat.SystemMessage("be brief"), chat.UserMessage("hi")})
	s := NewSession("  sk-test-key  ", time.Second, WithEndpoint(srv.URL), WithLogger(quietLogger))

	_, err := s.Connect(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer sk-test-key", gotHeader.Get("Authorization"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", gotHeader.Get("Accept"))
	assert.NotEmpty(t, gotHeader.Get("X-Request-Id"))

	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.Equal(t, true, gotBody["stream"])
	assert.Equal(t, 0.5, gotBody["temperature"])
	assert.NotContains(t, gotBody, "max_tokens")
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestConnect_NotConfigured(t *testing.T) {
	rec := &recorder{}
	s := NewSession("   ", time.Second, WithLogger(quietLogger), WithErrorObserver(rec.err))

	out, err := s.Connect(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Nil(t, out)
	assert.Empty(t, rec.errs)
	assert.Equal(t, StateFinished, s.State())
}

func TestConnect_SessionIsSingleUse(t *testing.T) {
	srv := streamServer(t, false, "data: [DONE]\n\n")
	s := newTestSession(srv, &recorder{}, time.Second)

	_, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)

	_, err = s.Connect(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrSessionUsed)
}

// =============================================================================
// TRANSPORT ERROR TESTS
// =============================================================================

func TestConnect_HTTPErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()
	rec := &recorder{}
	s := newTestSession(srv, rec, time.Second)

	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, out)
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, s.Err(), ErrAuthFailed)

	var apiErr *APIError
	require.True(t, errors.As(s.Err(), &apiErr))
	assert.Equal(t, "invalid_api_key", apiErr.Code)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestConnect_IdleTimeout(t *testing.T) {
	srv := streamServer(t, true, chunkEvent(t, "partial"))
	rec := &recorder{}
	s := newTestSession(srv, rec, 150*time.Millisecond)

	start := time.Now()
	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.Equal(t, "partial", chat.Text(out))
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrIdleTimeout)
	assert.ErrorIs(t, s.Err(), ErrIdleTimeout)
}

func TestConnect_CallerCancellationIsReported(t *testing.T) {
	srv := streamServer(t, true, chunkEvent(t, "a"))
	rec := &recorder{}
	s := newTestSession(srv, rec, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	out, err := s.Connect(ctx, testRequest())
	require.NoError(t, err)
	assert.Len(t, out, 1)
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, s.Err(), context.Canceled)
	assert.NotErrorIs(t, s.Err(), ErrIdleTimeout)
}

func TestConnect_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &recorder{}
	s := NewSession("sk-test-key", time.Second, WithEndpoint(url), WithLogger(quietLogger), WithErrorObserver(rec.err))
	out, err := s.Connect(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, rec.errs, 1)
	assert.Error(t, s.Err())
}

// connectWithin runs Connect and fails the test if it does not return in time.
func connectWithin(t *testing.T, s *Session, d time.Duration) []chat.CompletionChunk {
	t.Helper()
	type result struct {
		out []chat.CompletionChunk
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.Connect(context.Background(), testRequest())
		done <- result{out, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		return r.out
	case <-time.After(d):
		t.Fatal("Connect did not return")
		return nil
	}
}

func TestConnect_TokenObserverMayReadStats(t *testing.T) {
	srv := streamServer(t, false, chunkEvent(t, "Hi"), "data: [DONE]\n\n")

	var s *Session
	var fragments []int
	s = NewSession("sk-test-key", time.Second, WithEndpoint(srv.URL), WithLogger(quietLogger),
		WithTokenObserver(func(string) {
			fragments = append(fragments, s.Stats().Fragments)
			_ = s.Err()
		}))

	out := connectWithin(t, s, 3*time.Second)
	assert.Len(t, out, 1)
	assert.Equal(t, []int{1}, fragments)
}

func TestConnect_ErrorObserverMayReadErr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var s *Session
	var observed error
	s = NewSession("sk-test-key", time.Second, WithEndpoint(srv.URL), WithLogger(quietLogger),
		WithErrorObserver(func(error) {
			observed = s.Err()
			_ = s.Stats()
		}))

	connectWithin(t, s, 3*time.Second)
	require.Error(t, observed)
	assert.Equal(t, s.Err(), observed)
}

func TestDeliver_TokensBeforeCloseAreObservedBeforeRelease(t *testing.T) {
	s := NewSession("sk-test-key", time.Second, WithLogger(quietLogger))
	s.state.Store(int32(StateConnected))

	var openAtToken []bool
	s.onToken = func(string) {
		select {
		case <-s.gate.ch:
			openAtToken = append(openAtToken, true)
		default:
			openAtToken = append(openAtToken, false)
		}
	}

	s.deliver([]byte(chunkEvent(t, "a") + chunkEvent(t, "b") + "data: [DONE]\n\n" + chunkEvent(t, "late")))
	assert.Equal(t, []bool{false, false}, openAtToken)
	assert.Equal(t, StateFinished, s.State())
	assert.Len(t, s.fragments, 2)
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func TestComplete_SelfCancellationIsSilent(t *testing.T) {
	rec := &recorder{}
	s := NewSession("sk-test-key", time.Second, WithLogger(quietLogger), WithErrorObserver(rec.err), WithTokenObserver(rec.token))
	s.state.Store(int32(StateConnected))

	ctx, cancel := context.WithCancelCause(context.Background())
	s.cancel = cancel

	s.deliver([]byte(chunkEvent(t, "Hi") + "data: [DONE]\n\n"))
	require.Equal(t, StateFinished, s.State())

	// The transport observes the cancellation the session just issued.
	s.complete(ctx, context.Canceled)

	assert.NoError(t, s.Err())
	assert.Empty(t, rec.errs)
	assert.Equal(t, []string{"Hi"}, rec.tokens)
	assert.Equal(t, 1, s.gate.opens)
	assert.False(t, s.gate.open(), "gate must already be open")
}

func TestComplete_SelfCancellationBeforeFinish(t *testing.T) {
	rec := &recorder{}
	s := NewSession("sk-test-key", time.Second, WithLogger(quietLogger), WithErrorObserver(rec.err))
	s.state.Store(int32(StateDraining))

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errStreamClosed)
	s.complete(ctx, context.Canceled)

	assert.NoError(t, s.Err())
	assert.Empty(t, rec.errs)
	assert.Equal(t, StateFinished, s.State())
}

func TestDeliver_IgnoredAfterFinish(t *testing.T) {
	rec := &recorder{}
	s := NewSession("sk-test-key", time.Second, WithLogger(quietLogger), WithTokenObserver(rec.token))
	s.state.Store(int32(StateFinished))

	s.deliver([]byte(chunkEvent(t, "late")))
	assert.Empty(t, rec.tokens)
	assert.Empty(t, s.fragments)
}

func TestDeliver_MalformedChunkIsDropped(t *testing.T) {
	rec := &recorder{}
	s := NewSession("sk-test-key", time.Second, WithLogger(quietLogger), WithTokenObserver(rec.token))
	s.state.Store(int32(StateConnected))

	s.deliver([]byte{0xff, 0xfe, '\n', '\n'})
	s.deliver([]byte(chunkEvent(t, "ok")))

	assert.Equal(t, []string{"ok"}, rec.tokens)
	assert.Equal(t, 1, s.Stats().DroppedChunks)
	assert.Equal(t, StateDraining, s.State())
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestStatusError(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusForbidden, ErrAuthFailed},
		{http.StatusPaymentRequired, ErrInsufficientCredits},
		{http.StatusNotFound, ErrModelNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := statusError(tt.status, []byte(`{"error":{"message":"nope","code":42}}`))
			assert.ErrorIs(t, err, tt.sentinel)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "nope", apiErr.Message)
			assert.Equal(t, "42", apiErr.Code)
		})
	}

	err := statusError(http.StatusBadGateway, []byte("upstream down"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestKeyFingerprint(t *testing.T) {
	assert.Equal(t, "none", KeyFingerprint(""))
	fp := KeyFingerprint("sk-secret")
	assert.Len(t, fp, 8)
	assert.NotContains(t, fp, "sk-")
	assert.Equal(t, fp, KeyFingerprint("sk-secret"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "finished", StateFinished.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestStatsFormat(t *testing.T) {
	s := Stats{TotalTime: 2 * time.Second, TokenCount: 10, FirstTokenTime: 150 * time.Millisecond}
	assert.InDelta(t, 5.0, s.TokensPerSecond(), 0.001)
	assert.Equal(t, "2.0s | 10 tokens | 5.0 tok/s | TTFT 150ms", s.Format())
	assert.Zero(t, Stats{}.TokensPerSecond())
}

func TestStatsRecordFragment(t *testing.T) {
	text, stop := "hi", "stop"
	var s Stats
	s.StartTime = time.Now()
	s.recordFragment(&chat.CompletionChunk{Model: "m1", Choices: []chat.Choice{{Delta: chat.Delta{Content: &text}}}})
	s.recordFragment(&chat.CompletionChunk{Choices: []chat.Choice{{FinishReason: &stop}}})

	assert.Equal(t, 2, s.Fragments)
	assert.Equal(t, 1, s.TokenCount)
	assert.Equal(t, "m1", s.Model)
	assert.Equal(t, "stop", s.FinishReason)
	assert.NotZero(t, s.FirstTokenTime)
}
