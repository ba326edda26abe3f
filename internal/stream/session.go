// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/rigrun-stream/internal/chat"
	"github.com/jeranaias/rigrun-stream/internal/sse"
)

// TokenObserver receives the incremental text of each fragment as it arrives.
type TokenObserver func(token string)

// ErrorObserver receives transport errors. It is never called for decode
// failures or for the session's own cancellation.
type ErrorObserver func(err error)

// Option configures a Session.
type Option func(*Session)

// WithTokenObserver sets the per-token callback.
func WithTokenObserver(fn TokenObserver) Option {
	return func(s *Session) { s.onToken = fn }
}

// WithErrorObserver sets the transport error callback.
func WithErrorObserver(fn ErrorObserver) Option {
	return func(s *Session) { s.onError = fn }
}

// WithEndpoint overrides the chat completions URL.
func WithEndpoint(url string) Option {
	return func(s *Session) { s.endpoint = url }
}

// WithHTTPClient overrides the HTTP client. The client's own Timeout, if any,
// applies on top of the session idle timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithLogger overrides the diagnostic logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session is a single-use streaming chat completions exchange.
//
// Connect may be called once. Fragments are written only by the delivery
// goroutine and read by the caller only after the completion gate opens.
type Session struct {
	apiKey     string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *log.Logger
	onToken    TokenObserver
	onError    ErrorObserver

	state atomic.Int32
	gate  *gate

	mu        sync.Mutex
	cancel    context.CancelCauseFunc
	watchdog  *time.Timer
	framer    sse.Framer
	fragments []chat.CompletionChunk
	stats     Stats
	err       error
}

// NewSession creates an idle session. timeout is the longest the session
// waits for the response or for the next bytes of the stream; zero means
// DefaultRequestTimeout.
func NewSession(apiKey string, timeout time.Duration, opts ...Option) *Session {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	s := &Session{
		apiKey:     strings.TrimSpace(apiKey),
		endpoint:   DefaultEndpoint,
		timeout:    timeout,
		httpClient: sharedStreamingClient,
		logger:     log.Default(),
		gate:       newGate(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Connect dispatches req and blocks until the stream ends, then returns the
// decoded fragments in arrival order.
//
// The returned error is non-nil only if the request was never sent. Errors
// after dispatch are reported through the error observer and Err, and
// Connect returns whatever arrived before them.
func (s *Session) Connect(ctx context.Context, req *chat.Request) ([]chat.CompletionChunk, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnected)) {
		return nil, ErrSessionUsed
	}

	httpReq, ctx, err := s.newRequest(ctx, req)
	if err != nil {
		s.state.Store(int32(StateFinished))
		s.gate.open()
		return nil, err
	}

	s.stats.StartTime = time.Now()
	go s.run(ctx, httpReq)
	s.gate.wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalTime = time.Since(s.stats.StartTime)
	out := make([]chat.CompletionChunk, len(s.fragments))
	copy(out, s.fragments)
	return out, nil
}

// Err returns the transport error that ended the stream, or nil if it ended
// by close signal, sentinel or a clean end of body. Valid after Connect.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns the statistics of the exchange. Valid after Connect.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// newRequest encodes req and builds the HTTP request bound to a cancellable
// context owned by the session.
func (s *Session) newRequest(parent context.Context, req *chat.Request) (*http.Request, context.Context, error) {
	if s.apiKey == "" {
		return nil, nil, ErrNotConfigured
	}
	if req == nil {
		return nil, nil, errors.New("nil request")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithCancelCause(parent)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel(nil)
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := setHeaders(httpReq, s.apiKey)
	s.logger.Printf("API Request: %s %s (model=%s, messages=%d, key=%s, id=%s)",
		httpReq.Method, httpReq.URL.Path, req.Model, len(req.Messages), KeyFingerprint(s.apiKey), requestID)

	s.mu.Lock()
	s.cancel = cancel
	s.watchdog = time.AfterFunc(s.timeout, func() { cancel(ErrIdleTimeout) })
	s.mu.Unlock()

	return httpReq, ctx, nil
}

// run is the delivery goroutine: it performs the exchange and feeds each
// chunk of the body through deliver until the stream ends.
func (s *Session) run(ctx context.Context, req *http.Request) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.complete(ctx, fmt.Errorf("request failed: %w", err))
		return
	}
	defer resp.Body.Close()

	s.logger.Printf("API Response: %d %s (%v)", resp.StatusCode, http.StatusText(resp.StatusCode), time.Since(s.stats.StartTime))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.complete(ctx, statusError(resp.StatusCode, readErrorBody(resp)))
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			s.deliver(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			s.complete(ctx, err)
			return
		}
		if s.State() == StateFinished {
			return
		}
	}
}

// deliver pushes one network chunk through framer, classifier and decoder.
// Observers run after the lock is released so they may call back into the
// session; delivery is serial, so token order is kept.
func (s *Session) deliver(chunk []byte) {
	tokens, closed := s.consume(chunk)
	if s.onToken != nil {
		for _, token := range tokens {
			s.onToken(token)
		}
	}
	if closed {
		s.mu.Lock()
		s.finishLocked()
		s.mu.Unlock()
	}
}

// consume appends the fragments of chunk and returns their non-empty
// contents, and whether a close event was seen. Records after the close
// event are dropped.
func (s *Session) consume(chunk []byte) (tokens []string, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) == StateFinished {
		return nil, false
	}
	s.state.CompareAndSwap(int32(StateConnected), int32(StateDraining))
	if s.watchdog != nil {
		s.watchdog.Reset(s.timeout)
	}

	records, err := s.framer.Feed(chunk)
	if err != nil {
		s.stats.DroppedChunks++
		return nil, false
	}

	for _, rec := range records {
		ev := sse.Classify(rec)
		switch ev.Kind {
		case sse.KindClose:
			s.stats.ClosedBySignal = true
			return tokens, true
		case sse.KindIgnored:
			s.stats.IgnoredRecords++
		case sse.KindData:
			d := chat.Decode(ev.Data)
			if d.Skipped() {
				s.stats.SkippedRecords++
				continue
			}
			if content := d.Chunk.Content(); content != "" {
				tokens = append(tokens, content)
			}
			s.fragments = append(s.fragments, d.Chunk)
			s.stats.recordFragment(&d.Chunk)
		}
	}
	return tokens, false
}

// complete handles the end of the exchange as seen by the transport: a clean
// end of body (err == nil), a transport error, or the error produced by the
// session's own cancellation, which is not a failure.
func (s *Session) complete(ctx context.Context, err error) {
	s.mu.Lock()
	if err != nil && !isSelfCancellation(ctx, err) && State(s.state.Load()) != StateFinished {
		if errors.Is(context.Cause(ctx), ErrIdleTimeout) {
			err = fmt.Errorf("%w: %w", ErrIdleTimeout, err)
		}
		s.err = err
		s.logger.Printf("stream error: %v", err)
	} else {
		err = nil
	}
	s.mu.Unlock()

	// The gate stays shut until the observer returns
	if err != nil && s.onError != nil {
		s.onError(err)
	}

	s.mu.Lock()
	s.finishLocked()
	s.mu.Unlock()
}

// finishLocked moves the session to Finished, releases the transport and
// opens the gate. It is idempotent. s.mu must be held.
func (s *Session) finishLocked() {
	if State(s.state.Swap(int32(StateFinished))) == StateFinished {
		return
	}

	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.cancel != nil {
		s.cancel(errStreamClosed)
	}
	s.stats.DiscardedBytes += s.framer.Reset()

	s.logger.Printf("stream finished: %d fragments, %d skipped records", len(s.fragments), s.stats.SkippedRecords)
	s.gate.open()
}
