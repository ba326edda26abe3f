// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream runs one streaming chat completion over HTTP and hands the
// caller the ordered list of decoded fragments once the stream ends.
//
// A Session bridges two goroutines. The caller blocks in Connect on a
// one-shot completion gate. A delivery goroutine reads the response body as
// it arrives and pushes each chunk through the sse Framer and Classifier and
// the chat Decoder, appending fragments under a mutex. The gate opens exactly
// once, on whichever comes first:
//
//   - an "event: close" record or the "data: [DONE]" sentinel
//   - the end of the response body
//   - a transport error (connect failure, idle timeout, non-2xx status,
//     caller cancellation)
//
// # Key Types
//
//   - Session: single-use streaming exchange
//   - State: Idle, Connected, Draining, Finished
//   - Stats: time to first token, token count, skipped records
//   - APIError: non-2xx response from the service
//
// # Errors
//
// Transport errors are logged, passed to the error observer and kept for
// Err; they are never returned from Connect, which always hands back the
// fragments accumulated so far. The cancellation the session itself issues
// after a close signal is recognised and suppressed.
//
// # Usage
//
//	s := stream.NewSession(apiKey, 60*time.Second,
//	    stream.WithTokenObserver(func(tok string) { fmt.Print(tok) }))
//	chunks, err := s.Connect(ctx, chat.NewRequest(cfg, messages))
//	if err != nil {
//	    // request never left the process
//	}
//	if s.Err() != nil {
//	    // stream ended early; chunks holds what arrived
//	}
package stream
