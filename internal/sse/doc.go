// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse splits a chat-completions event stream into records and
// classifies each record.
//
// The server delivers the stream as arbitrarily sized network chunks. A chunk
// may hold zero, one or several complete records plus one incomplete trailing
// record, so the Framer keeps a carry-over buffer between calls and only ever
// hands out records whose terminating blank line has been seen.
//
// # Key Types
//
//   - Framer: incremental record splitter with carry-over buffer
//   - Event: classified record (data payload, close signal, or ignored)
//
// # Usage
//
//	var f sse.Framer
//	records, err := f.Feed(chunk)
//	if err != nil {
//	    // undecodable chunk, dropped; keep reading
//	}
//	for _, rec := range records {
//	    ev := sse.Classify(rec)
//	    switch ev.Kind {
//	    case sse.KindData:
//	        handle(ev.Data)
//	    case sse.KindClose:
//	        return
//	    }
//	}
//
// The data channel multiplexes its own termination: a record "data: [DONE]"
// classifies as KindClose, never as KindData, so the sentinel is never handed
// to a JSON decoder.
package sse
