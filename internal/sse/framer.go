// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// =============================================================================
// FRAMER
// =============================================================================

// ErrMalformedChunk is returned by Feed when a chunk is not valid UTF-8.
// The chunk contributes no records and the carry-over buffer is left as it
// was, so the caller can keep feeding.
var ErrMalformedChunk = errors.New("sse: chunk is not valid UTF-8")

var (
	recordDelimiter = []byte("\n\n")
	crlf            = []byte("\r\n")
	lf              = []byte("\n")
)

// Framer splits a byte stream into complete event records.
//
// A record is complete once the blank line that follows it has been observed.
// Bytes after the last delimiter are carried over and prepended to the next
// chunk, so a record is delivered exactly once no matter where the chunk
// boundaries fall.
//
// Framer is not safe for concurrent use.
type Framer struct {
	carry   []byte
	scratch []byte
}

// Feed appends chunk to the carry-over buffer and returns every record that
// became complete. Records are returned with surrounding whitespace trimmed;
// empty records are skipped.
func (f *Framer) Feed(chunk []byte) ([]string, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(f.carry)+len(chunk))
	buf = append(buf, f.carry...)
	buf = append(buf, chunk...)

	if at, err := f.validate(buf); err != nil {
		// An incomplete rune at the end of the carry can never be completed
		// once the bytes that follow it are known to be invalid.
		if at < len(f.carry) {
			f.carry = f.carry[:at]
		}
		return nil, err
	}

	// A lone trailing '\r' stays in the buffer until the next chunk shows
	// whether it starts a CRLF pair.
	buf = bytes.ReplaceAll(buf, crlf, lf)

	var records []string
	for {
		idx := bytes.Index(buf, recordDelimiter)
		if idx < 0 {
			break
		}
		if rec := strings.TrimSpace(string(buf[:idx])); rec != "" {
			records = append(records, rec)
		}
		buf = buf[idx+len(recordDelimiter):]
	}

	f.carry = append(f.carry[:0], buf...)
	return records, nil
}

// Pending returns the number of carried-over bytes that do not yet form a
// complete record.
func (f *Framer) Pending() int {
	return len(f.carry)
}

// Reset discards the carry-over buffer. An incomplete trailing record cannot
// be classified safely, so it is dropped rather than flushed.
func (f *Framer) Reset() int {
	n := len(f.carry)
	f.carry = f.carry[:0]
	return n
}

// validate reports ErrMalformedChunk and the offset of the first invalid byte
// if buf holds invalid UTF-8. A multi-byte rune cut off at the end of buf is
// allowed: its remaining bytes arrive with the next chunk.
func (f *Framer) validate(buf []byte) (int, error) {
	if cap(f.scratch) < len(buf) {
		f.scratch = make([]byte, len(buf))
	}
	dst := f.scratch[:len(buf)]

	_, n, err := encoding.UTF8Validator.Transform(dst, buf, false)
	switch {
	case err == nil, errors.Is(err, transform.ErrShortSrc):
		return n, nil
	case errors.Is(err, encoding.ErrInvalidUTF8):
		return n, ErrMalformedChunk
	default:
		return n, err
	}
}
