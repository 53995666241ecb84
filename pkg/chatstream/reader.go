// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatstream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// ErrIncompleteStream is returned when the body ends before a Terminal frame.
var ErrIncompleteStream = errors.New("stream ended before terminal frame")

// maxLineBytes bounds a single SSE line.
const maxLineBytes = 1 << 20

// FrameCallback is invoked for every frame in arrival order. Returning an
// error stops the read.
type FrameCallback func(f Frame) error

// Result is the outcome of ReadAll.
type Result struct {
	// Text is the concatenated content of every Chunk.
	Text string

	// Chunks is the number of Chunk frames received.
	Chunks int

	// Terminal is the completion frame.
	Terminal *Terminal
}

// =============================================================================
// Reader
// =============================================================================

// Reader parses an SSE body into frames.
//
// # Description
//
// Reads line by line. Blank lines and ":" comments are skipped, as are the
// SSE fields this stream never uses (event:, id:, retry:). Every "data:"
// line is decoded with Decode. Reading stops after the first Terminal.
//
// # Thread Safety
//
// Reader is stateless and safe for concurrent use on different bodies.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ParseLine decodes one SSE line. It returns (nil, nil) for lines that
// carry no frame.
func (r *Reader) ParseLine(line string) (Frame, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return nil, nil
	}

	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return nil, nil
	}
	return Decode([]byte(strings.TrimSpace(payload)))
}

// Read streams frames from body into callback.
//
// # Outputs
//
//   - error: nil after a Terminal frame was delivered. ctx.Err() when the
//     context ends first. ErrMalformedFrame (wrapped) on an undecodable
//     payload. ErrIncompleteStream when the body ends without a Terminal.
//     Any error returned by callback or by the underlying reader.
//
// # Limitations
//
//   - The context is checked between lines. A read blocked on the network
//     unblocks when the body is closed, which net/http does when the
//     request context is cancelled.
func (r *Reader) Read(ctx context.Context, body io.Reader, callback FrameCallback) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := r.ParseLine(scanner.Text())
		if err != nil {
			return err
		}
		if frame == nil {
			continue
		}

		if err := callback(frame); err != nil {
			return err
		}
		if frame.Done() {
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrIncompleteStream
}

// ReadAll collects a whole stream into a Result. On error the partial
// Result is still returned.
func (r *Reader) ReadAll(ctx context.Context, body io.Reader) (*Result, error) {
	result := &Result{}
	var text strings.Builder

	err := r.Read(ctx, body, func(f Frame) error {
		switch v := f.(type) {
		case *Chunk:
			text.WriteString(v.Content)
			result.Chunks++
		case *Terminal:
			result.Terminal = v
		}
		return nil
	})

	result.Text = text.String()
	return result, err
}
