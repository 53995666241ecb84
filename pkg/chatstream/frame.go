// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chatstream defines the wire contract of the companion chat stream.
//
// A reply travels as an ordered sequence of Server-Sent Events. Every event
// carries one Frame: zero or more Chunk frames holding pieces of the reply
// text, followed by exactly one Terminal frame holding completion metadata.
//
//	data: {"content":"Hey","done":false}
//
//	data: {"content":" there","done":false}
//
//	data: {"content":"","done":true,"companionName":"Mia","imageRef":null}
//
// The server encodes with WriteFrame and the client decodes with Reader, so
// both ends share one encode/decode pair instead of hand-built JSON.
package chatstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedFrame is returned when a data payload is not a valid frame.
var ErrMalformedFrame = errors.New("malformed frame")

// =============================================================================
// Frame Types
// =============================================================================

// Frame is one discrete unit of the stream: either *Chunk or *Terminal.
type Frame interface {
	// Done reports whether this is the terminal frame.
	Done() bool

	isFrame()
}

// Chunk carries a piece of reply text. Concatenating the Content of every
// Chunk in arrival order yields the full reply.
type Chunk struct {
	Content string
}

// Terminal closes the stream and carries side-channel metadata.
type Terminal struct {
	// CompanionID echoes the companion the reply came from.
	CompanionID string

	// CompanionName is the display name of the companion.
	CompanionName string

	// ImageRef is set when the server already resolved a photo for this
	// reply. Nil means the client decides whether to resolve one itself.
	ImageRef *string
}

func (*Chunk) Done() bool    { return false }
func (*Terminal) Done() bool { return true }
func (*Chunk) isFrame()      {}
func (*Terminal) isFrame()   {}

// HasImage reports whether the terminal frame carries a non-empty image.
func (t *Terminal) HasImage() bool {
	return t.ImageRef != nil && *t.ImageRef != ""
}

// =============================================================================
// Wire Encoding
// =============================================================================

type chunkWire struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

type terminalWire struct {
	Content       string  `json:"content"`
	Done          bool    `json:"done"`
	CompanionID   string  `json:"companionId,omitempty"`
	CompanionName string  `json:"companionName"`
	ImageRef      *string `json:"imageRef"`
}

// decodeWire accepts either shape. Pointers distinguish absent from zero.
type decodeWire struct {
	Content       *string `json:"content"`
	Done          *bool   `json:"done"`
	CompanionID   string  `json:"companionId"`
	CompanionName string  `json:"companionName"`
	ImageRef      *string `json:"imageRef"`
}

// Encode serializes a frame to its JSON payload, without SSE framing.
//
// # Description
//
// Chunk frames encode as {"content":...,"done":false}. Terminal frames
// encode as {"content":"","done":true,"companionName":...,"imageRef":...}
// with imageRef explicitly null when absent.
//
// # Inputs
//
//   - f: *Chunk or *Terminal. Must not be nil.
//
// # Outputs
//
//   - []byte: JSON payload.
//   - error: Non-nil for a nil or unknown frame.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case *Chunk:
		if v == nil {
			return nil, fmt.Errorf("encode frame: nil chunk")
		}
		return json.Marshal(chunkWire{Content: v.Content})
	case *Terminal:
		if v == nil {
			return nil, fmt.Errorf("encode frame: nil terminal")
		}
		ref := v.ImageRef
		if ref != nil && *ref == "" {
			ref = nil
		}
		return json.Marshal(terminalWire{
			Done:          true,
			CompanionID:   v.CompanionID,
			CompanionName: v.CompanionName,
			ImageRef:      ref,
		})
	default:
		return nil, fmt.Errorf("encode frame: unsupported frame type %T", f)
	}
}

// Decode parses a JSON payload produced by Encode.
//
// # Description
//
// A payload with "done": true decodes to *Terminal. A payload with
// "done": false and a "content" string decodes to *Chunk. Anything else
// (invalid JSON, missing "done", a chunk without content) is rejected.
//
// # Outputs
//
//   - Frame: *Chunk or *Terminal.
//   - error: Wraps ErrMalformedFrame on any rejection.
func Decode(data []byte) (Frame, error) {
	var w decodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if w.Done == nil {
		return nil, fmt.Errorf("%w: missing done flag", ErrMalformedFrame)
	}

	if *w.Done {
		t := &Terminal{
			CompanionID:   w.CompanionID,
			CompanionName: w.CompanionName,
		}
		if w.ImageRef != nil && *w.ImageRef != "" {
			ref := *w.ImageRef
			t.ImageRef = &ref
		}
		return t, nil
	}

	if w.Content == nil {
		return nil, fmt.Errorf("%w: chunk without content", ErrMalformedFrame)
	}
	return &Chunk{Content: *w.Content}, nil
}

// WriteFrame writes one frame as an SSE event: "data: <json>\n\n".
func WriteFrame(w io.Writer, f Frame) error {
	payload, err := Encode(f)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
