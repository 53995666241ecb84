// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/CompanionHaven/pkg/chatstream"
)

// =============================================================================
// Interface Definition
// =============================================================================

// FrameWriter writes chat stream frames to a client as Server-Sent Events.
//
// # Description
//
// Each frame becomes one "data: <json>\n\n" event and is flushed
// immediately so the client renders it without waiting for the buffer.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type FrameWriter interface {
	// WriteFrame encodes and flushes one frame.
	WriteFrame(f chatstream.Frame) error
}

// =============================================================================
// Implementation
// =============================================================================

type sseFrameWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewFrameWriter creates a FrameWriter on w.
//
// # Outputs
//
//   - FrameWriter: Ready for use.
//   - error: Non-nil if w does not implement http.Flusher.
func NewFrameWriter(w http.ResponseWriter) (FrameWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseFrameWriter{writer: w, flusher: flusher}, nil
}

func (w *sseFrameWriter) WriteFrame(f chatstream.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := chatstream.WriteFrame(w.writer, f); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders sets the headers every chat stream response carries.
// X-Accel-Buffering disables nginx proxy buffering.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ FrameWriter = (*sseFrameWriter)(nil)
