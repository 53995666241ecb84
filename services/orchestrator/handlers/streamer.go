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
	"context"
	"math/rand/v2"
	"time"

	"github.com/AleutianAI/CompanionHaven/pkg/chatstream"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/observability"
)

// Typing delay bounds between chunk frames.
const (
	MinTypingDelay = 30 * time.Millisecond
	MaxTypingDelay = 80 * time.Millisecond
)

// Pacer spaces out chunk frames to look like live typing.
type Pacer interface {
	// Wait blocks for one inter-frame delay or until ctx ends.
	Wait(ctx context.Context) error
}

// TypingPacer waits a uniformly random duration in [Min, Max].
type TypingPacer struct {
	Min time.Duration
	Max time.Duration
}

// NewTypingPacer returns a pacer with the default 30-80ms bounds.
func NewTypingPacer() TypingPacer {
	return TypingPacer{Min: MinTypingDelay, Max: MaxTypingDelay}
}

// Wait implements Pacer.
func (p TypingPacer) Wait(ctx context.Context) error {
	d := p.Min
	if p.Max > p.Min {
		d += rand.N(p.Max - p.Min + 1)
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoPacer never waits. Used in tests and for non-interactive clients.
type NoPacer struct{}

// Wait implements Pacer.
func (NoPacer) Wait(ctx context.Context) error { return ctx.Err() }

// StreamReply emits text as chunk frames followed by exactly one terminal
// frame.
//
// # Description
//
// Splits text with chatstream.Tokenize and writes one Chunk per token,
// pacing between chunks. The terminal frame follows the last chunk
// without a delay. Emission stops at the first write error or when ctx
// ends; the remaining frames are dropped and never resent.
//
// # Outputs
//
//   - int: Number of frames written, terminal included.
//   - error: The write error or ctx.Err() that stopped emission, or nil.
func StreamReply(ctx context.Context, w FrameWriter, pacer Pacer, endpoint observability.Endpoint, text string, terminal *chatstream.Terminal) (int, error) {
	if pacer == nil {
		pacer = NoPacer{}
	}
	m := observability.DefaultMetrics

	written := 0
	for i, token := range chatstream.Tokenize(text) {
		if i > 0 {
			if err := pacer.Wait(ctx); err != nil {
				return written, err
			}
		} else if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := w.WriteFrame(&chatstream.Chunk{Content: token}); err != nil {
			return written, err
		}
		written++
		if m != nil {
			m.RecordFrame(endpoint, false)
		}
	}

	if err := ctx.Err(); err != nil {
		return written, err
	}
	if err := w.WriteFrame(terminal); err != nil {
		return written, err
	}
	written++
	if m != nil {
		m.RecordFrame(endpoint, true)
	}
	return written, nil
}
