// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/CompanionHaven/pkg/intent"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/observability"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/persona"
)

var tracer = otel.Tracer("haven.generation")

// TierPersonality names the rule-based tier in Selection.Tier.
const TierPersonality = "personality"

// Fallback reasons recorded in metrics.
const (
	fallbackUnconfigured     = "unconfigured"
	fallbackUnknownCompanion = "unknown_companion"
	fallbackUnavailable      = "unavailable"
)

// Selection is the final reply for one request.
type Selection struct {
	// Text is never empty.
	Text string

	// IsPhotoIntent depends only on the user's message.
	IsPhotoIntent bool

	// PhotoType is the requested photo style. Only meaningful when
	// IsPhotoIntent is true.
	PhotoType intent.PhotoType

	// Tier is "generative:<provider>" or TierPersonality.
	Tier string

	// Provider is the backend name when the generative tier answered.
	Provider string

	// Category is the engine category when the personality tier answered.
	Category persona.Category

	// Companion is the normalized profile the reply was generated for.
	Companion datatypes.Companion
}

// Generative reports whether a generative backend produced Text.
func (s Selection) Generative() bool {
	return s.Provider != ""
}

// Selector runs the reply tiers in order.
//
// # Description
//
// Normalizes the profile once, attempts the generative backend when it is
// configured and the companion is known, and otherwise (or on any failure)
// falls back to the personality engine. Photo intent is detected from the
// message text alone.
//
// # Thread Safety
//
// Safe for concurrent use if the backend and engine are.
type Selector struct {
	backend Backend
	engine  *persona.Engine
}

// NewSelector creates a Selector. A nil backend means the generative tier
// is never attempted. A nil engine uses a randomly seeded one.
func NewSelector(backend Backend, engine *persona.Engine) *Selector {
	if engine == nil {
		engine = persona.NewEngine(nil)
	}
	return &Selector{backend: backend, engine: engine}
}

// Select produces the reply for one message.
//
// # Inputs
//
//   - ctx: Bounds the generative attempt.
//   - companionID: The requested companion id, echoed on the result.
//   - profile: Profile from the store. Nil for an unknown companion.
//   - message: Raw user message. May be empty.
//   - mood: Requested mood.
//   - convo: History window and depth.
//
// # Outputs
//
//   - Selection: Always has non-empty Text. Backend errors are logged and
//     never returned.
func (s *Selector) Select(ctx context.Context, companionID string, profile *datatypes.CompanionProfile, message string, mood datatypes.Mood, convo datatypes.Conversation) Selection {
	ctx, span := tracer.Start(ctx, "generation.Select")
	defer span.End()

	companion := datatypes.NormalizeProfile(companionID, profile)
	sel := Selection{
		IsPhotoIntent: intent.IsPhotoRequest(message),
		PhotoType:     intent.DetectPhotoType(message),
		Companion:     companion,
	}

	if completion, ok := s.tryGenerative(ctx, companion, message, mood, convo); ok {
		sel.Text = completion.Text
		sel.Provider = completion.Provider
		sel.Tier = "generative:" + completion.Provider
	} else {
		reply := s.engine.Generate(companion, message, mood, convo)
		sel.Text = reply.Text
		sel.Category = reply.Category
		sel.Tier = TierPersonality
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordTier(sel.Tier)
	}
	span.SetAttributes(
		attribute.String("companion.id", companionID),
		attribute.Bool("companion.known", companion.Known),
		attribute.String("reply.tier", sel.Tier),
		attribute.Bool("reply.photo_intent", sel.IsPhotoIntent),
	)
	return sel
}

func (s *Selector) tryGenerative(ctx context.Context, c datatypes.Companion, message string, mood datatypes.Mood, convo datatypes.Conversation) (Completion, bool) {
	m := observability.DefaultMetrics

	if s.backend == nil || !s.backend.Configured() {
		if m != nil {
			m.RecordFallback(fallbackUnconfigured)
		}
		return Completion{}, false
	}
	if !c.Known {
		if m != nil {
			m.RecordFallback(fallbackUnknownCompanion)
		}
		return Completion{}, false
	}

	start := time.Now()
	completion, err := s.backend.Complete(ctx, c, message, mood, convo)
	if err == nil && completion.Text == "" {
		err = ErrUnavailable
	}
	if m != nil {
		m.RecordBackendLatency(time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			slog.Warn("Generative backend returned an unexpected error", "error", err)
		}
		slog.Warn("Falling back to personality engine",
			"companion_id", c.ID,
			"error", err)
		if m != nil {
			m.RecordFallback(fallbackUnavailable)
		}
		return Completion{}, false
	}
	return completion, true
}
