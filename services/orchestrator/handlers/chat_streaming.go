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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CompanionHaven/pkg/chatstream"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/generation"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/observability"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/storage"
)

// ProviderHeader reports which tier produced a reply.
const ProviderHeader = "X-AI-Provider"

// =============================================================================
// Interface Definition
// =============================================================================

// ChatHandler serves companion chat replies.
//
// # Description
//
// Both endpoints share one pipeline: validate the request, look up the
// companion, select a reply through the generation tiers, then deliver
// it. The stream endpoint delivers it as SSE frames; the public endpoint
// returns it as one JSON document.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. No state is shared
// between requests.
type ChatHandler interface {
	// HandleCompanionChatStream serves POST /api/chat/stream.
	//
	// # Outputs
	//
	//   - 400 {"error"}: Missing companionId or message, or invalid
	//     fields. No stream is opened.
	//   - 500 {"error"}: Companion store failure or a response writer
	//     without flushing. No stream is opened.
	//   - 200 text/event-stream: Chunk frames then one Terminal frame.
	//     Once streaming starts, failures only close the stream early.
	HandleCompanionChatStream(c *gin.Context)

	// HandlePublicChat serves POST /api/chat/public.
	//
	// # Outputs
	//
	//   - 200 {"data": {"response", "companionId", "companion",
	//     "isPhotoRequest", "photoType"}} with the X-AI-Provider header.
	//   - 400 and 500 as for the stream endpoint.
	HandlePublicChat(c *gin.Context)
}

// ChatHandlerConfig tunes a ChatHandler.
type ChatHandlerConfig struct {
	// Pacer spaces chunk frames. Nil uses NewTypingPacer.
	Pacer Pacer

	// InlineImages attaches a gallery image to the terminal frame of a
	// photo request, so the client skips the side-channel.
	InlineImages bool
}

// =============================================================================
// Struct Definition
// =============================================================================

type chatHandler struct {
	companions   storage.CompanionStore
	selector     *generation.Selector
	images       *ImageResolver
	pacer        Pacer
	inlineImages bool
	tracer       trace.Tracer
}

// NewChatHandler creates a ChatHandler.
//
// # Inputs
//
//   - companions: Profile lookup. Must not be nil.
//   - selector: Reply tiers. Must not be nil.
//   - images: Used for inline images. May be nil when InlineImages is off.
//   - cfg: Pacing and inline image options.
//
// # Limitations
//
//   - Panics on nil companions or selector (programming errors).
func NewChatHandler(companions storage.CompanionStore, selector *generation.Selector, images *ImageResolver, cfg ChatHandlerConfig) ChatHandler {
	if companions == nil {
		panic("NewChatHandler: companions must not be nil")
	}
	if selector == nil {
		panic("NewChatHandler: selector must not be nil")
	}
	if cfg.Pacer == nil {
		cfg.Pacer = NewTypingPacer()
	}
	return &chatHandler{
		companions:   companions,
		selector:     selector,
		images:       images,
		pacer:        cfg.Pacer,
		inlineImages: cfg.InlineImages && images != nil,
		tracer:       otel.Tracer("haven.orchestrator.handlers.chat"),
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

func (h *chatHandler) HandleCompanionChatStream(c *gin.Context) {
	startTime := time.Now()
	const endpoint = observability.EndpointChatStream

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleCompanionChatStream")
	defer span.End()

	m := observability.DefaultMetrics
	if m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m != nil {
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, time.Since(startTime).Seconds(), success)
		}
	}()

	sel, ok := h.selectReply(ctx, c, endpoint, span)
	if !ok {
		return
	}

	writer, err := NewFrameWriter(c.Writer)
	if err != nil {
		slog.Error("Failed to create frame writer", "error", err)
		span.SetStatus(codes.Error, "frame writer unavailable")
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	terminal := &chatstream.Terminal{
		CompanionID:   sel.Companion.ID,
		CompanionName: sel.Companion.Name,
		ImageRef:      h.inlineImage(sel),
	}

	SetSSEHeaders(c.Writer)
	c.Header(ProviderHeader, providerName(sel))
	c.Status(http.StatusOK)

	frames, err := StreamReply(ctx, writer, h.pacer, endpoint, sel.Text, terminal)
	span.SetAttributes(attribute.Int("stream.frames", frames))
	if err != nil {
		// Headers are already sent, so the only signal left is closing the
		// stream early.
		if ctx.Err() != nil {
			if m != nil {
				m.RecordClientDisconnect(endpoint)
			}
			slog.Debug("Client went away mid-stream",
				"companion_id", sel.Companion.ID,
				"frames_written", frames)
		} else {
			if m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
			}
			slog.Warn("Stream write failed",
				"companion_id", sel.Companion.ID,
				"frames_written", frames,
				"error", err)
		}
		span.SetStatus(codes.Error, "stream interrupted")
		return
	}

	success = true
	slog.Info("Chat stream completed",
		"companion_id", sel.Companion.ID,
		"tier", sel.Tier,
		"frames", frames,
		"photo_intent", sel.IsPhotoIntent,
		"duration_ms", time.Since(startTime).Milliseconds())
}

func (h *chatHandler) HandlePublicChat(c *gin.Context) {
	const endpoint = observability.EndpointChatPublic

	ctx, span := h.tracer.Start(c.Request.Context(), "HandlePublicChat")
	defer span.End()

	sel, ok := h.selectReply(ctx, c, endpoint, span)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, ok)
	}
	if !ok {
		return
	}

	resp := datatypes.PublicChatResponse{
		Response:       sel.Text,
		CompanionID:    sel.Companion.ID,
		Companion:      sel.Companion.Name,
		IsPhotoRequest: sel.IsPhotoIntent,
	}
	if sel.IsPhotoIntent {
		resp.PhotoType = string(sel.PhotoType)
	}

	c.Header(ProviderHeader, providerName(sel))
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// selectReply runs validation, lookup and selection. On failure it has
// already written the error response and returns false.
func (h *chatHandler) selectReply(ctx context.Context, c *gin.Context, endpoint observability.Endpoint, span trace.Span) (generation.Selection, bool) {
	m := observability.DefaultMetrics

	var req datatypes.StreamChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Debug("Invalid chat request body", "error", err)
		span.SetStatus(codes.Error, "invalid request body")
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return generation.Selection{}, false
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return generation.Selection{}, false
	}

	span.SetAttributes(
		attribute.String("companion.id", req.CompanionID),
		attribute.Int("history.length", len(req.History)),
	)

	profile, err := h.companions.Get(ctx, req.CompanionID)
	if err != nil && !errors.Is(err, storage.ErrCompanionNotFound) {
		slog.Error("Companion lookup failed",
			"companion_id", req.CompanionID,
			"error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "companion lookup failed")
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load companion"})
		return generation.Selection{}, false
	}
	if profile == nil {
		slog.Debug("Unknown companion, using default profile", "companion_id", req.CompanionID)
	}

	sel := h.selector.Select(ctx, req.CompanionID, profile, req.Message, req.MoodOrDefault(), req.Conversation())
	return sel, true
}

// inlineImage returns a gallery image for photo replies when inline images
// are enabled. Any failure leaves the decision to the client.
func (h *chatHandler) inlineImage(sel generation.Selection) *string {
	if !h.inlineImages || !sel.IsPhotoIntent || !sel.Companion.Known {
		return nil
	}
	ref, err := h.images.Pick(sel.Companion)
	if err != nil {
		slog.Debug("No inline image available",
			"companion_id", sel.Companion.ID,
			"error", err)
		return nil
	}
	return &ref
}

func providerName(sel generation.Selection) string {
	if sel.Provider != "" {
		return sel.Provider
	}
	return generation.TierPersonality
}

var _ ChatHandler = (*chatHandler)(nil)
