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
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/CompanionHaven/pkg/intent"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/observability"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/persona"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/storage"
)

// ErrNoImage is returned when a companion has neither gallery nor avatar.
var ErrNoImage = errors.New("companion has no images")

// ImageResolver picks a photo for a companion.
//
// # Description
//
// Chooses uniformly from the companion's gallery, or returns the avatar
// when the gallery is empty. The photo type is echoed back; galleries are
// not tagged by type.
//
// # Thread Safety
//
// Safe for concurrent use if the store and picker are.
type ImageResolver struct {
	companions storage.CompanionStore
	picker     persona.Picker
}

// NewImageResolver creates an ImageResolver. A nil picker selects a random
// one.
func NewImageResolver(companions storage.CompanionStore, picker persona.Picker) *ImageResolver {
	if picker == nil {
		picker = persona.NewRandomPicker()
	}
	return &ImageResolver{companions: companions, picker: picker}
}

// Resolve returns an image for companionID.
//
// # Outputs
//
//   - datatypes.ImageResult: The chosen image.
//   - error: storage.ErrCompanionNotFound, ErrNoImage, or a store error.
func (r *ImageResolver) Resolve(ctx context.Context, companionID string, photoType intent.PhotoType) (datatypes.ImageResult, error) {
	profile, err := r.companions.Get(ctx, companionID)
	if err != nil {
		return datatypes.ImageResult{}, err
	}
	c := datatypes.NormalizeProfile(companionID, profile)

	ref, err := r.pick(c)
	if err != nil {
		return datatypes.ImageResult{}, err
	}
	if !photoType.Valid() {
		photoType = intent.PhotoSelfie
	}
	return datatypes.ImageResult{
		ImageURL:    ref,
		CompanionID: c.ID,
		Companion:   c.Name,
		PhotoType:   string(photoType),
	}, nil
}

// Pick chooses an image for an already resolved companion.
func (r *ImageResolver) Pick(c datatypes.Companion) (string, error) {
	return r.pick(c)
}

func (r *ImageResolver) pick(c datatypes.Companion) (string, error) {
	var gallery []string
	for _, g := range c.Gallery {
		if strings.TrimSpace(g) != "" {
			gallery = append(gallery, g)
		}
	}
	if len(gallery) > 0 {
		i := r.picker.Pick(len(gallery))
		if i < 0 || i >= len(gallery) {
			i = 0
		}
		return gallery[i], nil
	}
	if c.AvatarRef != "" {
		return c.AvatarRef, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoImage, c.ID)
}

// =============================================================================
// Handler
// =============================================================================

// ImageHandler serves POST /api/images/generate.
type ImageHandler struct {
	resolver *ImageResolver
}

// NewImageHandler creates an ImageHandler.
func NewImageHandler(resolver *ImageResolver) *ImageHandler {
	return &ImageHandler{resolver: resolver}
}

// HandleGenerateImage resolves a photo for the side-channel.
//
// # Outputs
//
//   - 200: {"data": ImageResult}
//   - 400: Missing or invalid companionId.
//   - 404: Unknown companion, or no gallery and no avatar.
//   - 500: Store failure.
func (h *ImageHandler) HandleGenerateImage(c *gin.Context) {
	const endpoint = observability.EndpointImages
	m := observability.DefaultMetrics

	var req datatypes.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Validate() != nil {
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
			m.RecordImageResolution(false)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "companionId is required"})
		return
	}

	result, err := h.resolver.Resolve(c.Request.Context(), req.CompanionID, intent.PhotoType(req.PhotoType))
	if m != nil {
		m.RecordImageResolution(err == nil)
	}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"data": result})
	case errors.Is(err, storage.ErrCompanionNotFound):
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeNotFound)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "companion not found"})
	case errors.Is(err, ErrNoImage):
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeNotFound)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "no images available for this companion"})
	default:
		slog.Error("Image resolution failed",
			"companion_id", req.CompanionID,
			"error", err)
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve image"})
	}
}
