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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/generation"
)

// HealthHandler returns GET /health. tiers lists the generative providers
// in chain order; the personality tier is always appended.
func HealthHandler(tiers []string) gin.HandlerFunc {
	all := append(append([]string(nil), tiers...), generation.TierPersonality)
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"tiers":  all,
		})
	}
}
