// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the chat server's HTTP endpoints.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/handlers"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/middleware"
)

// Dependencies are the handlers SetupRoutes registers.
type Dependencies struct {
	Chat    handlers.ChatHandler
	Images  *handlers.ImageHandler
	History *handlers.HistoryHandler

	// Tiers lists the generative providers reported by /health.
	Tiers []string

	// RateLimiter guards /api. Nil disables rate limiting.
	RateLimiter *middleware.RateLimiter

	// EnableMetrics registers /metrics.
	EnableMetrics bool
}

// SetupRoutes registers every endpoint on router.
//
//	GET  /health
//	GET  /metrics
//	POST /api/chat/stream
//	POST /api/chat/public
//	POST /api/chat/public/save
//	GET  /api/chat/public/history/:companionId
//	GET  /api/chat/public/conversations
//	POST /api/images/generate
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", handlers.HealthHandler(deps.Tiers))
	if deps.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	api.Use(middleware.SessionMiddleware())
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}

	chat := api.Group("/chat")
	{
		chat.POST("/stream", deps.Chat.HandleCompanionChatStream)
		chat.POST("/public", deps.Chat.HandlePublicChat)

		public := chat.Group("/public")
		public.POST("/save", deps.History.HandleSave)
		public.GET("/history/:companionId", deps.History.HandleHistory)
		public.GET("/conversations", deps.History.HandleConversations)
	}

	api.POST("/images/generate", deps.Images.HandleGenerateImage)
}
