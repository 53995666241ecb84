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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/middleware"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/observability"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/storage"
)

// HistoryHandler serves the conversation history sink.
type HistoryHandler struct {
	store storage.HistoryStore
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(store storage.HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// HandleSave serves POST /api/chat/public/save. Messages are upserted by
// id, so a client may resend a turn after its image resolves.
func (h *HistoryHandler) HandleSave(c *gin.Context) {
	const endpoint = observability.EndpointHistory
	m := observability.DefaultMetrics

	var req datatypes.SaveHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = middleware.GetSessionID(c)
	}
	if err := req.Validate(); err != nil {
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	err := h.store.Save(c.Request.Context(), &req)
	if m != nil {
		m.RecordHistoryWrite(err == nil)
	}
	if err != nil {
		slog.Error("Failed to save history",
			"companion_id", req.CompanionID,
			"messages", len(req.Messages),
			"error", err)
		if m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleHistory serves GET /api/chat/public/history/:companionId.
func (h *HistoryHandler) HandleHistory(c *gin.Context) {
	companionID := c.Param("companionId")
	sessionID := sessionFromQuery(c)
	if !datatypes.IsSafeID(companionID) || !datatypes.IsSafeID(sessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session or companion id"})
		return
	}

	msgs, err := h.store.History(c.Request.Context(), sessionID, companionID)
	switch {
	case errors.Is(err, storage.ErrConversationNotFound):
		c.JSON(http.StatusOK, gin.H{"data": []datatypes.StoredMessage{}})
	case err != nil:
		slog.Error("Failed to load history",
			"companion_id", companionID,
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
	default:
		c.JSON(http.StatusOK, gin.H{"data": msgs})
	}
}

// HandleConversations serves GET /api/chat/public/conversations.
func (h *HistoryHandler) HandleConversations(c *gin.Context) {
	sessionID := sessionFromQuery(c)
	if !datatypes.IsSafeID(sessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	list, err := h.store.Conversations(c.Request.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to list conversations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func sessionFromQuery(c *gin.Context) string {
	if id := c.Query("sessionId"); id != "" {
		return id
	}
	return middleware.GetSessionID(c)
}
