// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// Senders of a stored history message.
const (
	SenderUser      = "user"
	SenderCompanion = "companion"
)

// StoredMessage is one turn persisted to the history sink.
type StoredMessage struct {
	ID        string    `json:"id" validate:"required,max=128,safeid"`
	Sender    string    `json:"sender" validate:"required,oneof=user companion"`
	Content   string    `json:"content" validate:"maxbytes"`
	ImageURL  string    `json:"imageUrl,omitempty" validate:"max=2048"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaveHistoryRequest is the body of POST /api/chat/public/save.
type SaveHistoryRequest struct {
	SessionID   string          `json:"sessionId" validate:"required,max=128,safeid"`
	CompanionID string          `json:"companionId" validate:"required,max=128,safeid"`
	Messages    []StoredMessage `json:"messages" validate:"required,min=1,max=50,dive"`
}

// Validate checks the request against its struct tags.
func (r *SaveHistoryRequest) Validate() error {
	return chatValidate.Struct(r)
}

// ConversationID derives the history key for a session and companion.
func ConversationID(sessionID, companionID string) string {
	return sessionID + "-" + companionID
}

// ConversationSummary describes one stored conversation.
type ConversationSummary struct {
	ConversationID string    `json:"conversationId"`
	CompanionID    string    `json:"companionId"`
	LastMessage    string    `json:"lastMessage"`
	MessageCount   int       `json:"messageCount"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// =============================================================================
// Images
// =============================================================================

// ImageRequest is the body of POST /api/images/generate.
type ImageRequest struct {
	CompanionID string `json:"companionId" validate:"required,max=128"`
	PhotoType   string `json:"photoType,omitempty" validate:"omitempty,max=32"`
}

// Validate checks the request against its struct tags.
func (r *ImageRequest) Validate() error {
	return chatValidate.Struct(r)
}

// ImageResult is the data payload of a successful image resolution.
type ImageResult struct {
	ImageURL    string `json:"imageUrl"`
	CompanionID string `json:"companionId"`
	Companion   string `json:"companion"`
	PhotoType   string `json:"photoType"`
}
