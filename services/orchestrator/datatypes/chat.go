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

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes bounds a single message or history entry.
	MaxMessageContentBytes = 8 * 1024

	// MaxHistoryEntries bounds the history a client may send.
	MaxHistoryEntries = 200

	// HistoryWindow is how many recent turns reach a generation tier.
	HistoryWindow = 10
)

// Roles used in history entries and generation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// =============================================================================
// Validation
// =============================================================================

var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = chatValidate.RegisterValidation("mood", validateMood)
	_ = chatValidate.RegisterValidation("safeid", validateSafeID)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// IsSafeID reports whether id is free of control characters, which storage
// keys use as separators.
func IsSafeID(id string) bool {
	return !strings.ContainsFunc(id, unicode.IsControl)
}

func validateSafeID(fl validator.FieldLevel) bool {
	return IsSafeID(fl.Field().String())
}

func validateMood(fl validator.FieldLevel) bool {
	_, ok := ParseMood(fl.Field().String())
	return ok
}

// =============================================================================
// Requests
// =============================================================================

// HistoryEntry is one prior turn as sent by the client, most recent last.
type HistoryEntry struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"maxbytes"`
}

// StreamChatRequest is the body of POST /api/chat/stream and
// POST /api/chat/public.
type StreamChatRequest struct {
	CompanionID string         `json:"companionId" validate:"required,max=128"`
	Message     string         `json:"message" validate:"required,maxbytes"`
	Mood        string         `json:"mood,omitempty" validate:"mood"`
	History     []HistoryEntry `json:"history,omitempty" validate:"max=200,dive"`
}

// Validate checks the request against its struct tags.
func (r *StreamChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// MoodOrDefault returns the parsed mood, or DefaultMood when the value is
// empty or invalid. Call Validate first to reject invalid values.
func (r *StreamChatRequest) MoodOrDefault() Mood {
	m, ok := ParseMood(r.Mood)
	if !ok {
		return DefaultMood
	}
	return m
}

// Conversation converts the request history into generation context.
func (r *StreamChatRequest) Conversation() Conversation {
	return NewConversation(r.History)
}

// =============================================================================
// Generation Context
// =============================================================================

// Message is a role-tagged message handed to a generation backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is the history context given to both generation tiers.
type Conversation struct {
	// Window holds at most HistoryWindow recent turns, most recent last.
	Window []Message

	// Depth is the full number of turns the client reported, before
	// truncation.
	Depth int
}

// NewConversation keeps the last HistoryWindow entries of history and
// records its full length. Entries with blank content are dropped from
// the window but still count toward Depth. The input is not mutated.
func NewConversation(history []HistoryEntry) Conversation {
	c := Conversation{Depth: len(history)}

	start := len(history) - HistoryWindow
	if start < 0 {
		start = 0
	}
	for _, h := range history[start:] {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		role := RoleUser
		if h.Role == RoleAssistant {
			role = RoleAssistant
		}
		c.Window = append(c.Window, Message{Role: role, Content: h.Content})
	}
	return c
}

// PublicChatResponse is the data payload of POST /api/chat/public.
type PublicChatResponse struct {
	Response       string `json:"response"`
	CompanionID    string `json:"companionId"`
	Companion      string `json:"companion"`
	IsPhotoRequest bool   `json:"isPhotoRequest"`
	PhotoType      string `json:"photoType,omitempty"`
}
