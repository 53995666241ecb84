// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides the companion catalogue and the conversation
// history sink used by the chat server.
//
// The catalogue is read-only for the chat pipeline: it maps a companion id
// to its stored profile. History is an upsert-by-id sink for turns that
// clients persist after a stream completes. Two history backends exist:
// BadgerDB (embedded, default) and Redis.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// ErrCompanionNotFound is returned when a companion id is not in the
// catalogue.
var ErrCompanionNotFound = errors.New("companion not found")

// ErrConversationNotFound is returned when no history exists for a
// conversation.
var ErrConversationNotFound = errors.New("conversation not found")

// conversationKey identifies a conversation inside the stores. Unlike the
// wire ConversationID it cannot collide across (session, companion) pairs.
func conversationKey(sessionID, companionID string) string {
	return sessionID + keySep + companionID
}

// CompanionStore looks up companion profiles.
type CompanionStore interface {
	// Get returns a copy of the profile for id, or ErrCompanionNotFound.
	Get(ctx context.Context, id string) (*datatypes.CompanionProfile, error)
}

// HistoryStore persists conversation turns.
type HistoryStore interface {
	// Save upserts every message of req by message id.
	Save(ctx context.Context, req *datatypes.SaveHistoryRequest) error

	// History returns the turns of one conversation ordered by creation
	// time, or ErrConversationNotFound.
	History(ctx context.Context, sessionID, companionID string) ([]datatypes.StoredMessage, error)

	// Conversations lists the conversations of a session, most recently
	// updated first. An unknown session yields an empty list.
	Conversations(ctx context.Context, sessionID string) ([]datatypes.ConversationSummary, error)

	// Close releases the backend.
	Close() error
}

// Backend names accepted by NewHistoryStore.
const (
	HistoryBackendBadger = "badger"
	HistoryBackendRedis  = "redis"
)

// HistoryConfig selects and configures a history backend.
type HistoryConfig struct {
	// Backend is HistoryBackendBadger (default) or HistoryBackendRedis.
	Backend string

	Badger BadgerConfig
	Redis  RedisConfig
}

// NewHistoryStore opens the configured backend.
func NewHistoryStore(ctx context.Context, cfg HistoryConfig) (HistoryStore, error) {
	switch cfg.Backend {
	case "", HistoryBackendBadger:
		return NewBadgerHistory(cfg.Badger)
	case HistoryBackendRedis:
		return NewRedisHistory(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
