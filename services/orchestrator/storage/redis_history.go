// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

const (
	redisHistoryPrefix       = "haven:history:"
	redisConversationsPrefix = "haven:conversations:"
)

// RedisConfig configures RedisHistory.
type RedisConfig struct {
	// URL is a redis:// URL. Takes precedence over Addr.
	URL string

	// Addr is host:port, used when URL is empty.
	Addr string

	// Retention is the expiry refreshed on every save. Zero disables it.
	Retention time.Duration
}

// RedisHistory is a HistoryStore on Redis.
//
// # Description
//
// Each conversation is a hash of message id to message JSON under
// haven:history:<conversationID>. Each session has a hash of companion id
// to summary JSON under haven:conversations:<sessionID>. Both keys get
// their expiry refreshed on every save.
//
// # Thread Safety
//
// Safe for concurrent use. Saves use optimistic WATCH transactions.
type RedisHistory struct {
	rdb       *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedisHistory connects and pings the server.
func NewRedisHistory(ctx context.Context, cfg RedisConfig) (*RedisHistory, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redis address is required")
		}
		opts = &redis.Options{Addr: cfg.Addr}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisHistoryFromClient(rdb, cfg.Retention), nil
}

// NewRedisHistoryFromClient wraps an existing client.
func NewRedisHistoryFromClient(rdb *redis.Client, retention time.Duration) *RedisHistory {
	return &RedisHistory{rdb: rdb, retention: retention, now: time.Now}
}

func historyKey(sessionID, companionID string) string {
	return redisHistoryPrefix + conversationKey(sessionID, companionID)
}

func conversationsKey(sessionID string) string {
	return redisConversationsPrefix + sessionID
}

// Save implements HistoryStore.
func (h *RedisHistory) Save(ctx context.Context, req *datatypes.SaveHistoryRequest) error {
	convID := datatypes.ConversationID(req.SessionID, req.CompanionID)
	hKey := historyKey(req.SessionID, req.CompanionID)
	cKey := conversationsKey(req.SessionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, hKey).Result()
		if err != nil {
			return err
		}
		existing, err := decodeMessages(raw)
		if err != nil {
			return err
		}
		merged := mergeMessages(existing, req.Messages, h.now())

		fields := make([]interface{}, 0, 2*len(req.Messages))
		for _, msg := range req.Messages {
			payload, err := json.Marshal(merged.byID[msg.ID])
			if err != nil {
				return fmt.Errorf("encode message %s: %w", msg.ID, err)
			}
			fields = append(fields, msg.ID, payload)
		}
		summary, err := json.Marshal(merged.summary(convID, req.CompanionID))
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hKey, fields...)
			pipe.HSet(ctx, cKey, req.CompanionID, summary)
			if h.retention > 0 {
				pipe.Expire(ctx, hKey, h.retention)
				pipe.Expire(ctx, cKey, h.retention)
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = h.rdb.Watch(ctx, txf, hKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// History implements HistoryStore.
func (h *RedisHistory) History(ctx context.Context, sessionID, companionID string) ([]datatypes.StoredMessage, error) {
	convID := datatypes.ConversationID(sessionID, companionID)
	raw, err := h.rdb.HGetAll(ctx, historyKey(sessionID, companionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, convID)
	}
	msgs, err := decodeMessages(raw)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	sortMessages(msgs)
	return msgs, nil
}

// Conversations implements HistoryStore.
func (h *RedisHistory) Conversations(ctx context.Context, sessionID string) ([]datatypes.ConversationSummary, error) {
	raw, err := h.rdb.HGetAll(ctx, conversationsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	summaries := make([]datatypes.ConversationSummary, 0, len(raw))
	for companionID, payload := range raw {
		var s datatypes.ConversationSummary
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, fmt.Errorf("decode summary for %s: %w", companionID, err)
		}
		summaries = append(summaries, s)
	}
	sortSummaries(summaries)
	return summaries, nil
}

// Close closes the client.
func (h *RedisHistory) Close() error {
	return h.rdb.Close()
}

func decodeMessages(raw map[string]string) ([]datatypes.StoredMessage, error) {
	msgs := make([]datatypes.StoredMessage, 0, len(raw))
	for id, payload := range raw {
		var m datatypes.StoredMessage
		if err := json.NewDecoder(strings.NewReader(payload)).Decode(&m); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", id, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

var _ HistoryStore = (*RedisHistory)(nil)
