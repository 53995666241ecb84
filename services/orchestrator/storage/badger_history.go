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
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// Key layout. The NUL separator cannot appear in validated ids.
//
//	m\x00<sessionID>\x00<companionID>\x00<messageID> -> StoredMessage JSON
//	s\x00<sessionID>\x00<companionID>                -> ConversationSummary JSON
const (
	messagePrefix = "m\x00"
	summaryPrefix = "s\x00"
	keySep        = "\x00"
)

// maxConflictRetries bounds retries when two saves race on one conversation.
const maxConflictRetries = 3

func messageKeyPrefix(convKey string) []byte {
	return []byte(messagePrefix + convKey + keySep)
}

func messageKey(convKey, messageID string) []byte {
	return []byte(messagePrefix + convKey + keySep + messageID)
}

func summaryKeyPrefix(sessionID string) []byte {
	return []byte(summaryPrefix + sessionID + keySep)
}

func summaryKey(sessionID, companionID string) []byte {
	return []byte(summaryPrefix + sessionID + keySep + companionID)
}

// BadgerHistory is a HistoryStore on an embedded BadgerDB.
//
// # Description
//
// Every message and conversation summary is written with the configured
// retention as its TTL, so abandoned conversations expire on their own.
// A GCRunner reclaims the space they leave behind.
//
// # Thread Safety
//
// Safe for concurrent use. Saves racing on the same conversation are
// retried on transaction conflict.
type BadgerHistory struct {
	db        *badger.DB
	retention time.Duration
	gc        *GCRunner
	now       func() time.Time
}

// NewBadgerHistory opens the database and starts value log GC when
// configured.
func NewBadgerHistory(cfg BadgerConfig) (*BadgerHistory, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}

	h := &BadgerHistory{db: db, retention: cfg.Retention, now: time.Now}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		h.gc = runner
		runner.Start()
	}
	return h, nil
}

// Save implements HistoryStore.
func (h *BadgerHistory) Save(ctx context.Context, req *datatypes.SaveHistoryRequest) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = h.db.Update(func(txn *badger.Txn) error {
			return h.saveTxn(txn, req)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (h *BadgerHistory) saveTxn(txn *badger.Txn, req *datatypes.SaveHistoryRequest) error {
	convKey := conversationKey(req.SessionID, req.CompanionID)

	existing, err := loadMessages(txn, convKey)
	if err != nil {
		return err
	}
	merged := mergeMessages(existing, req.Messages, h.now())

	for _, msg := range req.Messages {
		stored := merged.byID[msg.ID]
		payload, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", msg.ID, err)
		}
		if err := txn.SetEntry(h.entry(messageKey(convKey, msg.ID), payload)); err != nil {
			return err
		}
	}

	summary := merged.summary(datatypes.ConversationID(req.SessionID, req.CompanionID), req.CompanionID)
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return txn.SetEntry(h.entry(summaryKey(req.SessionID, req.CompanionID), payload))
}

func (h *BadgerHistory) entry(key, value []byte) *badger.Entry {
	e := badger.NewEntry(key, value)
	if h.retention > 0 {
		e = e.WithTTL(h.retention)
	}
	return e
}

// History implements HistoryStore.
func (h *BadgerHistory) History(ctx context.Context, sessionID, companionID string) ([]datatypes.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	convKey := conversationKey(sessionID, companionID)

	var msgs []datatypes.StoredMessage
	err := h.db.View(func(txn *badger.Txn) error {
		var err error
		msgs, err = loadMessages(txn, convKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, datatypes.ConversationID(sessionID, companionID))
	}
	sortMessages(msgs)
	return msgs, nil
}

// Conversations implements HistoryStore.
func (h *BadgerHistory) Conversations(ctx context.Context, sessionID string) ([]datatypes.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summaries := []datatypes.ConversationSummary{}
	err := h.db.View(func(txn *badger.Txn) error {
		prefix := summaryKeyPrefix(sessionID)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 32})
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var s datatypes.ConversationSummary
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			}); err != nil {
				return fmt.Errorf("decode summary: %w", err)
			}
			summaries = append(summaries, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	sortSummaries(summaries)
	return summaries, nil
}

// Close stops GC and closes the database.
func (h *BadgerHistory) Close() error {
	if h.gc != nil {
		h.gc.Stop()
	}
	return h.db.Close()
}

func loadMessages(txn *badger.Txn, convKey string) ([]datatypes.StoredMessage, error) {
	prefix := messageKeyPrefix(convKey)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
	defer it.Close()

	var msgs []datatypes.StoredMessage
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var m datatypes.StoredMessage
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		}); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

var _ HistoryStore = (*BadgerHistory)(nil)
