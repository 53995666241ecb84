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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func saveReq(session, companion string, msgs ...datatypes.StoredMessage) *datatypes.SaveHistoryRequest {
	return &datatypes.SaveHistoryRequest{SessionID: session, CompanionID: companion, Messages: msgs}
}

func msg(id, sender, content string, offset time.Duration) datatypes.StoredMessage {
	return datatypes.StoredMessage{ID: id, Sender: sender, Content: content, CreatedAt: baseTime.Add(offset)}
}

func newBadgerTestStore(t *testing.T) *BadgerHistory {
	t.Helper()
	h, err := NewBadgerHistory(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func newRedisTestStore(t *testing.T) (*RedisHistory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := NewRedisHistoryFromClient(rdb, DefaultRetention)
	t.Cleanup(func() { h.Close() })
	return h, mr
}

// runHistoryContract exercises behaviour every HistoryStore must share.
func runHistoryContract(t *testing.T, newStore func(t *testing.T) HistoryStore) {
	ctx := context.Background()

	t.Run("save and read in order", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, saveReq("sess", "mia",
			msg("b", datatypes.SenderCompanion, "Hey you!", time.Second),
			msg("a", datatypes.SenderUser, "hey", 0),
		)))

		got, err := s.History(ctx, "sess", "mia")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, "b", got[1].ID)
		assert.True(t, got[0].CreatedAt.Equal(baseTime))
	})

	t.Run("upsert by id", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, saveReq("sess", "mia",
			msg("a", datatypes.SenderUser, "send me a selfie", 0),
			msg("b", datatypes.SenderCompanion, "Here you go", time.Second),
		)))

		updated := msg("b", datatypes.SenderCompanion, "Here you go", time.Second)
		updated.ImageURL = "/img/mia/1.jpg"
		require.NoError(t, s.Save(ctx, saveReq("sess", "mia", updated)))

		got, err := s.History(ctx, "sess", "mia")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "/img/mia/1.jpg", got[1].ImageURL)
	})

	t.Run("zero timestamp keeps stored time", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, saveReq("sess", "mia", msg("a", datatypes.SenderUser, "hi", 0))))

		again := datatypes.StoredMessage{ID: "a", Sender: datatypes.SenderUser, Content: "hi again"}
		require.NoError(t, s.Save(ctx, saveReq("sess", "mia", again)))

		got, err := s.History(ctx, "sess", "mia")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "hi again", got[0].Content)
		assert.True(t, got[0].CreatedAt.Equal(baseTime))
	})

	t.Run("unknown conversation", func(t *testing.T) {
		s := newStore(t)
		_, err := s.History(ctx, "nobody", "mia")
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("conversations summarize per companion", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, saveReq("sess", "mia",
			msg("1", datatypes.SenderUser, "hey", 0),
			msg("2", datatypes.SenderCompanion, "hi!", time.Second),
		)))
		require.NoError(t, s.Save(ctx, saveReq("sess", "elena",
			msg("3", datatypes.SenderUser, "hello", time.Minute),
		)))
		require.NoError(t, s.Save(ctx, saveReq("other", "mia",
			msg("4", datatypes.SenderUser, "not mine", 0),
		)))

		list, err := s.Conversations(ctx, "sess")
		require.NoError(t, err)
		require.Len(t, list, 2)

		assert.Equal(t, "elena", list[0].CompanionID)
		assert.Equal(t, "sess-elena", list[0].ConversationID)
		assert.Equal(t, 1, list[0].MessageCount)

		assert.Equal(t, "mia", list[1].CompanionID)
		assert.Equal(t, "hi!", list[1].LastMessage)
		assert.Equal(t, 2, list[1].MessageCount)
	})

	t.Run("hyphenated ids stay separate", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, saveReq("alice-mia", "luna",
			msg("1", datatypes.SenderUser, "from alice-mia", 0),
		)))
		require.NoError(t, s.Save(ctx, saveReq("alice", "mia-luna",
			msg("2", datatypes.SenderUser, "from alice", 0),
		)))

		got, err := s.History(ctx, "alice", "mia-luna")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "from alice", got[0].Content)

		got, err = s.History(ctx, "alice-mia", "luna")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "from alice-mia", got[0].Content)

		_, err = s.History(ctx, "alice", "mia")
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("empty session lists nothing", func(t *testing.T) {
		s := newStore(t)
		list, err := s.Conversations(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})
}

func TestBadgerHistory_Contract(t *testing.T) {
	runHistoryContract(t, func(t *testing.T) HistoryStore { return newBadgerTestStore(t) })
}

func TestRedisHistory_Contract(t *testing.T) {
	runHistoryContract(t, func(t *testing.T) HistoryStore {
		h, _ := newRedisTestStore(t)
		return h
	})
}

func TestBadgerHistory_EntriesCarryTTL(t *testing.T) {
	h := newBadgerTestStore(t)
	require.NoError(t, h.Save(context.Background(), saveReq("sess", "mia", msg("a", datatypes.SenderUser, "hi", 0))))

	err := h.db.View(func(txn *badger.Txn) error {
		for _, key := range [][]byte{messageKey(conversationKey("sess", "mia"), "a"), summaryKey("sess", "mia")} {
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			assert.NotZero(t, item.ExpiresAt(), "key %q has no TTL", key)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestBadgerHistory_ContextCancelled(t *testing.T) {
	h := newBadgerTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Save(ctx, saveReq("sess", "mia", msg("a", datatypes.SenderUser, "hi", 0)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBadgerHistory_PersistsAcrossReopen(t *testing.T) {
	cfg := DefaultBadgerConfig(t.TempDir())
	cfg.SyncWrites = false
	cfg.GCInterval = time.Hour

	h, err := NewBadgerHistory(cfg)
	require.NoError(t, err)
	require.NoError(t, h.Save(context.Background(), saveReq("sess", "mia", msg("a", datatypes.SenderUser, "hi", 0))))
	require.NoError(t, h.Close())

	reopened, err := NewBadgerHistory(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.History(context.Background(), "sess", "mia")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRedisHistory_ExpiryRefreshed(t *testing.T) {
	h, mr := newRedisTestStore(t)
	require.NoError(t, h.Save(context.Background(), saveReq("sess", "mia", msg("a", datatypes.SenderUser, "hi", 0))))

	assert.Equal(t, DefaultRetention, mr.TTL(historyKey("sess", "mia")))
	assert.Equal(t, DefaultRetention, mr.TTL(conversationsKey("sess")))

	mr.FastForward(DefaultRetention + time.Second)
	_, err := h.History(context.Background(), "sess", "mia")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestNewHistoryStore(t *testing.T) {
	s, err := NewHistoryStore(context.Background(), HistoryConfig{Badger: InMemoryBadgerConfig()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = NewHistoryStore(context.Background(), HistoryConfig{Backend: "mongo"})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	s, err = NewHistoryStore(context.Background(), HistoryConfig{
		Backend: HistoryBackendRedis,
		Redis:   RedisConfig{Addr: mr.Addr()},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestGCRunner_Validation(t *testing.T) {
	db, err := openBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	defer db.Close()

	_, err = NewGCRunner(nil, time.Minute, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(db, 0, 0.5, nil)
	assert.Error(t, err)
	_, err = NewGCRunner(db, time.Minute, 1.5, nil)
	assert.Error(t, err)

	r, err := NewGCRunner(db, time.Millisecond, 0.5, nil)
	require.NoError(t, err)
	r.Start()
	time.Sleep(5 * time.Millisecond)
	r.Stop()
	r.Stop()
}
