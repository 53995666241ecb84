// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatclient

import (
	"sync"
	"time"
)

// Sender identifies who wrote a turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderCompanion Sender = "companion"
)

// Turn is one message in a conversation.
//
// A turn with PendingImage set has no ImageRef yet. Resolution either
// sets ImageRef and clears the flag, or clears the flag and replaces Text
// with ImageApology.
type Turn struct {
	ID           string
	Sender       Sender
	Text         string
	ImageRef     string
	PendingImage bool
	CreatedAt    time.Time
}

// ConversationStore holds the turns of every conversation, keyed by
// conversation id.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Readers get copies, so a turn
// handed to the UI never changes underneath it; updates are announced
// through the Observer instead.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string][]Turn
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{convs: make(map[string][]Turn)}
}

// Append adds a turn to the end of a conversation.
func (s *ConversationStore) Append(convID string, t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[convID] = append(s.convs[convID], t)
}

// Update applies fn to the turn with turnID and returns the updated copy.
// It reports false when no such turn exists.
func (s *ConversationStore) Update(convID, turnID string, fn func(*Turn)) (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.convs[convID]
	for i := range turns {
		if turns[i].ID == turnID {
			fn(&turns[i])
			return turns[i], true
		}
	}
	return Turn{}, false
}

// Turns returns a copy of a conversation's turns, oldest first.
func (s *ConversationStore) Turns(convID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.convs[convID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Get returns one turn by id.
func (s *ConversationStore) Get(convID, turnID string) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.convs[convID] {
		if t.ID == turnID {
			return t, true
		}
	}
	return Turn{}, false
}

// Len returns the number of turns in a conversation.
func (s *ConversationStore) Len(convID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs[convID])
}

// Seed sets a conversation's turns if it has none yet and reports whether
// it did.
func (s *ConversationStore) Seed(convID string, turns []Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.convs[convID]) > 0 {
		return false
	}
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	s.convs[convID] = cp
	return true
}
