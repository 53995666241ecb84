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
	"sort"
	"time"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// mergedConversation is a conversation after applying an upsert batch.
type mergedConversation struct {
	byID map[string]datatypes.StoredMessage
}

// mergeMessages applies incoming on top of existing by message id. An
// incoming message with a zero CreatedAt keeps the stored timestamp, or
// gets now if it is new.
func mergeMessages(existing, incoming []datatypes.StoredMessage, now time.Time) mergedConversation {
	m := mergedConversation{byID: make(map[string]datatypes.StoredMessage, len(existing)+len(incoming))}
	for _, msg := range existing {
		m.byID[msg.ID] = msg
	}
	for _, msg := range incoming {
		if msg.CreatedAt.IsZero() {
			if prev, ok := m.byID[msg.ID]; ok {
				msg.CreatedAt = prev.CreatedAt
			} else {
				msg.CreatedAt = now
			}
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		m.byID[msg.ID] = msg
	}
	return m
}

func (m mergedConversation) ordered() []datatypes.StoredMessage {
	msgs := make([]datatypes.StoredMessage, 0, len(m.byID))
	for _, msg := range m.byID {
		msgs = append(msgs, msg)
	}
	sortMessages(msgs)
	return msgs
}

func (m mergedConversation) summary(convID, companionID string) datatypes.ConversationSummary {
	msgs := m.ordered()
	s := datatypes.ConversationSummary{
		ConversationID: convID,
		CompanionID:    companionID,
		MessageCount:   len(msgs),
	}
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		s.LastMessage = last.Content
		s.UpdatedAt = last.CreatedAt
	}
	return s
}

// sortMessages orders by creation time, then id for stability.
func sortMessages(msgs []datatypes.StoredMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

// sortSummaries orders most recently updated first.
func sortSummaries(s []datatypes.ConversationSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].UpdatedAt.Equal(s[j].UpdatedAt) {
			return s[i].UpdatedAt.After(s[j].UpdatedAt)
		}
		return s[i].CompanionID < s[j].CompanionID
	})
}
