// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CompanionHaven/pkg/intent"
	"github.com/AleutianAI/CompanionHaven/services/llm"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/persona"
)

// =============================================================================
// Mocks
// =============================================================================

type mockLLMClient struct {
	name     string
	reply    string
	err      error
	delay    time.Duration
	calls    atomic.Int32
	lastMsgs []datatypes.Message
}

func (m *mockLLMClient) Name() string { return m.name }

func (m *mockLLMClient) Chat(ctx context.Context, messages []datatypes.Message, _ llm.GenerationParams) (string, error) {
	m.calls.Add(1)
	m.lastMsgs = messages
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.reply, m.err
}

type mockBackend struct {
	configured bool
	completion Completion
	err        error
	calls      int
}

func (m *mockBackend) Configured() bool { return m.configured }

func (m *mockBackend) Complete(_ context.Context, _ datatypes.Companion, _ string, _ datatypes.Mood, _ datatypes.Conversation) (Completion, error) {
	m.calls++
	return m.completion, m.err
}

func intPtr(v int) *int { return &v }

func testProfile() *datatypes.CompanionProfile {
	return &datatypes.CompanionProfile{
		ID:   "mia",
		Name: "Mia",
		Bio:  "Loves late night talks.",
		Tags: []string{"K-Pop", "Dancing"},
		Personality: datatypes.Personality{
			Flirty: intPtr(82),
		},
	}
}

func knownCompanion() datatypes.Companion {
	return datatypes.NormalizeProfile("mia", testProfile())
}

// =============================================================================
// Prompt
// =============================================================================

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(knownCompanion(), datatypes.MoodPlayful)

	assert.True(t, strings.HasPrefix(prompt, "You are Mia, an AI companion. Loves late night talks."))
	for _, name := range []string{"Friendliness", "Humor", "Intelligence", "Romantic", "Flirty", "Dominant"} {
		assert.Contains(t, prompt, "- "+name+": ")
	}
	assert.Contains(t, prompt, "Flirty: 82% (playfully flirtatious)")
	assert.Contains(t, prompt, "Dominant: 50% (balanced, happy to lead or follow)")
	assert.Contains(t, prompt, "K-Pop, Dancing")
	assert.Contains(t, prompt, "current mood is: playful")
	assert.Contains(t, prompt, "Be fun and energetic")
}

func TestBuildSystemPrompt_InvalidMood(t *testing.T) {
	prompt := BuildSystemPrompt(knownCompanion(), datatypes.Mood("grumpy"))
	assert.NotContains(t, prompt, "grumpy")
	assert.Contains(t, prompt, "Be natural and conversational")
}

func TestBuildMessages_WindowAndOrder(t *testing.T) {
	history := make([]datatypes.HistoryEntry, 14)
	for i := range history {
		role := datatypes.RoleUser
		if i%2 == 1 {
			role = datatypes.RoleAssistant
		}
		history[i] = datatypes.HistoryEntry{Role: role, Content: string(rune('a' + i))}
	}
	convo := datatypes.NewConversation(history)

	msgs := BuildMessages(knownCompanion(), "hello", datatypes.MoodCalm, convo)

	require.Len(t, msgs, datatypes.HistoryWindow+2)
	assert.Equal(t, datatypes.RoleSystem, msgs[0].Role)
	assert.Equal(t, "e", msgs[1].Content)
	assert.Equal(t, "n", msgs[len(msgs)-2].Content)
	assert.Equal(t, datatypes.Message{Role: datatypes.RoleUser, Content: "hello"}, msgs[len(msgs)-1])
}

// =============================================================================
// Adapter
// =============================================================================

func TestAdapter_Unconfigured(t *testing.T) {
	a := NewAdapter(nil, AdapterConfig{})
	assert.False(t, a.Configured())

	_, err := a.Complete(context.Background(), knownCompanion(), "hi", datatypes.MoodCalm, datatypes.Conversation{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAdapter_UnknownCompanion(t *testing.T) {
	client := &mockLLMClient{name: "anthropic", reply: "hello"}
	a := NewAdapter([]llm.LLMClient{client}, AdapterConfig{})

	_, err := a.Complete(context.Background(), datatypes.NormalizeProfile("ghost", nil), "hi", datatypes.MoodCalm, datatypes.Conversation{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, client.calls.Load())
}

func TestAdapter_ChainOrder(t *testing.T) {
	first := &mockLLMClient{name: "anthropic", err: errors.New("status 529")}
	second := &mockLLMClient{name: "groq", reply: "  Hey you!  "}
	a := NewAdapter([]llm.LLMClient{first, nil, second}, AdapterConfig{})

	assert.Equal(t, []string{"anthropic", "groq"}, a.Providers())

	got, err := a.Complete(context.Background(), knownCompanion(), "hi", datatypes.MoodCalm, datatypes.Conversation{})
	require.NoError(t, err)
	assert.Equal(t, Completion{Text: "Hey you!", Provider: "groq"}, got)
	assert.EqualValues(t, 1, first.calls.Load())
	assert.EqualValues(t, 1, second.calls.Load())
	require.NotEmpty(t, second.lastMsgs)
	assert.Equal(t, datatypes.RoleSystem, second.lastMsgs[0].Role)
}

func TestAdapter_AllFail(t *testing.T) {
	empty := &mockLLMClient{name: "anthropic", reply: "   "}
	broken := &mockLLMClient{name: "groq", err: errors.New("connection refused")}
	a := NewAdapter([]llm.LLMClient{empty, broken}, AdapterConfig{})

	_, err := a.Complete(context.Background(), knownCompanion(), "hi", datatypes.MoodCalm, datatypes.Conversation{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAdapter_TimeoutIsUnavailable(t *testing.T) {
	slow := &mockLLMClient{name: "anthropic", reply: "late", delay: time.Second}
	a := NewAdapter([]llm.LLMClient{slow}, AdapterConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := a.Complete(context.Background(), knownCompanion(), "hi", datatypes.MoodCalm, datatypes.Conversation{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.EqualValues(t, 1, slow.calls.Load(), "no retries")
}

// =============================================================================
// Selector
// =============================================================================

func TestSelector_GenerativeSuccess(t *testing.T) {
	backend := &mockBackend{configured: true, completion: Completion{Text: "Generated reply", Provider: "anthropic"}}
	s := NewSelector(backend, persona.NewEngine(persona.NewSeededPicker(1)))

	sel := s.Select(context.Background(), "mia", testProfile(), "tell me about your day", datatypes.MoodRomantic, datatypes.Conversation{})

	assert.Equal(t, "Generated reply", sel.Text)
	assert.Equal(t, "generative:anthropic", sel.Tier)
	assert.True(t, sel.Generative())
	assert.False(t, sel.IsPhotoIntent)
	assert.Equal(t, "Mia", sel.Companion.Name)
}

func TestSelector_FallbackOnUnavailable(t *testing.T) {
	backend := &mockBackend{configured: true, err: ErrUnavailable}
	s := NewSelector(backend, persona.NewEngine(persona.NewSeededPicker(1)))

	sel := s.Select(context.Background(), "mia", testProfile(), "hey", datatypes.MoodRomantic, datatypes.Conversation{})

	assert.NotEmpty(t, sel.Text)
	assert.Equal(t, TierPersonality, sel.Tier)
	assert.Equal(t, persona.CategoryGreeting, sel.Category)
	assert.Equal(t, 1, backend.calls)
}

func TestSelector_EmptyCompletionFallsBack(t *testing.T) {
	backend := &mockBackend{configured: true, completion: Completion{Provider: "groq"}}
	s := NewSelector(backend, nil)

	sel := s.Select(context.Background(), "mia", testProfile(), "hey", datatypes.MoodRomantic, datatypes.Conversation{})
	assert.Equal(t, TierPersonality, sel.Tier)
	assert.NotEmpty(t, sel.Text)
}

func TestSelector_UnknownCompanionSkipsBackend(t *testing.T) {
	backend := &mockBackend{configured: true, completion: Completion{Text: "never", Provider: "anthropic"}}
	s := NewSelector(backend, nil)

	sel := s.Select(context.Background(), "ghost", nil, "hey", datatypes.MoodRomantic, datatypes.Conversation{})

	assert.Zero(t, backend.calls)
	assert.Equal(t, TierPersonality, sel.Tier)
	assert.Equal(t, datatypes.UnknownCompanionName, sel.Companion.Name)
	assert.False(t, sel.Companion.Known)
}

func TestSelector_UnconfiguredSkipsBackend(t *testing.T) {
	backend := &mockBackend{configured: false}
	s := NewSelector(backend, nil)

	s.Select(context.Background(), "mia", testProfile(), "hey", datatypes.MoodRomantic, datatypes.Conversation{})
	assert.Zero(t, backend.calls)
}

func TestSelector_FallbackTotality(t *testing.T) {
	s := NewSelector(&mockBackend{configured: true, err: ErrUnavailable}, persona.NewEngine(persona.NewSeededPicker(7)))

	profiles := []*datatypes.CompanionProfile{
		nil,
		testProfile(),
		{ID: "blank", Name: "Blank"},
	}
	messages := []string{"", " ", "hey", "?", "send me a selfie", "what's your favorite thing?", "asdf qwerty"}
	moods := []datatypes.Mood{"", datatypes.MoodCalm, datatypes.MoodDeep, "unknown"}

	for _, p := range profiles {
		for _, msg := range messages {
			for _, mood := range moods {
				sel := s.Select(context.Background(), "x", p, msg, mood, datatypes.Conversation{Depth: 12})
				assert.NotEmpty(t, sel.Text, "profile=%v msg=%q mood=%q", p, msg, mood)
			}
		}
	}
}

func TestSelector_PhotoIntentIndependentOfTier(t *testing.T) {
	generative := NewSelector(&mockBackend{configured: true, completion: Completion{Text: "Sure thing!", Provider: "groq"}}, nil)
	fallback := NewSelector(&mockBackend{configured: true, err: ErrUnavailable}, nil)

	for _, s := range []*Selector{generative, fallback} {
		sel := s.Select(context.Background(), "mia", testProfile(), "send me a selfie", datatypes.MoodRomantic, datatypes.Conversation{})
		assert.True(t, sel.IsPhotoIntent)
		assert.Equal(t, intent.PhotoSelfie, sel.PhotoType)
	}

	sel := generative.Select(context.Background(), "mia", testProfile(), "how was your day", datatypes.MoodRomantic, datatypes.Conversation{})
	assert.False(t, sel.IsPhotoIntent)
}

func TestSelector_DoesNotMutateProfile(t *testing.T) {
	p := testProfile()
	p.Name = "  Mia  "
	s := NewSelector(nil, nil)

	sel := s.Select(context.Background(), "mia", p, "hi", datatypes.MoodCalm, datatypes.Conversation{})
	assert.Equal(t, "Mia", sel.Companion.Name)
	assert.Equal(t, "  Mia  ", p.Name)
	assert.Nil(t, p.Personality.Humor)
}
