// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persona

import (
	"strings"
	"testing"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fixedPicker always returns the same index.
type fixedPicker struct {
	index int
	calls int
}

func (p *fixedPicker) Pick(n int) int {
	p.calls++
	return p.index
}

func intPtr(v int) *int { return &v }

func newTestCompanion(t *testing.T, mutate func(p *datatypes.CompanionProfile)) datatypes.Companion {
	t.Helper()
	p := &datatypes.CompanionProfile{
		ID:   "mia-chen",
		Name: "Mia",
		Tags: []string{"K-Pop", "Dancing"},
	}
	if mutate != nil {
		mutate(p)
	}
	return datatypes.NormalizeProfile(p.ID, p)
}

func generate(t *testing.T, c datatypes.Companion, msg string, mood datatypes.Mood, depth int) Reply {
	t.Helper()
	e := NewEngine(NewSeededPicker(42))
	return e.Generate(c, msg, mood, datatypes.Conversation{Depth: depth})
}

// =============================================================================
// Classification Tests
// =============================================================================

// TestEngine_ClassificationPrecedence verifies that the first matching
// category wins, evaluated top to bottom.
func TestEngine_ClassificationPrecedence(t *testing.T) {
	c := newTestCompanion(t, nil)
	e := NewEngine(&fixedPicker{})

	tests := []struct {
		name    string
		message string
		mood    datatypes.Mood
		want    Category
	}{
		{"photo beats greeting", "hey send me a selfie", datatypes.MoodRomantic, CategoryPhoto},
		{"greeting beats how are you", "hi, how are you?", datatypes.MoodRomantic, CategoryGreeting},
		{"how are you", "how are you today?", datatypes.MoodRomantic, CategoryHowAreYou},
		{"what are you doing", "what are you doing right now?", "", CategoryWhatDoing},
		{"identity", "what's your name?", "", CategoryIdentity},
		{"affection", "I love talking to you", "", CategoryAffection},
		{"miss you", "I miss you so much", "", CategoryMissYou},
		{"compliment", "you look beautiful", "", CategoryCompliment},
		{"favorite question", "what's your favorite thing?", "", CategoryFavorite},
		{"like me question", "do you like me?", "", CategoryLikeMe},
		{"think of me question", "what do you think of me?", "", CategoryLikeMe},
		{"generic question", "is it raining there?", datatypes.MoodCalm, CategoryQuestion},
		{"mood default", "I went to the store", datatypes.MoodPlayful, CategoryMood},
		{"generic default", "I went to the store", "", CategoryDefault},
		{"favorite without question mark", "my favorite color is blue", "", CategoryDefault},
		{"unknown mood", "I went to the store", datatypes.Mood("grumpy"), CategoryDefault},
		{"empty message", "", "", CategoryDefault},
		{"empty message with mood", "", datatypes.MoodRomantic, CategoryDefault},
		{"blank message with mood", "  \n ", datatypes.MoodPlayful, CategoryDefault},
		{"hi inside word", "this is fine", "", CategoryDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Generate(c, tt.message, tt.mood, datatypes.Conversation{})
			assert.Equal(t, tt.want, got.Category)
		})
	}
}

// =============================================================================
// Scenario Tests
// =============================================================================

// TestEngine_EmptyMessageIgnoresMoodAndDepth verifies a blank message
// always answers from the generic default pool.
func TestEngine_EmptyMessageIgnoresMoodAndDepth(t *testing.T) {
	c := newTestCompanion(t, nil)

	for seed := uint64(0); seed < 10; seed++ {
		e := NewEngine(NewSeededPicker(seed))
		r := e.Generate(c, "", datatypes.MoodRomantic, datatypes.Conversation{Depth: DeepConversationDepth + 5})
		assert.Equal(t, CategoryDefault, r.Category)
		assert.Contains(t, defaultPool, r.Text)
	}
}

// TestEngine_FlirtyGreeting verifies a flirty companion greets from the
// flirty pool.
func TestEngine_FlirtyGreeting(t *testing.T) {
	c := newTestCompanion(t, func(p *datatypes.CompanionProfile) {
		p.Personality.Flirty = intPtr(82)
	})

	for seed := uint64(0); seed < 20; seed++ {
		e := NewEngine(NewSeededPicker(seed))
		r := e.Generate(c, "hey", datatypes.MoodRomantic, datatypes.Conversation{})
		assert.Equal(t, CategoryGreeting, r.Category)
		assert.Contains(t, flirtyGreetingPool, r.Text)
	}
}

// TestEngine_PlainGreeting verifies the threshold is strict.
func TestEngine_PlainGreeting(t *testing.T) {
	c := newTestCompanion(t, func(p *datatypes.CompanionProfile) {
		p.Personality.Flirty = intPtr(70)
	})

	r := generate(t, c, "hello!", datatypes.MoodRomantic, 0)
	assert.Contains(t, greetingPool, r.Text)
}

// TestEngine_FavoriteTag verifies the favorite reply references the first
// tag, lowercased.
func TestEngine_FavoriteTag(t *testing.T) {
	c := newTestCompanion(t, nil)

	for i := range favoritePool {
		e := NewEngine(&fixedPicker{index: i})
		r := e.Generate(c, "what's your favorite thing?", datatypes.MoodRomantic, datatypes.Conversation{})
		assert.Equal(t, CategoryFavorite, r.Category)
		assert.Contains(t, r.Text, "k-pop")
		assert.NotContains(t, r.Text, "{tag}")
	}
}

func TestEngine_FavoriteWithoutTags(t *testing.T) {
	c := newTestCompanion(t, func(p *datatypes.CompanionProfile) {
		p.Tags = nil
	})

	r := generate(t, c, "what's your favorite food?", "", 0)
	assert.Equal(t, CategoryFavorite, r.Category)
	assert.Contains(t, favoriteFallbackPool, r.Text)
}

func TestEngine_LikeMe(t *testing.T) {
	r := generate(t, newTestCompanion(t, nil), "do you like me?", "", 0)
	assert.Equal(t, likeMePool[0], r.Text)
}

func TestEngine_IdentityUsesName(t *testing.T) {
	r := generate(t, newTestCompanion(t, nil), "who are you", "", 0)
	assert.Contains(t, r.Text, "Mia")
	assert.NotContains(t, r.Text, "{name}")
}

// =============================================================================
// Personality Gating Tests
// =============================================================================

func TestEngine_AffectionPools(t *testing.T) {
	warm := newTestCompanion(t, func(p *datatypes.CompanionProfile) {
		p.Personality.Romantic = intPtr(71)
	})
	cool := newTestCompanion(t, func(p *datatypes.CompanionProfile) {
		p.Personality.Romantic = intPtr(40)
	})

	assert.Contains(t, warmAffectionPool, generate(t, warm, "I love you", "", 0).Text)
	assert.Contains(t, affectionPool, generate(t, cool, "I love you", "", 0).Text)
}

func TestEngine_QuestionPools(t *testing.T) {
	smart := newTestCompanion(t, func(p *datatypes.CompanionProfile) {
		p.Personality.Intelligence = intPtr(90)
	})
	average := newTestCompanion(t, nil)

	assert.Contains(t, analyticalQuestionPool, generate(t, smart, "is time real?", "", 0).Text)
	assert.Contains(t, questionPool, generate(t, average, "is time real?", "", 0).Text)
}

// TestEngine_EmptyPersonalityMatchesDefaults verifies an empty personality
// selects the same pools as explicit defaults.
func TestEngine_EmptyPersonalityMatchesDefaults(t *testing.T) {
	empty := newTestCompanion(t, nil)
	explicit := newTestCompanion(t, func(p *datatypes.CompanionProfile) {
		p.Personality = datatypes.Personality{
			Friendliness: intPtr(80), Humor: intPtr(70), Intelligence: intPtr(75),
			Romantic: intPtr(75), Flirty: intPtr(70), Dominant: intPtr(50),
		}
	})

	for _, msg := range []string{"hey", "I love you", "why?", "hmm", "send a pic"} {
		a := NewEngine(&fixedPicker{index: 1}).Generate(empty, msg, "", datatypes.Conversation{})
		b := NewEngine(&fixedPicker{index: 1}).Generate(explicit, msg, "", datatypes.Conversation{})
		assert.Equal(t, a, b, msg)
	}
}

// =============================================================================
// Defaults and Robustness Tests
// =============================================================================

func TestEngine_MoodPools(t *testing.T) {
	c := newTestCompanion(t, nil)
	for _, mood := range datatypes.Moods {
		r := generate(t, c, "I went for a walk", mood, 0)
		assert.Equal(t, CategoryMood, r.Category)
		assert.Contains(t, moodPools[mood], r.Text)
	}
}

func TestEngine_DeepConversation(t *testing.T) {
	c := newTestCompanion(t, nil)

	assert.Contains(t, deepConversationPool, generate(t, c, "I went for a walk", "", 11).Text)
	assert.Contains(t, defaultPool, generate(t, c, "I went for a walk", "", 10).Text)

	// Mood default takes precedence over conversation depth.
	r := generate(t, c, "I went for a walk", datatypes.MoodDeep, 30)
	assert.Equal(t, CategoryMood, r.Category)
}

// TestEngine_OutOfRangePicker verifies a misbehaving picker cannot break
// the reply.
func TestEngine_OutOfRangePicker(t *testing.T) {
	c := newTestCompanion(t, nil)

	for _, idx := range []int{-7, 99, 1 << 30} {
		r := NewEngine(&fixedPicker{index: idx}).Generate(c, "hey", "", datatypes.Conversation{})
		require.NotEmpty(t, strings.TrimSpace(r.Text))
	}
}

// TestEngine_NeverEmpty verifies the engine always answers.
func TestEngine_NeverEmpty(t *testing.T) {
	companions := []datatypes.Companion{
		datatypes.NormalizeProfile("ghost", nil),
		newTestCompanion(t, nil),
		newTestCompanion(t, func(p *datatypes.CompanionProfile) { p.Tags = nil; p.Name = "" }),
	}
	messages := []string{"", " ", "?", "🙂", "send me a pic", "what's your favorite?", strings.Repeat("blah ", 500)}
	moods := []datatypes.Mood{"", datatypes.MoodCalm, "nonsense"}

	e := NewEngine(NewSeededPicker(7))
	for _, c := range companions {
		for _, m := range messages {
			for _, mood := range moods {
				r := e.Generate(c, m, mood, datatypes.Conversation{Depth: 12})
				assert.NotEmpty(t, strings.TrimSpace(r.Text))
			}
		}
	}
}

func TestEngine_DoesNotMutateInputs(t *testing.T) {
	c := newTestCompanion(t, nil)
	window := []datatypes.Message{{Role: "user", Content: "hi"}}
	convo := datatypes.Conversation{Window: window, Depth: 1}
	tags := append([]string(nil), c.Tags...)

	NewEngine(nil).Generate(c, "what's your favorite thing?", datatypes.MoodCalm, convo)

	assert.Equal(t, tags, c.Tags)
	assert.Equal(t, "hi", convo.Window[0].Content)
}

func TestEngine_UsesPickerOnce(t *testing.T) {
	p := &fixedPicker{}
	NewEngine(p).Generate(newTestCompanion(t, nil), "hey", "", datatypes.Conversation{})
	assert.Equal(t, 1, p.calls)
}

func TestNewEngine_NilPicker(t *testing.T) {
	e := NewEngine(nil)
	require.NotNil(t, e.picker)
}

func TestSeededPicker_Deterministic(t *testing.T) {
	a, b := NewSeededPicker(3), NewSeededPicker(3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Pick(6), b.Pick(6))
	}
	assert.Equal(t, 0, a.Pick(1))
	assert.Equal(t, 0, a.Pick(0))
}
