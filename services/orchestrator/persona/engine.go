// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persona implements the rule-based companion reply engine.
//
// The engine classifies a message into a coarse intent, picks a template
// pool for that intent (gated by the companion's personality), and draws
// one variant through an injected Picker. It needs no network and always
// produces a non-empty reply, which makes it the last tier of reply
// generation.
package persona

import (
	"strings"

	"github.com/AleutianAI/CompanionHaven/pkg/intent"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// Personality thresholds that switch to an alternate pool. A trait must be
// strictly above the threshold.
const (
	FlirtyThreshold       = 70
	RomanticThreshold     = 70
	IntelligenceThreshold = 85

	// DeepConversationDepth is the history depth above which the generic
	// default switches to the deep conversation pool.
	DeepConversationDepth = 10
)

// Category is the intent a message was classified as.
type Category string

const (
	CategoryPhoto       Category = "photo"
	CategoryGreeting    Category = "greeting"
	CategoryHowAreYou   Category = "how_are_you"
	CategoryWhatDoing   Category = "what_doing"
	CategoryIdentity    Category = "identity"
	CategoryAffection   Category = "affection"
	CategoryMissYou     Category = "miss_you"
	CategoryCompliment  Category = "compliment"
	CategoryFavorite    Category = "favorite"
	CategoryLikeMe      Category = "like_me"
	CategoryQuestion    Category = "question"
	CategoryMood        Category = "mood"
	CategoryDefault     Category = "default"
	CategoryDeepDefault Category = "deep_default"
)

// Reply is a generated reply and the category that produced it.
type Reply struct {
	Text     string
	Category Category
}

// =============================================================================
// Engine
// =============================================================================

// Engine generates rule-based companion replies.
//
// # Thread Safety
//
// Engine holds no mutable state of its own. It is safe for concurrent use
// if its Picker is.
type Engine struct {
	picker Picker
}

// NewEngine creates an Engine. A nil picker selects NewRandomPicker.
func NewEngine(picker Picker) *Engine {
	if picker == nil {
		picker = NewRandomPicker()
	}
	return &Engine{picker: picker}
}

// Generate returns a reply for message.
//
// # Description
//
// Classification runs top to bottom and the first match wins:
//
//  1. photo request
//  2. greeting
//  3. "how are you"
//  4. "what are you doing"
//  5. name or identity question
//  6. love or affection
//  7. "miss you"
//  8. compliment
//  9. question (contains "?"), with "favorite" and "like me" / "think of me"
//     sub-cases checked first
//  10. mood default, when mood is valid
//  11. generic default, or the deep conversation pool when the
//     conversation depth exceeds DeepConversationDepth
//
// # Inputs
//
//   - c: Normalized companion. Traits gate the greeting, affection and
//     question pools.
//   - message: Raw user message. A blank message always gets the generic
//     default pool.
//   - mood: Conversation mood. An invalid or empty mood skips step 10.
//   - convo: Conversation context. Only Depth is consulted.
//
// # Outputs
//
//   - Reply: Never has empty Text.
//
// # Examples
//
//	e := persona.NewEngine(nil)
//	r := e.Generate(companion, "hey", datatypes.MoodRomantic, datatypes.Conversation{})
//	// r.Category == persona.CategoryGreeting
//
// # Assumptions
//
//   - Inputs are not mutated.
func (e *Engine) Generate(c datatypes.Companion, message string, mood datatypes.Mood, convo datatypes.Conversation) Reply {
	category, pool := classify(c, message, mood, convo.Depth)

	text := e.render(c, pool)
	if strings.TrimSpace(text) == "" {
		category = CategoryDefault
		text = e.render(c, defaultPool)
	}
	return Reply{Text: text, Category: category}
}

func (e *Engine) render(c datatypes.Companion, pool []string) string {
	if len(pool) == 0 {
		pool = defaultPool
	}
	i := e.picker.Pick(len(pool))
	if i < 0 || i >= len(pool) {
		i = ((i % len(pool)) + len(pool)) % len(pool)
	}
	r := strings.NewReplacer(placeholderName, c.Name, placeholderTag, c.FirstTag())
	return r.Replace(pool[i])
}

// classify maps a message to its category and template pool.
func classify(c datatypes.Companion, message string, mood datatypes.Mood, depth int) (Category, []string) {
	if strings.TrimSpace(message) == "" {
		return CategoryDefault, defaultPool
	}

	padded := intent.Normalize(message)
	traits := c.Traits

	switch {
	case intent.IsPhotoRequest(message):
		return CategoryPhoto, photoPool

	case intent.ContainsAny(padded, greetingWords...):
		if traits.Flirty > FlirtyThreshold {
			return CategoryGreeting, flirtyGreetingPool
		}
		return CategoryGreeting, greetingPool

	case intent.ContainsAny(padded, howAreYouPhrases...):
		return CategoryHowAreYou, howAreYouPool

	case intent.ContainsAny(padded, whatDoingPhrases...):
		return CategoryWhatDoing, whatDoingPool

	case intent.ContainsAny(padded, identityPhrases...):
		return CategoryIdentity, identityPool

	case intent.ContainsAny(padded, affectionWords...):
		if traits.Romantic > RomanticThreshold {
			return CategoryAffection, warmAffectionPool
		}
		return CategoryAffection, affectionPool

	case intent.ContainsAny(padded, missYouPhrases...):
		return CategoryMissYou, missYouPool

	case intent.ContainsAny(padded, complimentWords...):
		return CategoryCompliment, complimentPool

	case strings.Contains(message, "?"):
		return classifyQuestion(c, padded)
	}

	if mood.Valid() {
		if pool, ok := moodPools[mood]; ok {
			return CategoryMood, pool
		}
	}
	if depth > DeepConversationDepth {
		return CategoryDeepDefault, deepConversationPool
	}
	return CategoryDefault, defaultPool
}

func classifyQuestion(c datatypes.Companion, padded string) (Category, []string) {
	switch {
	case intent.ContainsAny(padded, favoriteWords...):
		if c.FirstTag() == "" {
			return CategoryFavorite, favoriteFallbackPool
		}
		return CategoryFavorite, favoritePool
	case intent.ContainsAny(padded, likeMePhrases...):
		return CategoryLikeMe, likeMePool
	case c.Traits.Intelligence > IntelligenceThreshold:
		return CategoryQuestion, analyticalQuestionPool
	default:
		return CategoryQuestion, questionPool
	}
}
