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
	"fmt"
	"strings"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// traitBand describes a trait value. A value strictly above above uses
// label; bands are checked in order and the last band catches the rest.
type traitBand struct {
	above int
	label string
}

type traitDescriptor struct {
	name  string
	value func(datatypes.Traits) int
	bands []traitBand
}

var traitDescriptors = []traitDescriptor{
	{"Friendliness", func(t datatypes.Traits) int { return t.Friendliness }, []traitBand{
		{80, "very warm and welcoming"}, {50, "friendly and approachable"}, {-1, "reserved but genuine"},
	}},
	{"Humor", func(t datatypes.Traits) int { return t.Humor }, []traitBand{
		{70, "playful and witty"}, {40, "occasionally humorous"}, {-1, "more serious in tone"},
	}},
	{"Intelligence", func(t datatypes.Traits) int { return t.Intelligence }, []traitBand{
		{80, "highly intellectual and insightful"}, {50, "thoughtful and engaging"}, {-1, "simple and straightforward"},
	}},
	{"Romantic", func(t datatypes.Traits) int { return t.Romantic }, []traitBand{
		{80, "deeply romantic and affectionate"}, {50, "warm and caring"}, {-1, "friendly but not overly romantic"},
	}},
	{"Flirty", func(t datatypes.Traits) int { return t.Flirty }, []traitBand{
		{70, "playfully flirtatious"}, {40, "subtly charming"}, {-1, "sweet but not flirty"},
	}},
	{"Dominant", func(t datatypes.Traits) int { return t.Dominant }, []traitBand{
		{70, "confident and takes the lead"}, {40, "balanced, happy to lead or follow"}, {-1, "gentle and accommodating"},
	}},
}

var moodInstructions = map[datatypes.Mood][]string{
	datatypes.MoodCalm:     {"Be peaceful and soothing", "Use gentle, reassuring language", "Create a sense of tranquility"},
	datatypes.MoodRomantic: {"Be warm and affectionate", "Express care and emotional connection", "Use tender, heartfelt language"},
	datatypes.MoodPlayful:  {"Be fun and energetic", "Use humor and light-hearted banter", "Be enthusiastic and engaging"},
	datatypes.MoodDeep:     {"Be thoughtful and philosophical", "Engage in meaningful discussions", "Ask thought-provoking questions"},
}

var defaultMoodInstructions = []string{"Be natural and conversational", "Match the user's energy", "Be genuinely interested"}

var guidelines = []string{
	"Stay in character as the companion at all times",
	"Be engaging, authentic, and emotionally present",
	"Keep responses conversational, usually 2-4 sentences",
	"Remember details the user shares and reference them naturally",
	"Never break character or mention being an AI",
	"Avoid explicit sexual content; romantic and flirty is fine when it fits your personality",
	"When asked for a photo, reply as if you are sending one and describe it briefly in first person",
}

// BuildSystemPrompt renders the system instruction for a companion.
//
// # Description
//
// The prompt covers the companion's name and bio, every personality
// scalar with a descriptive band, the tags, a tone instruction for mood,
// and fixed conversational guidelines. An invalid mood gets neutral tone
// instructions.
//
// # Examples
//
//	prompt := BuildSystemPrompt(companion, datatypes.MoodPlayful)
//	// "You are Mia, an AI companion. ..."
func BuildSystemPrompt(c datatypes.Companion, mood datatypes.Mood) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, an AI companion.", c.Name)
	if c.Bio != "" {
		sb.WriteString(" ")
		sb.WriteString(c.Bio)
	}
	sb.WriteString("\n\nYour personality traits:\n")
	for _, d := range traitDescriptors {
		v := d.value(c.Traits)
		fmt.Fprintf(&sb, "- %s: %d%% (%s)\n", d.name, v, describe(v, d.bands))
	}

	if len(c.Tags) > 0 {
		fmt.Fprintf(&sb, "\nYour interests and traits: %s\n", strings.Join(c.Tags, ", "))
	}

	instructions, ok := moodInstructions[mood]
	if !ok {
		instructions = defaultMoodInstructions
	}
	if mood.Valid() {
		fmt.Fprintf(&sb, "\nThe user's current mood is: %s. Adapt your responses accordingly:\n", mood)
	} else {
		sb.WriteString("\nAdapt your responses to the user:\n")
	}
	writeBullets(&sb, instructions)

	sb.WriteString("\nGuidelines:\n")
	writeBullets(&sb, guidelines)

	return sb.String()
}

// BuildMessages assembles the full message list for a backend: the system
// prompt, the conversation window, and the current user message.
func BuildMessages(c datatypes.Companion, message string, mood datatypes.Mood, convo datatypes.Conversation) []datatypes.Message {
	window := convo.Window
	if len(window) > datatypes.HistoryWindow {
		window = window[len(window)-datatypes.HistoryWindow:]
	}

	msgs := make([]datatypes.Message, 0, len(window)+2)
	msgs = append(msgs, datatypes.Message{Role: datatypes.RoleSystem, Content: BuildSystemPrompt(c, mood)})
	msgs = append(msgs, window...)
	msgs = append(msgs, datatypes.Message{Role: datatypes.RoleUser, Content: message})
	return msgs
}

func describe(v int, bands []traitBand) string {
	for _, b := range bands {
		if v > b.above {
			return b.label
		}
	}
	return bands[len(bands)-1].label
}

func writeBullets(sb *strings.Builder, lines []string) {
	for _, l := range lines {
		sb.WriteString("- ")
		sb.WriteString(l)
		sb.WriteString("\n")
	}
}
