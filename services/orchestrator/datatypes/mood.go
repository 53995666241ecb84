// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "strings"

// Mood is the tone the user selected for the conversation.
type Mood string

const (
	MoodCalm     Mood = "calm"
	MoodRomantic Mood = "romantic"
	MoodPlayful  Mood = "playful"
	MoodDeep     Mood = "deep"
)

// DefaultMood applies when a request carries no mood.
const DefaultMood = MoodRomantic

// Moods lists every valid mood.
var Moods = []Mood{MoodCalm, MoodRomantic, MoodPlayful, MoodDeep}

// ParseMood maps a wire value to a Mood. The empty string yields
// DefaultMood. Unknown values return ok=false.
func ParseMood(s string) (Mood, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultMood, true
	}
	m := Mood(s)
	return m, m.Valid()
}

// Valid reports whether m is one of Moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodCalm, MoodRomantic, MoodPlayful, MoodDeep:
		return true
	}
	return false
}
