// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent holds the photo-request vocabulary shared by the chat
// server and the chat client.
//
// Both sides must agree on whether a message asked for a photo: the server
// uses it to pick a photo reply and the client uses it to decide whether a
// completed companion turn waits for an image. Keeping a single vocabulary
// here is what makes that agreement hold.
package intent

import (
	"strings"
	"unicode"
)

// =============================================================================
// Vocabulary
// =============================================================================

// photoWords match as whole words only, so "pic" does not fire on "topic"
// or "picnic".
var photoWords = []string{
	"photo", "photos",
	"selfie", "selfies",
	"picture", "pictures",
	"pic", "pics", "pix",
	"snapshot",
}

// photoPhrases match as whole-word sequences.
var photoPhrases = []string{
	"send me a cute",
	"send me a sexy",
	"send me a hot",
	"send me something cute",
	"send me something sexy",
	"what do you look like",
	"let me see you",
	"see your face",
	"show me you",
	"show yourself",
}

// PhotoType is the style of photo requested.
type PhotoType string

const (
	PhotoSelfie   PhotoType = "selfie"
	PhotoFullBody PhotoType = "full_body"
	PhotoFlirty   PhotoType = "flirty"
	PhotoCute     PhotoType = "cute"
	PhotoRomantic PhotoType = "romantic"
	PhotoCandid   PhotoType = "candid"
	PhotoPortrait PhotoType = "portrait"
)

// photoTypeRules are checked in order; the first rule with a matching cue wins.
var photoTypeRules = []struct {
	kind PhotoType
	cues []string
}{
	{PhotoSelfie, []string{"selfie", "selfies"}},
	{PhotoFullBody, []string{"full body", "whole body", "outfit"}},
	{PhotoFlirty, []string{"flirty", "sexy", "hot"}},
	{PhotoCute, []string{"cute", "sweet", "adorable"}},
	{PhotoRomantic, []string{"romantic", "love"}},
	{PhotoCandid, []string{"candid", "natural"}},
	{PhotoPortrait, []string{"portrait", "close up"}},
}

// =============================================================================
// Detection
// =============================================================================

// IsPhotoRequest reports whether the message asks the companion for a photo.
//
// # Description
//
// Lowercases the message, folds punctuation into spaces, and checks it
// against the photo vocabulary. Words and phrases match on word
// boundaries only.
//
// # Inputs
//
//   - message: Raw user message. May be empty.
//
// # Outputs
//
//   - bool: True if any photo word or phrase is present.
//
// # Examples
//
//	intent.IsPhotoRequest("send me a selfie")   // true
//	intent.IsPhotoRequest("What's the topic?")  // false
//
// # Assumptions
//
//   - The result depends only on the message text.
func IsPhotoRequest(message string) bool {
	padded := Normalize(message)
	return ContainsAny(padded, photoWords...) || ContainsAny(padded, photoPhrases...)
}

// DetectPhotoType returns the style of photo the message asks for,
// defaulting to PhotoSelfie. Cues match on word boundaries, so the "hot"
// in "photo" does not count.
func DetectPhotoType(message string) PhotoType {
	padded := Normalize(message)
	for _, rule := range photoTypeRules {
		if ContainsAny(padded, rule.cues...) {
			return rule.kind
		}
	}
	return PhotoSelfie
}

// Valid reports whether t is one of the known photo types.
func (t PhotoType) Valid() bool {
	for _, rule := range photoTypeRules {
		if rule.kind == t {
			return true
		}
	}
	return false
}

// ContainsAny reports whether the Normalize output padded contains any of
// the given words or phrases on word boundaries.
func ContainsAny(padded string, phrases ...string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// Normalize lowercases s, replaces anything other than letters, digits and
// apostrophes with a space, collapses runs of spaces and pads the result
// with one space on each side. The empty string normalizes to " ".
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}
