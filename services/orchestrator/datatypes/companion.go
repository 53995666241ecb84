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

// =============================================================================
// Personality
// =============================================================================

// Personality holds the raw personality scalars of a stored profile.
//
// Every field is optional. A nil field means "not set" and is replaced by
// the matching DefaultTraits value when the profile is normalized, so an
// explicit 0 stays distinguishable from an absent value.
type Personality struct {
	Friendliness *int `json:"friendliness,omitempty" yaml:"friendliness,omitempty" validate:"omitempty,gte=0,lte=100"`
	Humor        *int `json:"humor,omitempty" yaml:"humor,omitempty" validate:"omitempty,gte=0,lte=100"`
	Intelligence *int `json:"intelligence,omitempty" yaml:"intelligence,omitempty" validate:"omitempty,gte=0,lte=100"`
	Romantic     *int `json:"romantic,omitempty" yaml:"romantic,omitempty" validate:"omitempty,gte=0,lte=100"`
	Flirty       *int `json:"flirty,omitempty" yaml:"flirty,omitempty" validate:"omitempty,gte=0,lte=100"`
	Dominant     *int `json:"dominant,omitempty" yaml:"dominant,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Traits is a fully populated personality. Values are clamped to 0..100.
type Traits struct {
	Friendliness int `json:"friendliness"`
	Humor        int `json:"humor"`
	Intelligence int `json:"intelligence"`
	Romantic     int `json:"romantic"`
	Flirty       int `json:"flirty"`
	Dominant     int `json:"dominant"`
}

// DefaultTraits is the baseline used for any personality field that is
// not set.
var DefaultTraits = Traits{
	Friendliness: 80,
	Humor:        70,
	Intelligence: 75,
	Romantic:     75,
	Flirty:       70,
	Dominant:     50,
}

// Normalize fills every unset field from DefaultTraits.
func (p Personality) Normalize() Traits {
	return Traits{
		Friendliness: scalarOr(p.Friendliness, DefaultTraits.Friendliness),
		Humor:        scalarOr(p.Humor, DefaultTraits.Humor),
		Intelligence: scalarOr(p.Intelligence, DefaultTraits.Intelligence),
		Romantic:     scalarOr(p.Romantic, DefaultTraits.Romantic),
		Flirty:       scalarOr(p.Flirty, DefaultTraits.Flirty),
		Dominant:     scalarOr(p.Dominant, DefaultTraits.Dominant),
	}
}

func scalarOr(v *int, def int) int {
	if v == nil {
		return def
	}
	switch {
	case *v < 0:
		return 0
	case *v > 100:
		return 100
	default:
		return *v
	}
}

// =============================================================================
// Profiles
// =============================================================================

// UnknownCompanionName is the display name used when a companion id does
// not resolve to a stored profile.
const UnknownCompanionName = "AI Companion"

// CompanionProfile is a persona as stored in the companion catalogue.
type CompanionProfile struct {
	ID          string      `json:"id" yaml:"id" validate:"required"`
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Bio         string      `json:"bio,omitempty" yaml:"bio,omitempty"`
	AvatarRef   string      `json:"avatarRef,omitempty" yaml:"avatar,omitempty"`
	Tags        []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Personality Personality `json:"personality" yaml:"personality"`

	// Gallery lists image references served by the image endpoint.
	Gallery []string `json:"gallery,omitempty" yaml:"gallery,omitempty"`
}

// Companion is a normalized profile. Every downstream component works on
// this type and never branches on missing data.
type Companion struct {
	ID        string
	Name      string
	Bio       string
	AvatarRef string
	Tags      []string
	Traits    Traits
	Gallery   []string

	// Known is false for the placeholder built for an unknown id.
	Known bool
}

// NormalizeProfile turns a stored profile into a Companion.
//
// # Description
//
// A nil profile yields the placeholder companion for id, named
// UnknownCompanionName, with DefaultTraits and Known=false. A non-nil
// profile has its personality normalized, blank tags dropped, and an
// empty name replaced by UnknownCompanionName. The input is not mutated.
//
// # Inputs
//
//   - id: Requested companion id. Used when p is nil or p.ID is empty.
//   - p: Stored profile, or nil when the lookup found nothing.
//
// # Outputs
//
//   - Companion: Fully populated companion.
func NormalizeProfile(id string, p *CompanionProfile) Companion {
	if p == nil {
		return Companion{
			ID:     id,
			Name:   UnknownCompanionName,
			Traits: DefaultTraits,
		}
	}

	c := Companion{
		ID:        p.ID,
		Name:      strings.TrimSpace(p.Name),
		Bio:       strings.TrimSpace(p.Bio),
		AvatarRef: p.AvatarRef,
		Traits:    p.Personality.Normalize(),
		Known:     true,
	}
	if c.ID == "" {
		c.ID = id
	}
	if c.Name == "" {
		c.Name = UnknownCompanionName
	}
	for _, tag := range p.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			c.Tags = append(c.Tags, tag)
		}
	}
	c.Gallery = append([]string(nil), p.Gallery...)
	return c
}

// FirstTag returns the first tag lowercased, or "" when there are none.
func (c Companion) FirstTag() string {
	if len(c.Tags) == 0 {
		return ""
	}
	return strings.ToLower(c.Tags[0])
}

// Validate checks the profile against its struct tags.
func (p *CompanionProfile) Validate() error {
	return chatValidate.Struct(p)
}
