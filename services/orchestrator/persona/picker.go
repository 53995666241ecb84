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

import "math/rand/v2"

// Picker chooses one of n variants.
//
// Implementations must return a value in [0, n) for n > 0. The engine
// folds out-of-range values back into range, so a broken Picker degrades
// the choice but never the reply.
type Picker interface {
	Pick(n int) int
}

// randomPicker draws uniformly from the runtime's random source.
type randomPicker struct{}

// NewRandomPicker returns the Picker used in production.
func NewRandomPicker() Picker {
	return randomPicker{}
}

func (randomPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.IntN(n)
}

// SeededPicker is a reproducible Picker for tests and replays. It is not
// safe for concurrent use.
type SeededPicker struct {
	rng *rand.Rand
}

// NewSeededPicker creates a SeededPicker from a fixed seed.
func NewSeededPicker(seed uint64) *SeededPicker {
	return &SeededPicker{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (p *SeededPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return p.rng.IntN(n)
}

var (
	_ Picker = randomPicker{}
	_ Picker = (*SeededPicker)(nil)
)
