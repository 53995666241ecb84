// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatstream

import "strings"

// Tokenize splits reply text into the word tokens sent as Chunk frames.
//
// # Description
//
// Splits on the space character. The first token is returned as-is and
// every later token is prefixed with one space, so strings.Join(tokens, "")
// reproduces text exactly. Runs of spaces yield tokens holding a single
// space, and newlines and tabs stay inside their token.
//
// # Examples
//
//	Tokenize("Hey there you")  // ["Hey", " there", " you"]
//	Tokenize("a  b")           // ["a", " ", " b"]
//	Tokenize("")               // nil
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	words := strings.Split(text, " ")
	tokens := make([]string, len(words))
	for i, w := range words {
		if i == 0 {
			tokens[i] = w
			continue
		}
		tokens[i] = " " + w
	}
	return tokens
}
