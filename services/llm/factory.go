// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by NewBackend.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendGroq      = "groq"
	BackendOllama    = "ollama"
	BackendGemini    = "gemini"
)

// NewBackend builds the named backend from environment configuration.
//
// # Description
//
// "claude" is accepted as an alias for "anthropic". A backend without
// credentials returns an error wrapping ErrMissingCredential so callers
// can skip it quietly.
func NewBackend(ctx context.Context, name string) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BackendAnthropic, "claude":
		return NewAnthropicClient(AnthropicConfigFromEnv())
	case BackendOpenAI:
		return NewOpenAIClient(OpenAIConfigFromEnv())
	case BackendGroq:
		return NewOpenAIClient(GroqConfigFromEnv())
	case BackendOllama:
		return NewOllamaClient(OllamaConfigFromEnv())
	case BackendGemini:
		return NewGeminiClient(ctx, GeminiConfigFromEnv())
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", name)
	}
}
