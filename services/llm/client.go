// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides clients for the remote text-generation backends a
// companion reply can come from.
//
// Every backend implements LLMClient with a single non-streaming Chat call.
// Clients never retry: a failed call returns an error and the caller falls
// back to another tier.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// ErrMissingCredential is returned by constructors when no API key is found.
var ErrMissingCredential = errors.New("missing credential")

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("empty response from backend")

// SecretsDir is where podman secrets are mounted.
var SecretsDir = "/run/secrets"

// GenerationParams tunes a single generation call. Nil fields use the
// backend default.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is a remote chat completion backend.
type LLMClient interface {
	// Name identifies the backend in logs, metrics and the X-AI-Provider
	// header, e.g. "anthropic" or "groq".
	Name() string

	// Chat sends a role-tagged conversation and returns the reply text.
	//
	// # Inputs
	//
	//   - ctx: Bounds the call. Implementations must honor cancellation.
	//   - messages: At most one "system" message followed by "user" and
	//     "assistant" turns, most recent last.
	//   - params: Optional sampling overrides.
	//
	// # Outputs
	//
	//   - string: Non-empty reply text.
	//   - error: Transport failure, non-2xx status, or a payload without
	//     text (ErrEmptyResponse).
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}

// splitSystem separates the system prompt from the conversation turns.
// Multiple system messages are joined with a blank line.
func splitSystem(messages []datatypes.Message) (string, []datatypes.Message) {
	var system []string
	turns := make([]datatypes.Message, 0, len(messages))
	for _, m := range messages {
		if strings.EqualFold(m.Role, datatypes.RoleSystem) {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// lookupSecret returns the value of envVar, or the contents of the podman
// secret named secretName when the variable is unset.
func lookupSecret(envVar, secretName string) string {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v
	}
	if secretName == "" {
		return ""
	}
	content, err := os.ReadFile(filepath.Join(SecretsDir, secretName))
	if err != nil {
		return ""
	}
	slog.Info("Read API key from podman secrets", "secret", secretName)
	return strings.TrimSpace(string(content))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
