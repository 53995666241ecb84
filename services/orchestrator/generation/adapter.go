// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generation turns a user message into the companion's reply.
//
// Replies come from two tiers tried in a fixed order: the generative
// backends behind Adapter, then the rule-based persona.Engine. Selector
// runs the tiers, and its result always carries non-empty text.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/CompanionHaven/services/llm"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// ErrUnavailable is the only error the generative tier reports. Callers
// treat every cause the same way.
var ErrUnavailable = errors.New("generative backend unavailable")

// DefaultTimeout bounds one backend attempt.
const DefaultTimeout = 8 * time.Second

// Completion is a reply produced by a generative backend.
type Completion struct {
	Text     string
	Provider string
}

// Backend is the generative reply tier.
type Backend interface {
	// Configured reports whether any backend has credentials.
	Configured() bool

	// Complete returns a reply, or an error wrapping ErrUnavailable.
	Complete(ctx context.Context, c datatypes.Companion, message string, mood datatypes.Mood, convo datatypes.Conversation) (Completion, error)
}

// AdapterConfig tunes an Adapter.
type AdapterConfig struct {
	// Timeout bounds each backend attempt. Default: DefaultTimeout.
	Timeout time.Duration

	// Params are passed to every backend call.
	Params llm.GenerationParams
}

// Adapter wraps an ordered chain of LLM clients.
//
// # Description
//
// Each client gets exactly one attempt, bounded by the configured timeout,
// in chain order. The first non-empty reply wins. There are no retries.
//
// # Thread Safety
//
// Safe for concurrent use if the clients are.
type Adapter struct {
	clients []llm.LLMClient
	timeout time.Duration
	params  llm.GenerationParams
}

// NewAdapter creates an Adapter. Nil clients are dropped. An Adapter with
// no clients is valid and always unavailable.
func NewAdapter(clients []llm.LLMClient, cfg AdapterConfig) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	a := &Adapter{timeout: cfg.Timeout, params: cfg.Params}
	for _, c := range clients {
		if c != nil {
			a.clients = append(a.clients, c)
		}
	}
	return a
}

// Configured implements Backend.
func (a *Adapter) Configured() bool {
	return a != nil && len(a.clients) > 0
}

// Providers returns the backend names in chain order.
func (a *Adapter) Providers() []string {
	if a == nil {
		return nil
	}
	names := make([]string, len(a.clients))
	for i, c := range a.clients {
		names[i] = c.Name()
	}
	return names
}

// Complete implements Backend.
//
// # Description
//
// Builds the system prompt and history window once, then tries each
// client in order. Missing configuration, an unknown companion, transport
// failures, non-success statuses, timeouts and empty payloads all surface
// as ErrUnavailable.
//
// # Outputs
//
//   - Completion: Reply text and the provider that produced it.
//   - error: nil, or an error wrapping ErrUnavailable and the causes.
func (a *Adapter) Complete(ctx context.Context, c datatypes.Companion, message string, mood datatypes.Mood, convo datatypes.Conversation) (Completion, error) {
	if !a.Configured() {
		return Completion{}, fmt.Errorf("%w: no backend configured", ErrUnavailable)
	}
	if !c.Known {
		return Completion{}, fmt.Errorf("%w: unknown companion %q", ErrUnavailable, c.ID)
	}

	messages := BuildMessages(c, message, mood, convo)

	var errs []error
	for _, client := range a.clients {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		text, err := a.attempt(ctx, client, messages)
		if err == nil {
			return Completion{Text: text, Provider: client.Name()}, nil
		}
		slog.Warn("Generative backend failed",
			"provider", client.Name(),
			"companion_id", c.ID,
			"error", err)
		errs = append(errs, fmt.Errorf("%s: %w", client.Name(), err))
	}

	return Completion{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

func (a *Adapter) attempt(ctx context.Context, client llm.LLMClient, messages []datatypes.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := client.Chat(ctx, messages, a.params)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return strings.TrimSpace(text), nil
}

var _ Backend = (*Adapter)(nil)
