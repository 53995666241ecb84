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
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

const (
	openAIDefaultModel = "gpt-4o-mini"

	groqDefaultBaseURL = "https://api.groq.com/openai/v1"
	groqDefaultModel   = "llama-3.3-70b-versatile"
)

// OpenAIConfig configures an OpenAIClient. Any OpenAI-compatible endpoint
// works by setting BaseURL.
type OpenAIConfig struct {
	// Provider names the backend, e.g. "openai" or "groq".
	Provider string
	APIKey   string
	Model    string
	BaseURL  string

	// Temperature is used when a call does not set one. Zero leaves the
	// server default.
	Temperature float32
	MaxTokens   int
}

// OpenAIConfigFromEnv reads OPENAI_API_KEY (or the openai_api_key podman
// secret), OPENAI_MODEL and OPENAI_BASE_URL.
func OpenAIConfigFromEnv() OpenAIConfig {
	return OpenAIConfig{
		Provider: "openai",
		APIKey:   lookupSecret("OPENAI_API_KEY", "openai_api_key"),
		Model:    envOr("OPENAI_MODEL", openAIDefaultModel),
		BaseURL:  envOr("OPENAI_BASE_URL", ""),
	}
}

// GroqConfigFromEnv reads GROQ_API_KEY (or the groq_api_key podman secret),
// GROQ_MODEL and GROQ_BASE_URL. Groq speaks the OpenAI chat protocol.
func GroqConfigFromEnv() OpenAIConfig {
	return OpenAIConfig{
		Provider:    "groq",
		APIKey:      lookupSecret("GROQ_API_KEY", "groq_api_key"),
		Model:       envOr("GROQ_MODEL", groqDefaultModel),
		BaseURL:     envOr("GROQ_BASE_URL", groqDefaultBaseURL),
		Temperature: 0.8,
	}
}

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client      *openai.Client
	provider    string
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient creates an OpenAIClient. It fails with
// ErrMissingCredential when cfg.APIKey is empty.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrMissingCredential)
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultReplyTokens
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	slog.Info("Initializing OpenAI-compatible client", "provider", cfg.Provider, "model", cfg.Model)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    cfg.Provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name implements LLMClient.
func (o *OpenAIClient) Name() string { return o.provider }

// Chat implements LLMClient.
func (o *OpenAIClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", o.provider),
		attribute.String("llm.model", o.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%s API call failed: %w", o.provider, err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", fmt.Errorf("%s returned no choices: %w", o.provider, ErrEmptyResponse)
	}

	slog.Debug("Received response", "provider", o.provider, "finish_reason", resp.Choices[0].FinishReason)
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		span.SetStatus(codes.Error, "empty content")
		return "", fmt.Errorf("%s: %w", o.provider, ErrEmptyResponse)
	}
	return text, nil
}

func openAIRole(role string) string {
	switch strings.ToLower(role) {
	case datatypes.RoleSystem:
		return openai.ChatMessageRoleSystem
	case datatypes.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

var _ LLMClient = (*OpenAIClient)(nil)
