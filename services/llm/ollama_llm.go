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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

const ollamaDefaultModel = "llama3.2"

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []datatypes.Message `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message   datatypes.Message `json:"message"`
	CreatedAt string            `json:"created_at"`
	Done      bool              `json:"done"`
	Error     string            `json:"error,omitempty"`
}

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OllamaConfigFromEnv reads OLLAMA_BASE_URL and OLLAMA_MODEL.
func OllamaConfigFromEnv() OllamaConfig {
	return OllamaConfig{
		BaseURL: envOr("OLLAMA_BASE_URL", ""),
		Model:   envOr("OLLAMA_MODEL", ollamaDefaultModel),
	}
}

// OllamaClient talks to a local Ollama server. It needs no API key; an
// empty BaseURL counts as the missing credential.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient creates an OllamaClient.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama: base URL not set: %w", ErrMissingCredential)
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", cfg.Model)
	return &OllamaClient{
		httpClient: cfg.HTTPClient,
		baseURL:    baseURL,
		model:      cfg.Model,
	}, nil
}

// Name implements LLMClient.
func (o *OllamaClient) Name() string { return "ollama" }

// Chat implements LLMClient using a non-streaming /api/chat call.
func (o *OllamaClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	options := map[string]any{"num_predict": defaultReplyTokens}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Options:  options,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to marshal chat request to Ollama: %w", err))
	}

	chatURL := o.baseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("failed to create chat request to Ollama: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("failed to send the request to %s: %w", chatURL, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("failed to read Ollama response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("ollama chat failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 256)))
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return fail(fmt.Errorf("failed to parse Ollama chat response: %w", err))
	}
	if ollamaResp.Error != "" {
		return fail(fmt.Errorf("ollama chat error: %s", ollamaResp.Error))
	}

	text := strings.TrimSpace(ollamaResp.Message.Content)
	if text == "" {
		return fail(ErrEmptyResponse)
	}
	return text, nil
}

var _ LLMClient = (*OllamaClient)(nil)
