// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CompanionHaven/pkg/chatstream"
	"github.com/AleutianAI/CompanionHaven/services/llm"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// noCredentials makes every keyed LLM backend report a missing credential.
func noCredentials(t *testing.T) {
	t.Helper()
	prev := llm.SecretsDir
	llm.SecretsDir = t.TempDir()
	t.Cleanup(func() { llm.SecretsDir = prev })
	for _, key := range []string{"ANTHROPIC_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(key, "")
	}
}

func newTestService(t *testing.T, cfg Config) Service {
	t.Helper()
	noCredentials(t)

	mr := miniredis.RunT(t)
	cfg.HistoryBackend = storage.HistoryBackendRedis
	cfg.RedisAddr = mr.Addr()

	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

// =============================================================================
// Config Tests
// =============================================================================

func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 12210, result.Port, "default port should be 12210")
	assert.Equal(t, []string{llm.BackendAnthropic, llm.BackendGroq}, result.LLMBackends)
	assert.Equal(t, 8*time.Second, result.GenerationTimeout)
	assert.Equal(t, ExporterNone, result.OTelExporter)
	assert.Equal(t, storage.HistoryBackendBadger, result.HistoryBackend)
	assert.Equal(t, storage.DefaultRetention, result.Retention)
	assert.Equal(t, 10*time.Second, result.ShutdownTimeout)
	assert.False(t, result.InlineImages, "inline images are off by default")
}

func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	cfg := Config{
		Port:           8080,
		LLMBackends:    []string{"ollama"},
		OTelExporter:   ExporterStdout,
		OTelEndpoint:   "collector:4317",
		HistoryBackend: storage.HistoryBackendRedis,
		Retention:      time.Hour,
	}

	result := applyConfigDefaults(cfg)

	assert.Equal(t, 8080, result.Port)
	assert.Equal(t, []string{"ollama"}, result.LLMBackends)
	assert.Equal(t, ExporterStdout, result.OTelExporter)
	assert.Equal(t, "collector:4317", result.OTelEndpoint)
	assert.Equal(t, storage.HistoryBackendRedis, result.HistoryBackend)
	assert.Equal(t, time.Hour, result.Retention)
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_NoCredentialsFallsBackToPersonality(t *testing.T) {
	svc := newTestService(t, Config{})

	assert.Empty(t, svc.Providers())

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string   `json:"status"`
		Tiers  []string `json:"tiers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, []string{"personality"}, body.Tiers)
}

func TestNew_UnknownBackendFails(t *testing.T) {
	noCredentials(t)
	mr := miniredis.RunT(t)

	_, err := New(context.Background(), Config{
		LLMBackends:    []string{"carrier-pigeon"},
		HistoryBackend: storage.HistoryBackendRedis,
		RedisAddr:      mr.Addr(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestNew_UnknownExporterFails(t *testing.T) {
	noCredentials(t)

	_, err := New(context.Background(), Config{OTelExporter: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNew_BadCatalogFails(t *testing.T) {
	noCredentials(t)
	mr := miniredis.RunT(t)

	_, err := New(context.Background(), Config{
		CatalogPath:    t.TempDir() + "/missing.yaml",
		HistoryBackend: storage.HistoryBackendRedis,
		RedisAddr:      mr.Addr(),
	})
	require.Error(t, err)
}

func TestNew_StreamsFromPersonalityEngine(t *testing.T) {
	svc := newTestService(t, Config{RateLimitPerSecond: -1})

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream",
		strings.NewReader(`{"companionId":"mia","message":"hi there"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	result, err := chatstream.NewReader().ReadAll(context.Background(), w.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Text)
	require.NotNil(t, result.Terminal)
	assert.Equal(t, "Mia", result.Terminal.CompanionName)
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_StopsOnContextCancel(t *testing.T) {
	svc := newTestService(t, Config{ShutdownTimeout: time.Second})

	// Listen on an ephemeral port.
	svc.(*service).config.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

var _ Service = (*service)(nil)
