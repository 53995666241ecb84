// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// clearEnv blanks every variable ApplyEnv reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HAVEN_PORT", "GIN_MODE", "HAVEN_LLM_BACKEND", "HAVEN_GENERATION_TIMEOUT",
		"HAVEN_HISTORY_BACKEND", "HAVEN_BADGER_PATH", "HAVEN_REDIS_URL", "HAVEN_REDIS_ADDR",
		"HAVEN_HISTORY_RETENTION", "HAVEN_CATALOG", "HAVEN_INLINE_IMAGES",
		"HAVEN_OTEL_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT", "HAVEN_SERVER_URL", "HAVEN_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFrom_FirstRunWritesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "haven.yaml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "retention: 720h0m0s")
	assert.Contains(t, string(data), "- anthropic")

	var roundTrip HavenConfig
	require.NoError(t, yaml.Unmarshal(data, &roundTrip))
	assert.Equal(t, DefaultConfig(), roundTrip)
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "haven.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
llm:
  backends: [groq]
stream:
  inline_images: true
`), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"groq"}, cfg.LLM.Backends)
	assert.True(t, cfg.Stream.InlineImages)
	assert.Equal(t, 8*time.Second, cfg.LLM.Timeout, "unset keys keep defaults")
	assert.Equal(t, "badger", cfg.History.Backend)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "haven.yaml")
	t.Setenv("HAVEN_PORT", "8081")
	t.Setenv("HAVEN_LLM_BACKEND", "ollama, gemini")
	t.Setenv("HAVEN_HISTORY_BACKEND", "redis")
	t.Setenv("HAVEN_REDIS_ADDR", "localhost:6379")
	t.Setenv("HAVEN_GENERATION_TIMEOUT", "3s")
	t.Setenv("HAVEN_INLINE_IMAGES", "true")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, []string{"ollama", "gemini"}, cfg.LLM.Backends)
	assert.Equal(t, "redis", cfg.History.Backend)
	assert.Equal(t, "localhost:6379", cfg.History.RedisAddr)
	assert.Equal(t, 3*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.Stream.InlineImages)
}

func TestLoadFrom_MalformedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HAVEN_PORT", "eighty")
	t.Setenv("HAVEN_GENERATION_TIMEOUT", "soon")

	_, err := LoadFrom(filepath.Join(t.TempDir(), "haven.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HAVEN_PORT")
	assert.Contains(t, err.Error(), "HAVEN_GENERATION_TIMEOUT")
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "haven.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0600))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*HavenConfig)
		wantErr string
	}{
		{"defaults", func(*HavenConfig) {}, ""},
		{"bad port", func(c *HavenConfig) { c.Server.Port = 70000 }, "server.port"},
		{"bad backend", func(c *HavenConfig) { c.History.Backend = "sqlite" }, "history.backend"},
		{"redis without address", func(c *HavenConfig) { c.History.Backend = "redis" }, "redis_url or redis_addr"},
		{"redis with url", func(c *HavenConfig) {
			c.History.Backend = "redis"
			c.History.RedisURL = "redis://localhost:6379/0"
		}, ""},
		{"bad exporter", func(c *HavenConfig) { c.Observability.Exporter = "zipkin" }, "observability.exporter"},
		{"bad mood", func(c *HavenConfig) { c.Client.Mood = "grumpy" }, "client.mood"},
		{"negative rate", func(c *HavenConfig) { c.RateLimit.PerSecond = -1 }, "rate_limit"},
		{"negative rate but disabled", func(c *HavenConfig) {
			c.RateLimit.PerSecond = -1
			c.RateLimit.Disabled = true
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}
