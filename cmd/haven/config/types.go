// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the haven configuration file.
//
// The file lives at ~/.haven/haven.yaml and is written with defaults on
// first run. Values from the file are then overridden by HAVEN_*
// environment variables, so containers can be configured without a file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/CompanionHaven/services/llm"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/storage"
)

// HavenConfig is the root of haven.yaml.
type HavenConfig struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	History       HistoryConfig       `yaml:"history"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Stream        StreamConfig        `yaml:"stream"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
	Client        ClientConfig        `yaml:"client"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	GinMode         string        `yaml:"gin_mode,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LLMConfig struct {
	Backends []string      `yaml:"backends"` // tried in order, e.g. [anthropic, groq]
	Timeout  time.Duration `yaml:"timeout"`
}

type HistoryConfig struct {
	Backend    string        `yaml:"backend"` // badger or redis
	BadgerPath string        `yaml:"badger_path"`
	RedisURL   string        `yaml:"redis_url,omitempty"`
	RedisAddr  string        `yaml:"redis_addr,omitempty"`
	Retention  time.Duration `yaml:"retention"`
}

type CatalogConfig struct {
	Path string `yaml:"path,omitempty"` // empty uses the built-in companions
}

type StreamConfig struct {
	InlineImages bool `yaml:"inline_images"`
}

type RateLimitConfig struct {
	Disabled  bool    `yaml:"disabled"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type ObservabilityConfig struct {
	Exporter string `yaml:"exporter"` // otlp, stdout or none
	Endpoint string `yaml:"endpoint,omitempty"`
	Metrics  bool   `yaml:"metrics"`
}

// ClientConfig holds the defaults of `haven chat`.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	Companion string `yaml:"companion"`
	Mood      string `yaml:"mood,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() HavenConfig {
	return HavenConfig{
		Server: ServerConfig{
			Port:            12210,
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Backends: []string{llm.BackendAnthropic, llm.BackendGroq},
			Timeout:  8 * time.Second,
		},
		History: HistoryConfig{
			Backend:    storage.HistoryBackendBadger,
			BadgerPath: "~/.haven/history",
			Retention:  storage.DefaultRetention,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 5,
			Burst:     20,
		},
		Observability: ObservabilityConfig{
			Exporter: "none",
			Metrics:  true,
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:12210",
			Companion: "mia",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate rejects values the server cannot start with.
func (c HavenConfig) Validate() error {
	var problems []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.History.Backend {
	case storage.HistoryBackendBadger, storage.HistoryBackendRedis:
	default:
		problems = append(problems, fmt.Sprintf("history.backend %q must be badger or redis", c.History.Backend))
	}
	if c.History.Backend == storage.HistoryBackendRedis && c.History.RedisURL == "" && c.History.RedisAddr == "" {
		problems = append(problems, "history.backend redis needs redis_url or redis_addr")
	}
	switch c.Observability.Exporter {
	case "", "otlp", "stdout", "none":
	default:
		problems = append(problems, fmt.Sprintf("observability.exporter %q must be otlp, stdout or none", c.Observability.Exporter))
	}
	if !c.RateLimit.Disabled && c.RateLimit.PerSecond < 0 {
		problems = append(problems, "rate_limit.per_second must not be negative")
	}
	if _, ok := datatypes.ParseMood(c.Client.Mood); !ok {
		problems = append(problems, fmt.Sprintf("client.mood %q is not a known mood", c.Client.Mood))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
