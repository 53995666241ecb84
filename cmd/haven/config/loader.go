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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// Global holds the configuration loaded by Load.
	Global  HavenConfig
	once    sync.Once
	loadErr error
)

// Load reads the default config file into Global once per process.
func Load() error {
	once.Do(func() {
		path, err := DefaultPath()
		if err != nil {
			loadErr = err
			return
		}
		Global, loadErr = LoadFrom(path)
	})
	return loadErr
}

// DefaultPath returns ~/.haven/haven.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".haven", "haven.yaml"), nil
}

// LoadFrom reads path, writing the defaults there first if it does not
// exist. Keys missing from the file keep their default values. Environment
// overrides are applied last and the result is validated.
func LoadFrom(path string) (HavenConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Info("First run detected, creating config", "path", path)
		if err := createDefault(path); err != nil {
			return HavenConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return HavenConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return HavenConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return HavenConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return HavenConfig{}, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides cfg with HAVEN_* environment variables. A malformed
// number or duration is an error rather than a silent default.
func ApplyEnv(cfg *HavenConfig) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.Server.Port, err = getEnvInt("HAVEN_PORT", cfg.Server.Port)
	collect(err)
	cfg.Server.GinMode = getEnvString("GIN_MODE", cfg.Server.GinMode)

	if backends := getEnvString("HAVEN_LLM_BACKEND", ""); backends != "" {
		cfg.LLM.Backends = splitList(backends)
	}
	cfg.LLM.Timeout, err = getEnvDuration("HAVEN_GENERATION_TIMEOUT", cfg.LLM.Timeout)
	collect(err)

	cfg.History.Backend = getEnvString("HAVEN_HISTORY_BACKEND", cfg.History.Backend)
	cfg.History.BadgerPath = getEnvString("HAVEN_BADGER_PATH", cfg.History.BadgerPath)
	cfg.History.RedisURL = getEnvString("HAVEN_REDIS_URL", cfg.History.RedisURL)
	cfg.History.RedisAddr = getEnvString("HAVEN_REDIS_ADDR", cfg.History.RedisAddr)
	cfg.History.Retention, err = getEnvDuration("HAVEN_HISTORY_RETENTION", cfg.History.Retention)
	collect(err)

	cfg.Catalog.Path = getEnvString("HAVEN_CATALOG", cfg.Catalog.Path)

	cfg.Stream.InlineImages, err = getEnvBool("HAVEN_INLINE_IMAGES", cfg.Stream.InlineImages)
	collect(err)

	cfg.Observability.Exporter = getEnvString("HAVEN_OTEL_EXPORTER", cfg.Observability.Exporter)
	cfg.Observability.Endpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.Endpoint)

	cfg.Client.ServerURL = getEnvString("HAVEN_SERVER_URL", cfg.Client.ServerURL)
	cfg.Logging.Level = getEnvString("HAVEN_LOG_LEVEL", cfg.Logging.Level)

	return errors.Join(errs...)
}

// =============================================================================
// Environment Helpers
// =============================================================================

func getEnvString(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
