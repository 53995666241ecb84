// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CompanionHaven/cmd/haven/config"
	"github.com/AleutianAI/CompanionHaven/pkg/logging"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator"
)

func runServe(cmd *cobra.Command, args []string) error {
	serverCfg := serverConfig(cfg)
	if servePort != 0 {
		serverCfg.Port = servePort
	}
	if len(serveBackend) > 0 {
		serverCfg.LLMBackends = serveBackend
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := orchestrator.New(ctx, serverCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer svc.Close()

	logger.Info("Server configured",
		"port", serverCfg.Port,
		"tiers", svc.Providers(),
		"history_backend", serverCfg.HistoryBackend,
		"inline_images", serverCfg.InlineImages)

	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// serverConfig maps the config file onto the server configuration.
func serverConfig(c config.HavenConfig) orchestrator.Config {
	rate := c.RateLimit.PerSecond
	if c.RateLimit.Disabled {
		rate = -1
	}
	return orchestrator.Config{
		Port:               c.Server.Port,
		GinMode:            c.Server.GinMode,
		ShutdownTimeout:    c.Server.ShutdownTimeout,
		LLMBackends:        c.LLM.Backends,
		GenerationTimeout:  c.LLM.Timeout,
		OTelExporter:       c.Observability.Exporter,
		OTelEndpoint:       c.Observability.Endpoint,
		EnableMetrics:      c.Observability.Metrics,
		CatalogPath:        logging.ExpandPath(c.Catalog.Path),
		HistoryBackend:     c.History.Backend,
		BadgerPath:         logging.ExpandPath(c.History.BadgerPath),
		RedisURL:           c.History.RedisURL,
		RedisAddr:          c.History.RedisAddr,
		Retention:          c.History.Retention,
		InlineImages:       c.Stream.InlineImages,
		RateLimitPerSecond: rate,
		RateLimitBurst:     c.RateLimit.Burst,
	}
}
