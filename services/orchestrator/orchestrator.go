// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the companion chat server.
//
// The orchestrator owns every long-lived component: the tracer, the LLM
// tier chain, the companion catalogue, the history store, the rate
// limiter and the gin router. Run serves HTTP until its context ends and
// then shuts everything down in order.
//
// # Usage
//
//	svc, err := orchestrator.New(ctx, orchestrator.Config{Port: 12210})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//	if err := svc.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/CompanionHaven/services/llm"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/generation"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/handlers"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/middleware"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/observability"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/persona"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/routes"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/storage"
)

const serviceName = "haven-chat"

// Tracer exporters accepted in Config.OTelExporter.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Service is the running chat server.
type Service interface {
	// Run serves HTTP until ctx ends or the server fails, then shuts the
	// server down gracefully.
	Run(ctx context.Context) error

	// Router exposes the gin engine for tests.
	Router() *gin.Engine

	// Providers lists the generative backends in chain order.
	Providers() []string

	// Close releases stores and flushes the tracer. Safe to call once
	// after Run returns.
	Close()
}

// Config holds the server configuration. Zero values are filled by
// applyConfigDefaults.
type Config struct {
	// Port is the HTTP listen port. Default: 12210.
	Port int

	// LLMBackends is the generative tier chain, tried in order. Backends
	// without credentials are skipped. Default: anthropic, groq.
	LLMBackends []string

	// GenerationTimeout bounds one backend attempt. Default: 8s.
	GenerationTimeout time.Duration

	// OTelExporter is "otlp", "stdout" or "none". Default: none.
	OTelExporter string

	// OTelEndpoint is the OTLP gRPC collector address.
	OTelEndpoint string

	// EnableMetrics registers Prometheus metrics and /metrics.
	EnableMetrics bool

	// GinMode is passed to gin.SetMode when set.
	GinMode string

	// CatalogPath is the companion YAML file. Empty uses the embedded
	// catalogue.
	CatalogPath string

	// HistoryBackend is "badger" or "redis". Default: badger.
	HistoryBackend string

	// BadgerPath is the badger directory. Default: ./data/history.
	BadgerPath string

	// RedisURL or RedisAddr locate the redis server.
	RedisURL  string
	RedisAddr string

	// Retention is the history TTL. Default: 720h.
	Retention time.Duration

	// InlineImages attaches photos to terminal frames.
	InlineImages bool

	// RateLimitPerSecond and RateLimitBurst tune the per-session limiter.
	// A negative rate disables rate limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration
}

type service struct {
	config        Config
	router        *gin.Engine
	clients       []llm.LLMClient
	adapter       *generation.Adapter
	catalog       *storage.Catalog
	history       storage.HistoryStore
	limiter       *middleware.RateLimiter
	tracerCleanup func(context.Context)
}

// New builds every component. On error, everything built so far is
// released.
func New(ctx context.Context, cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	cleanup, err := s.initTracer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initLLMClients(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize LLM clients: %w", err)
	}

	s.catalog, err = storage.NewCatalog(s.config.CatalogPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load companion catalogue: %w", err)
	}

	s.history, err = storage.NewHistoryStore(ctx, s.historyConfig())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	if s.config.RateLimitPerSecond >= 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			PerSecond: s.config.RateLimitPerSecond,
			Burst:     s.config.RateLimitBurst,
		})
	}

	s.initRouter()
	return s, nil
}

// Run implements Service.
func (s *service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting companion chat server",
			"port", s.config.Port,
			"tiers", s.Providers(),
			"history_backend", s.config.HistoryBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		slog.Info("Shutting down companion chat server")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return s.catalog.Watch(ctx)
	})

	if s.limiter != nil {
		g.Go(func() error {
			return s.limiter.RunSweeper(ctx, 5*time.Minute)
		})
	}

	return g.Wait()
}

// Router implements Service.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Providers implements Service.
func (s *service) Providers() []string {
	return s.adapter.Providers()
}

// Close implements Service.
func (s *service) Close() {
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Warn("History store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if len(cfg.LLMBackends) == 0 {
		cfg.LLMBackends = []string{llm.BackendAnthropic, llm.BackendGroq}
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = generation.DefaultTimeout
	}
	if cfg.OTelExporter == "" {
		cfg.OTelExporter = ExporterNone
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	if cfg.HistoryBackend == "" {
		cfg.HistoryBackend = storage.HistoryBackendBadger
	}
	if cfg.BadgerPath == "" {
		cfg.BadgerPath = "./data/history"
	}
	if cfg.Retention == 0 {
		cfg.Retention = storage.DefaultRetention
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}

func (s *service) historyConfig() storage.HistoryConfig {
	badgerCfg := storage.DefaultBadgerConfig(s.config.BadgerPath)
	badgerCfg.Retention = s.config.Retention
	return storage.HistoryConfig{
		Backend: s.config.HistoryBackend,
		Badger:  badgerCfg,
		Redis: storage.RedisConfig{
			URL:       s.config.RedisURL,
			Addr:      s.config.RedisAddr,
			Retention: s.config.Retention,
		},
	}
}

// initTracer installs the global tracer provider for the configured
// exporter and returns its shutdown function.
func (s *service) initTracer(ctx context.Context) (func(context.Context), error) {
	var exporter sdktrace.SpanExporter
	switch s.config.OTelExporter {
	case ExporterNone:
		return func(context.Context) {}, nil

	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		exporter = exp

	case ExporterOTLP:
		conn, err := grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporter = exp

	default:
		return nil, fmt.Errorf("unknown OTel exporter %q", s.config.OTelExporter)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}
	return cleanup, nil
}

// initLLMClients builds the generative tier chain. Backends without
// credentials are skipped; any other failure is fatal.
func (s *service) initLLMClients(ctx context.Context) error {
	for _, name := range s.config.LLMBackends {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		client, err := llm.NewBackend(ctx, name)
		if errors.Is(err, llm.ErrMissingCredential) {
			slog.Info("LLM backend not configured, skipping", "backend", name)
			continue
		}
		if err != nil {
			return fmt.Errorf("backend %s: %w", name, err)
		}
		slog.Info("Using LLM backend", "backend", client.Name())
		s.clients = append(s.clients, client)
	}

	s.adapter = generation.NewAdapter(s.clients, generation.AdapterConfig{
		Timeout: s.config.GenerationTimeout,
	})
	if !s.adapter.Configured() {
		slog.Warn("No generative backend configured, replies come from the personality engine only")
	}
	return nil
}

func (s *service) initRouter() {
	s.router = gin.New()
	s.router.Use(gin.Recovery(), gin.Logger())
	s.router.Use(otelgin.Middleware(serviceName))

	selector := generation.NewSelector(s.adapter, persona.NewEngine(nil))
	images := handlers.NewImageResolver(s.catalog, nil)

	routes.SetupRoutes(s.router, routes.Dependencies{
		Chat: handlers.NewChatHandler(s.catalog, selector, images, handlers.ChatHandlerConfig{
			InlineImages: s.config.InlineImages,
		}),
		Images:        handlers.NewImageHandler(images),
		History:       handlers.NewHistoryHandler(s.history),
		Tiers:         s.adapter.Providers(),
		RateLimiter:   s.limiter,
		EnableMetrics: s.config.EnableMetrics,
	})
}

var _ Service = (*service)(nil)
