// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the companion chat
// server.
//
// Metrics cover:
//   - Stream lifecycle (requests, active streams, frames, duration,
//     client disconnects)
//   - Reply generation (which tier answered, backend latency, fallbacks)
//   - Side endpoints (history writes, image resolutions, rate limiting)
//
// Metrics are exposed on /metrics. Handlers reach them through
// DefaultMetrics and must nil-check it, since metrics can be disabled.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "haven"

const (
	streamingSubsystem  = "streaming"
	generationSubsystem = "generation"
	apiSubsystem        = "api"
)

// StreamingMetrics holds all Prometheus metrics for the chat server.
type StreamingMetrics struct {
	// RequestsTotal counts requests by endpoint and status.
	RequestsTotal *prometheus.CounterVec

	// FramesTotal counts SSE frames written by endpoint and kind
	// ("chunk" or "terminal").
	FramesTotal *prometheus.CounterVec

	StreamDurationSeconds *prometheus.HistogramVec

	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by endpoint and ErrorCode.
	ErrorsTotal *prometheus.CounterVec

	ClientDisconnectsTotal *prometheus.CounterVec

	// TierSelectionsTotal counts which tier produced a reply: a backend
	// provider name or "personality".
	TierSelectionsTotal *prometheus.CounterVec

	// BackendLatencySeconds measures generative backend calls by outcome.
	BackendLatencySeconds *prometheus.HistogramVec

	// FallbacksTotal counts replies that fell back to the personality tier,
	// by reason ("unconfigured", "unknown_companion", "unavailable").
	FallbacksTotal *prometheus.CounterVec

	HistoryWritesTotal *prometheus.CounterVec

	ImageResolutionsTotal *prometheus.CounterVec

	RateLimitedTotal prometheus.Counter
}

// DefaultMetrics is the process-wide instance, set by InitMetrics.
var DefaultMetrics *StreamingMetrics

var initOnce sync.Once

// InitMetrics registers metrics with the default Prometheus registry and
// sets DefaultMetrics. Later calls return the same instance.
func InitMetrics() *StreamingMetrics {
	initOnce.Do(func() {
		DefaultMetrics = NewStreamingMetrics(prometheus.DefaultRegisterer)
	})
	return DefaultMetrics
}

// NewStreamingMetrics registers a fresh set of metrics with reg. Tests pass
// prometheus.NewRegistry() to stay isolated.
func NewStreamingMetrics(reg prometheus.Registerer) *StreamingMetrics {
	factory := promauto.With(reg)

	return &StreamingMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "requests_total",
				Help:      "Total number of chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		FramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "frames_total",
				Help:      "Total SSE frames written by endpoint and kind",
			},
			[]string{"endpoint", "kind"},
		),

		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint", "status"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming connections",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and error code",
			},
			[]string{"endpoint", "error_code"},
		),

		ClientDisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),

		TierSelectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "tier_selections_total",
				Help:      "Replies by the tier that produced them",
			},
			[]string{"tier"},
		),

		BackendLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "backend_latency_seconds",
				Help:      "Generative tier latency in seconds by outcome",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"status"},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "fallbacks_total",
				Help:      "Replies that fell back to the personality engine by reason",
			},
			[]string{"reason"},
		),

		HistoryWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "history_writes_total",
				Help:      "History save requests by status",
			},
			[]string{"status"},
		),

		ImageResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "image_resolutions_total",
				Help:      "Image resolution requests by status",
			},
			[]string{"status"},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: apiSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-session rate limiter",
			},
		),
	}
}

// =============================================================================
// Error Codes and Endpoints
// =============================================================================

// ErrorCode classifies errors for metrics.
type ErrorCode string

const (
	ErrorCodeValidation       ErrorCode = "validation"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeInternal         ErrorCode = "internal"
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
	ErrorCodeRateLimited      ErrorCode = "rate_limited"
)

// Endpoint labels metrics by route.
type Endpoint string

const (
	EndpointChatStream Endpoint = "chat_stream"
	EndpointChatPublic Endpoint = "chat_public"
	EndpointImages     Endpoint = "images"
	EndpointHistory    Endpoint = "history"
)

// =============================================================================
// Recording Helpers
// =============================================================================

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordRequest counts a request.
func (m *StreamingMetrics) RecordRequest(endpoint Endpoint, success bool) {
	m.RequestsTotal.WithLabelValues(string(endpoint), statusLabel(success)).Inc()
}

// RecordError counts an error.
func (m *StreamingMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordFrame counts one written frame.
func (m *StreamingMetrics) RecordFrame(endpoint Endpoint, terminal bool) {
	kind := "chunk"
	if terminal {
		kind = "terminal"
	}
	m.FramesTotal.WithLabelValues(string(endpoint), kind).Inc()
}

// StreamStarted increments the active stream gauge.
func (m *StreamingMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *StreamingMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordStreamDuration observes the total stream duration.
func (m *StreamingMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), statusLabel(success)).Observe(seconds)
}

// RecordClientDisconnect counts a stream cut short by the client.
func (m *StreamingMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordTier counts a reply by the tier that produced it.
func (m *StreamingMetrics) RecordTier(tier string) {
	m.TierSelectionsTotal.WithLabelValues(tier).Inc()
}

// RecordBackendLatency observes a generative tier call.
func (m *StreamingMetrics) RecordBackendLatency(seconds float64, success bool) {
	m.BackendLatencySeconds.WithLabelValues(statusLabel(success)).Observe(seconds)
}

// RecordFallback counts a fallback to the personality tier.
func (m *StreamingMetrics) RecordFallback(reason string) {
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordHistoryWrite counts a history save.
func (m *StreamingMetrics) RecordHistoryWrite(success bool) {
	m.HistoryWritesTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordImageResolution counts an image request.
func (m *StreamingMetrics) RecordImageResolution(success bool) {
	m.ImageResolutionsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordRateLimited counts a rejected request.
func (m *StreamingMetrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}
