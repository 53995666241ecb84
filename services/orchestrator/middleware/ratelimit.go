// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/CompanionHaven/services/orchestrator/observability"
)

// Rate limit defaults.
const (
	DefaultRatePerSecond = 5
	DefaultBurst         = 20
	DefaultLimiterIdle   = 30 * time.Minute
)

// RateLimitConfig tunes the per-session limiter.
type RateLimitConfig struct {
	// PerSecond is the sustained request rate. Zero uses the default.
	PerSecond float64

	// Burst is the bucket size. Zero uses the default.
	Burst int

	// IdleTimeout is how long an unused session limiter is kept.
	IdleTimeout time.Duration
}

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per session id.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu       sync.RWMutex
	sessions map[string]*sessionLimiter
	now      func() time.Time
}

// NewRateLimiter creates a RateLimiter. Zero config fields use defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = DefaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultLimiterIdle
	}
	return &RateLimiter{
		limit:    rate.Limit(cfg.PerSecond),
		burst:    cfg.Burst,
		idle:     cfg.IdleTimeout,
		sessions: make(map[string]*sessionLimiter),
		now:      time.Now,
	}
}

// Allow reports whether one more request from session may proceed.
func (l *RateLimiter) Allow(session string) bool {
	return l.limiterFor(session).Allow()
}

func (l *RateLimiter) limiterFor(session string) *rate.Limiter {
	now := l.now()

	l.mu.RLock()
	s, ok := l.sessions[session]
	l.mu.RUnlock()
	if ok {
		l.mu.Lock()
		s.lastSeen = now
		l.mu.Unlock()
		return s.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring the write lock.
	if s, ok = l.sessions[session]; ok {
		s.lastSeen = now
		return s.limiter
	}
	s = &sessionLimiter{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.sessions[session] = s
	return s.limiter
}

// Sweep drops limiters idle for longer than the idle timeout and returns
// how many were removed.
func (l *RateLimiter) Sweep() int {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, s := range l.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(l.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (l *RateLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// RunSweeper calls Sweep every interval until ctx ends.
func (l *RateLimiter) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Middleware rejects over-limit requests with 429 before any handler
// runs. It must be installed after SessionMiddleware.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(GetSessionID(c)) {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRateLimited()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, slow down a little",
			})
			return
		}
		c.Next()
	}
}
