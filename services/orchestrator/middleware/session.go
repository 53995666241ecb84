// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides gin middleware for the chat server: session
// id passthrough and per-session rate limiting.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionHeader carries the client's opaque session id.
const SessionHeader = "X-Session-ID"

const sessionIDKey = "haven_session_id"

// maxSessionIDLen bounds a client-supplied session id.
const maxSessionIDLen = 128

// SetSessionID stores the session id on the context.
func SetSessionID(c *gin.Context, id string) {
	c.Set(sessionIDKey, id)
}

// GetSessionID returns the session id set by SessionMiddleware, or the
// client IP when the middleware did not run.
func GetSessionID(c *gin.Context) string {
	if v, ok := c.Get(sessionIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return c.ClientIP()
}

// SessionMiddleware resolves the opaque session id for every request.
//
// # Description
//
// Uses the X-Session-ID header when present and well-formed, and the
// client IP otherwise. The id is never authenticated; it only scopes
// history and rate limits.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		SetSessionID(c, resolveSessionID(c))
		c.Next()
	}
}

func resolveSessionID(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(SessionHeader))
	if id == "" || len(id) > maxSessionIDLen || strings.ContainsFunc(id, isControl) {
		return c.ClientIP()
	}
	return id
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
