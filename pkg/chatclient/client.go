// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/AleutianAI/CompanionHaven/pkg/intent"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// SessionHeader carries the opaque session id to the server.
const SessionHeader = "X-Session-ID"

// HTTPDoer is the subset of *http.Client the Client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// =============================================================================
// Client
// =============================================================================

// Client talks to the companion chat server.
//
// # Description
//
// Every request carries the session id in X-Session-ID so the server can
// rate limit and key history by session. The default HTTP client has no
// overall timeout, since a reply stream stays open while it is paced;
// use the request context to bound calls.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	baseURL   string
	http      HTTPDoer
	sessionID string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP transport.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) { c.http = doer }
}

// WithSessionID resumes an existing session instead of starting a new one.
func WithSessionID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.sessionID = id
		}
	}
}

// NewClient creates a Client for the server at baseURL, for example
// "http://localhost:12210".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the session id sent with every request.
func (c *Client) SessionID() string {
	return c.sessionID
}

// OpenStream posts a chat request and returns the SSE body.
//
// # Outputs
//
//   - io.ReadCloser: The event stream. The caller must close it.
//   - error: *StatusError for a non-200 answer (400 for a malformed
//     request, 429 when rate limited), or a transport error.
func (c *Client) OpenStream(ctx context.Context, req datatypes.StreamChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, "/api/chat/stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}
	return resp.Body, nil
}

// SaveHistory upserts turns into the server-side history sink.
func (c *Client) SaveHistory(ctx context.Context, req datatypes.SaveHistoryRequest) error {
	if req.SessionID == "" {
		req.SessionID = c.sessionID
	}
	return c.doJSON(ctx, http.MethodPost, "/api/chat/public/save", req, nil)
}

// ResolveImage asks the server for a companion photo.
func (c *Client) ResolveImage(ctx context.Context, companionID string, photoType intent.PhotoType) (datatypes.ImageResult, error) {
	var out struct {
		Data datatypes.ImageResult `json:"data"`
	}
	body := datatypes.ImageRequest{CompanionID: companionID, PhotoType: string(photoType)}
	if err := c.doJSON(ctx, http.MethodPost, "/api/images/generate", body, &out); err != nil {
		return datatypes.ImageResult{}, err
	}
	if out.Data.ImageURL == "" {
		return datatypes.ImageResult{}, errors.New("resolve image: empty imageUrl")
	}
	return out.Data, nil
}

// History fetches the stored turns of this session's conversation with
// companionID, oldest first.
func (c *Client) History(ctx context.Context, companionID string) ([]datatypes.StoredMessage, error) {
	var out struct {
		Data []datatypes.StoredMessage `json:"data"`
	}
	path := "/api/chat/public/history/" + url.PathEscape(companionID) +
		"?sessionId=" + url.QueryEscape(c.sessionID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Health returns the server's active reply tiers.
func (c *Client) Health(ctx context.Context) ([]string, error) {
	var out struct {
		Status string   `json:"status"`
		Tiers  []string `json:"tiers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out.Tiers, nil
}

// =============================================================================
// Helpers
// =============================================================================

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(SessionHeader, c.sessionID)
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newJSONRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readStatusError builds a StatusError from an {"error": "..."} body,
// falling back to the raw text.
func readStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
