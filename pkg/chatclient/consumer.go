// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chatclient consumes the companion chat stream.
//
// A Consumer owns one conversation. Each Send runs its own small state
// machine:
//
//	Idle ──► Streaming ──► Completed
//	  │          │
//	  │          ├───────► Failed     (transport error, malformed frame)
//	  │          └───────► Abandoned  (caller cancelled the context)
//	  └──────────────────► Failed     (request could not be opened)
//
// The user turn is appended before the stream opens and is never rolled
// back. A companion turn is committed only on the terminal frame, or as a
// fixed apology on failure. Abandoning a send commits nothing.
//
// When the terminal frame has no image but the message asked for a
// photo, the companion turn starts with PendingImage set and a second
// request resolves the image in the background, updating that same turn.
// Turns are persisted to the server's history sink best-effort; Wait
// blocks until that background work finishes.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CompanionHaven/pkg/chatstream"
	"github.com/AleutianAI/CompanionHaven/pkg/intent"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

// Fixed companion texts shown in place of a failed reply or photo.
const (
	StreamApology = "Sorry, I'm having a moment. Could you say that again?"
	ImageApology  = "I tried to send you a photo but something went wrong. Let me try again later!"
)

// maxHistoryTurns matches the server's limit on history entries.
const maxHistoryTurns = 200

// backgroundTimeout bounds each persistence and image request.
const backgroundTimeout = 30 * time.Second

var (
	// ErrStreamIncomplete wraps every failure after the stream opened.
	ErrStreamIncomplete = errors.New("reply stream did not complete")

	// ErrEmptyMessage is returned for a blank message. No turn is added.
	ErrEmptyMessage = errors.New("message is empty")
)

// =============================================================================
// State
// =============================================================================

// State is the phase of one send.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateAbandoned
}

// =============================================================================
// Observer
// =============================================================================

// Observer receives UI notifications. Callbacks for one send arrive in
// order on the sending goroutine, except OnTurnUpdated for a resolved
// image, which arrives from a background goroutine.
type Observer interface {
	// OnStateChange reports every state transition.
	OnStateChange(state State)

	// OnPartial delivers the accumulated reply text after each chunk.
	OnPartial(text string)

	// OnTurnAppended reports a new committed turn.
	OnTurnAppended(turn Turn)

	// OnTurnUpdated reports a change to an existing turn.
	OnTurnUpdated(turn Turn)
}

// NopObserver ignores every notification. Embed it to implement only the
// callbacks you need.
type NopObserver struct{}

func (NopObserver) OnStateChange(State) {}
func (NopObserver) OnPartial(string)    {}
func (NopObserver) OnTurnAppended(Turn) {}
func (NopObserver) OnTurnUpdated(Turn)  {}

var _ Observer = NopObserver{}

// =============================================================================
// Consumer
// =============================================================================

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	// CompanionID is the companion this conversation is with. Required.
	CompanionID string

	// Mood is sent with every message. Empty means the server default.
	Mood datatypes.Mood

	// Store holds the turns. Default: a new private store.
	Store *ConversationStore

	// Observer receives UI notifications. Default: NopObserver.
	Observer Observer

	// Logger receives diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Result describes one finished send.
type Result struct {
	// State is StateCompleted, StateFailed or StateAbandoned.
	State State

	// User is the optimistic user turn. Zero for ErrEmptyMessage.
	User Turn

	// Companion is the committed companion turn, or nil when abandoned.
	// It is a snapshot; a pending image updates the stored turn later.
	Companion *Turn

	// Err is the cause of a failed or abandoned send.
	Err error
}

// Consumer sends messages for one conversation and commits the replies.
//
// # Thread Safety
//
// Sends are serialized: a second Send waits for the first to finish
// streaming. Read methods may be called at any time.
type Consumer struct {
	client   *Client
	cfg      ConsumerConfig
	convID   string
	reader   *chatstream.Reader
	logger   *slog.Logger
	sendMu   sync.Mutex
	stateMu  sync.RWMutex
	state    State
	inflight sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// NewConsumer creates a Consumer for cfg.CompanionID.
func NewConsumer(client *Client, cfg ConsumerConfig) *Consumer {
	if cfg.Store == nil {
		cfg.Store = NewConversationStore()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client: client,
		cfg:    cfg,
		convID: datatypes.ConversationID(client.SessionID(), cfg.CompanionID),
		reader: chatstream.NewReader(),
		logger: logger.With("companion_id", cfg.CompanionID),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// ConversationID returns the store key of this conversation.
func (c *Consumer) ConversationID() string {
	return c.convID
}

// State returns the state of the most recent send.
func (c *Consumer) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Turns returns a copy of the conversation so far.
func (c *Consumer) Turns() []Turn {
	return c.cfg.Store.Turns(c.convID)
}

// Wait blocks until background persistence and image resolution finish.
func (c *Consumer) Wait() {
	c.inflight.Wait()
}

// Resume loads the server-side history into an empty conversation and
// returns the number of turns loaded. A conversation the server does not
// know yields zero turns.
func (c *Consumer) Resume(ctx context.Context) (int, error) {
	stored, err := c.client.History(ctx, c.cfg.CompanionID)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resume history: %w", err)
	}
	turns := make([]Turn, 0, len(stored))
	for _, m := range stored {
		turns = append(turns, Turn{
			ID:        m.ID,
			Sender:    Sender(m.Sender),
			Text:      m.Content,
			ImageRef:  m.ImageURL,
			CreatedAt: m.CreatedAt,
		})
	}
	if len(turns) == 0 || !c.cfg.Store.Seed(c.convID, turns) {
		return 0, nil
	}
	return len(turns), nil
}

// Send posts message and consumes the reply stream.
//
// # Description
//
// Appends the user turn, streams the reply while reporting partial text,
// and commits the companion turn on the terminal frame. On failure a
// single apology turn is committed instead. If ctx is cancelled
// mid-stream the send is abandoned and no companion turn is committed.
//
// # Outputs
//
//   - Result: Always returned. Result.Err wraps ErrStreamIncomplete for a
//     failure after the stream opened, a *StatusError when the server
//     refused the request, or ctx.Err() when abandoned.
func (c *Consumer) Send(ctx context.Context, message string) Result {
	if strings.TrimSpace(message) == "" {
		c.setState(StateFailed)
		return Result{State: StateFailed, Err: ErrEmptyMessage}
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.setState(StateIdle)
	history := c.historyForRequest()

	user := c.commit(Turn{
		ID:        c.newID(),
		Sender:    SenderUser,
		Text:      message,
		CreatedAt: c.now(),
	})

	body, err := c.client.OpenStream(ctx, datatypes.StreamChatRequest{
		CompanionID: c.cfg.CompanionID,
		Message:     message,
		Mood:        string(c.cfg.Mood),
		History:     history,
	})
	if err != nil {
		if ctx.Err() != nil {
			return c.abandon(user, ctx.Err())
		}
		return c.fail(user, err)
	}
	defer body.Close()

	c.setState(StateStreaming)

	var text strings.Builder
	var terminal *chatstream.Terminal
	err = c.reader.Read(ctx, body, func(f chatstream.Frame) error {
		switch v := f.(type) {
		case *chatstream.Chunk:
			text.WriteString(v.Content)
			c.cfg.Observer.OnPartial(text.String())
		case *chatstream.Terminal:
			terminal = v
		}
		return nil
	})
	if ctx.Err() != nil {
		return c.abandon(user, ctx.Err())
	}
	if err != nil {
		return c.fail(user, fmt.Errorf("%w: %w", ErrStreamIncomplete, err))
	}

	reply := Turn{
		ID:        c.newID(),
		Sender:    SenderCompanion,
		Text:      text.String(),
		CreatedAt: c.now(),
	}
	if terminal.HasImage() {
		reply.ImageRef = *terminal.ImageRef
	} else if intent.IsPhotoRequest(message) {
		reply.PendingImage = true
	}
	reply = c.commit(reply)
	c.setState(StateCompleted)

	c.persist(user, reply)
	if reply.PendingImage {
		c.resolveImage(ctx, reply.ID, intent.DetectPhotoType(message))
	}

	c.logger.Debug("Reply committed",
		"chars", len(reply.Text),
		"pending_image", reply.PendingImage,
		"has_image", reply.ImageRef != "")
	return Result{State: StateCompleted, User: user, Companion: &reply}
}

// historyForRequest converts committed turns to the wire history, most
// recent last. Apologies are real companion turns and are included.
func (c *Consumer) historyForRequest() []datatypes.HistoryEntry {
	turns := c.cfg.Store.Turns(c.convID)
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	if len(turns) == 0 {
		return nil
	}
	out := make([]datatypes.HistoryEntry, 0, len(turns))
	for _, t := range turns {
		role := datatypes.RoleUser
		if t.Sender == SenderCompanion {
			role = datatypes.RoleAssistant
		}
		out = append(out, datatypes.HistoryEntry{Role: role, Content: t.Text})
	}
	return out
}

func (c *Consumer) commit(t Turn) Turn {
	c.cfg.Store.Append(c.convID, t)
	c.cfg.Observer.OnTurnAppended(t)
	return t
}

func (c *Consumer) fail(user Turn, cause error) Result {
	c.logger.Warn("Reply stream failed", "error", cause)
	apology := c.commit(Turn{
		ID:        c.newID(),
		Sender:    SenderCompanion,
		Text:      StreamApology,
		CreatedAt: c.now(),
	})
	c.setState(StateFailed)
	return Result{State: StateFailed, User: user, Companion: &apology, Err: cause}
}

func (c *Consumer) abandon(user Turn, cause error) Result {
	c.logger.Debug("Reply stream abandoned", "error", cause)
	c.setState(StateAbandoned)
	return Result{State: StateAbandoned, User: user, Err: cause}
}

func (c *Consumer) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	c.cfg.Observer.OnStateChange(s)
}

// persist upserts turns in the background. Failures are logged and never
// touch local state.
func (c *Consumer) persist(turns ...Turn) {
	req := datatypes.SaveHistoryRequest{
		SessionID:   c.client.SessionID(),
		CompanionID: c.cfg.CompanionID,
		Messages:    make([]datatypes.StoredMessage, 0, len(turns)),
	}
	for _, t := range turns {
		req.Messages = append(req.Messages, datatypes.StoredMessage{
			ID:        t.ID,
			Sender:    string(t.Sender),
			Content:   t.Text,
			ImageURL:  t.ImageRef,
			CreatedAt: t.CreatedAt,
		})
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := c.client.SaveHistory(ctx, req); err != nil {
			c.logger.Debug("History persistence failed", "error", err)
		}
	}()
}

// resolveImage fetches a photo for a pending turn in the background and
// updates the turn in place. The fetch outlives a cancelled send context
// because the turn is already committed.
func (c *Consumer) resolveImage(ctx context.Context, turnID string, photoType intent.PhotoType) {
	ctx = context.WithoutCancel(ctx)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
		defer cancel()

		img, err := c.client.ResolveImage(ctx, c.cfg.CompanionID, photoType)
		updated, ok := c.cfg.Store.Update(c.convID, turnID, func(t *Turn) {
			t.PendingImage = false
			if err != nil {
				t.Text = ImageApology
				return
			}
			t.ImageRef = img.ImageURL
		})
		if !ok {
			return
		}
		if err != nil {
			c.logger.Warn("Image resolution failed", "photo_type", photoType, "error", err)
		}
		c.cfg.Observer.OnTurnUpdated(updated)
		c.persist(updated)
	}()
}
