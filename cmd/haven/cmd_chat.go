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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/CompanionHaven/cmd/haven/config"
	"github.com/AleutianAI/CompanionHaven/pkg/chatclient"
	"github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"
)

var (
	colorRose  = lipgloss.Color("#E8739E")
	colorSlate = lipgloss.Color("#6C7A89")
	colorAmber = lipgloss.Color("#F4D03F")

	chatStyles = struct {
		Companion lipgloss.Style
		You       lipgloss.Style
		Muted     lipgloss.Style
		Warning   lipgloss.Style
	}{
		Companion: lipgloss.NewStyle().Bold(true).Foreground(colorRose),
		You:       lipgloss.NewStyle().Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(colorSlate),
		Warning:   lipgloss.NewStyle().Foreground(colorAmber),
	}
)

// chatTarget resolves the companion and mood from flags over config and
// rejects values the server would refuse.
func chatTarget(companionFlag, moodFlag string, c config.ClientConfig) (string, datatypes.Mood, error) {
	companionID := strings.TrimSpace(firstNonEmpty(companionFlag, c.Companion))
	if companionID == "" {
		return "", "", fmt.Errorf("no companion selected: pass --companion or set client.companion")
	}
	if !datatypes.IsSafeID(companionID) {
		return "", "", fmt.Errorf("invalid companion id %q", companionID)
	}

	raw := firstNonEmpty(moodFlag, c.Mood)
	mood, ok := datatypes.ParseMood(raw)
	if !ok {
		return "", "", fmt.Errorf("unknown mood %q (want one of %s)", raw, moodNames())
	}
	return companionID, mood, nil
}

func moodNames() string {
	names := make([]string, len(datatypes.Moods))
	for i, m := range datatypes.Moods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func runChat(cmd *cobra.Command, args []string) error {
	companionID, mood, err := chatTarget(chatCompanion, chatMood, cfg.Client)
	if err != nil {
		return err
	}

	client := chatclient.NewClient(
		firstNonEmpty(chatServer, cfg.Client.ServerURL),
		chatclient.WithSessionID(chatSession))

	out := cmd.OutOrStdout()
	renderer := newChatRenderer(out, companionID, isTerminal(os.Stdout))
	consumer := chatclient.NewConsumer(client, chatclient.ConsumerConfig{
		CompanionID: companionID,
		Mood:        mood,
		Observer:    renderer,
		Logger:      logger.Slog(),
	})

	ctx := cmd.Context()
	tiers, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("server not reachable: %w", err)
	}
	renderer.banner(client.SessionID(), tiers)

	if chatResume {
		n, err := consumer.Resume(ctx)
		if err != nil {
			return err
		}
		renderer.replay(consumer.Turns()[:n])
	}

	return chatLoop(ctx, cmd.InOrStdin(), renderer, consumer)
}

// chatLoop reads one message per line until EOF. Ctrl-C while a reply is
// streaming abandons that reply only.
func chatLoop(ctx context.Context, in io.Reader, r *chatRenderer, consumer *chatclient.Consumer) error {
	scanner := bufio.NewScanner(in)
	for {
		r.prompt()
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		res := consumer.Send(sendCtx, line)
		stop()

		if res.State == chatclient.StateAbandoned {
			r.notice("(reply abandoned)")
		}
		// Let a pending photo land before the next prompt.
		consumer.Wait()

		if ctx.Err() != nil {
			return nil
		}
	}
	r.endLine()
	return scanner.Err()
}

// =============================================================================
// Renderer
// =============================================================================

// chatRenderer prints the conversation. On a terminal, reply text is
// streamed as it arrives; otherwise only committed turns are printed.
type chatRenderer struct {
	mu          sync.Mutex
	out         io.Writer
	companionID string
	interactive bool

	// open is set once the reply prefix is printed; streamed is the reply
	// text written after it.
	open     bool
	streamed string
}

var _ chatclient.Observer = (*chatRenderer)(nil)

func newChatRenderer(out io.Writer, companionID string, interactive bool) *chatRenderer {
	return &chatRenderer{out: out, companionID: companionID, interactive: interactive}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *chatRenderer) banner(sessionID string, tiers []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, chatStyles.Muted.Render(fmt.Sprintf(
		"Chatting with %s (session %s, tiers: %s)", r.companionID, sessionID, strings.Join(tiers, ", "))))
}

func (r *chatRenderer) prompt() {
	if !r.interactive {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, chatStyles.You.Render("you")+"> ")
}

func (r *chatRenderer) endLine() {
	if r.interactive {
		fmt.Fprintln(r.out)
	}
}

func (r *chatRenderer) notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		fmt.Fprintln(r.out)
		r.open, r.streamed = false, ""
	}
	fmt.Fprintln(r.out, chatStyles.Warning.Render(msg))
}

func (r *chatRenderer) replay(turns []chatclient.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range turns {
		if t.Sender == chatclient.SenderUser {
			fmt.Fprintf(r.out, "%s> %s\n", chatStyles.You.Render("you"), t.Text)
			continue
		}
		r.writeCompanionLocked(t)
	}
}

func (r *chatRenderer) OnStateChange(state chatclient.State) {
	if state != chatclient.StateStreaming || !r.interactive {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open, r.streamed = true, ""
	fmt.Fprint(r.out, r.companionPrefix())
}

func (r *chatRenderer) OnPartial(text string) {
	if !r.interactive {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.HasPrefix(text, r.streamed) {
		fmt.Fprint(r.out, text[len(r.streamed):])
	}
	r.streamed = text
}

func (r *chatRenderer) OnTurnAppended(t chatclient.Turn) {
	if t.Sender != chatclient.SenderCompanion {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		r.writeCompanionLocked(t)
		return
	}
	if t.Text != r.streamed {
		// The partial reply was discarded; show what was committed.
		if r.streamed != "" {
			fmt.Fprint(r.out, "\n"+r.companionPrefix())
		}
		fmt.Fprint(r.out, t.Text)
	}
	fmt.Fprintln(r.out)
	r.writeImageStatusLocked(t)
	r.open, r.streamed = false, ""
}

func (r *chatRenderer) OnTurnUpdated(t chatclient.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ImageRef != "" {
		fmt.Fprintln(r.out, chatStyles.Muted.Render("  [photo] "+t.ImageRef))
		return
	}
	fmt.Fprintln(r.out, r.companionPrefix()+t.Text)
}

func (r *chatRenderer) companionPrefix() string {
	return chatStyles.Companion.Render(r.companionID) + "> "
}

func (r *chatRenderer) writeCompanionLocked(t chatclient.Turn) {
	fmt.Fprintln(r.out, r.companionPrefix()+t.Text)
	r.writeImageStatusLocked(t)
}

func (r *chatRenderer) writeImageStatusLocked(t chatclient.Turn) {
	switch {
	case t.ImageRef != "":
		fmt.Fprintln(r.out, chatStyles.Muted.Render("  [photo] "+t.ImageRef))
	case t.PendingImage:
		fmt.Fprintln(r.out, chatStyles.Muted.Render("  sending a photo..."))
	}
}
