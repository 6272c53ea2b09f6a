// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"time"
)

// ChatRenderer prints a streamed assistant turn to the terminal. It
// tracks whether any text has been written so tool activity lines land
// on their own rows instead of splitting a sentence.
type ChatRenderer struct {
	writer    io.Writer
	streaming bool
}

func NewChatRenderer() *ChatRenderer {
	return &ChatRenderer{writer: os.Stdout}
}

// NewChatRendererWithWriter creates a renderer with a custom writer (for testing)
func NewChatRendererWithWriter(w io.Writer) *ChatRenderer {
	return &ChatRenderer{writer: w}
}

// UserPrompt echoes the outgoing message.
func (r *ChatRenderer) UserPrompt(text string) {
	fmt.Fprintf(r.writer, "%s %s\n", Styles.Bold.Render("you ›"), text)
}

// Chunk appends a fragment of assistant text.
func (r *ChatRenderer) Chunk(text string) {
	if !r.streaming {
		fmt.Fprintf(r.writer, "%s ", Styles.Highlight.Render("kubera ›"))
		r.streaming = true
	}
	fmt.Fprint(r.writer, text)
}

// ToolStarted prints a tool activity line.
func (r *ChatRenderer) ToolStarted(name string) {
	r.breakLine()
	fmt.Fprintf(r.writer, "%s\n", Styles.Muted.Render(fmt.Sprintf("  ⚙ running %s", name)))
}

// ToolDone prints the outcome of a tool call.
func (r *ChatRenderer) ToolDone(name string, ok bool) {
	r.breakLine()
	if ok {
		fmt.Fprintf(r.writer, "%s\n", Styles.Muted.Render(fmt.Sprintf("  %s %s", Styles.StatusOK.String(), name)))
		return
	}
	fmt.Fprintf(r.writer, "%s\n", Styles.Muted.Render(fmt.Sprintf("  %s %s failed", Styles.StatusError.String(), name)))
}

// RateLimit prints the remaining budget after an admitted turn.
func (r *ChatRenderer) RateLimit(used, limit int) {
	fmt.Fprintf(r.writer, "%s\n", Styles.Muted.Render(fmt.Sprintf("  %d/%d messages this hour", used, limit)))
}

// Denied prints a rate limit denial.
func (r *ChatRenderer) Denied(kind string, resetAt *time.Time) {
	r.breakLine()
	msg := fmt.Sprintf("rate limit reached (%s)", kind)
	if resetAt != nil {
		msg += fmt.Sprintf(", resets %s", resetAt.Local().Format(time.Kitchen))
	}
	fmt.Fprintf(r.writer, "%s\n", Styles.WarningBox.Render(msg))
}

// TurnComplete ends the turn with a muted footer.
func (r *ChatRenderer) TurnComplete(iterations, toolCalls int, elapsed time.Duration) {
	r.breakLine()
	fmt.Fprintf(r.writer, "%s\n", Styles.Muted.Render(
		fmt.Sprintf("  %d pass(es), %d tool call(s), %s", iterations, toolCalls, elapsed.Round(100*time.Millisecond))))
}

// TurnFailed prints the failure message the server chose to surface.
func (r *ChatRenderer) TurnFailed(msg string) {
	r.breakLine()
	fmt.Fprintf(r.writer, "%s\n", Styles.ErrorBox.Render(msg))
}

// Artifact points at a rendered chart or similar side output.
func (r *ChatRenderer) Artifact(kind, ref string) {
	r.breakLine()
	fmt.Fprintf(r.writer, "%s\n", Styles.Subtitle.Render(fmt.Sprintf("  %s: %s", kind, ref)))
}

func (r *ChatRenderer) breakLine() {
	if r.streaming {
		fmt.Fprintln(r.writer)
		r.streaming = false
	}
}
