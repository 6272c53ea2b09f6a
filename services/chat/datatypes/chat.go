// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire and domain types shared across the
// chat service: inbound frames, stream events, model messages, tool
// calls, and rate-limit records.
//
// Types that cross a trust boundary carry validator tags and a
// Validate method; handlers call Validate before acting on a frame.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MaxMessageContentBytes caps a single user message. Oversized content
// is rejected at the edge before any model call.
const MaxMessageContentBytes = 32 * 1024

// chatValidate is the shared validator instance for this package.
var chatValidate = newChatValidator()

func newChatValidator() *validator.Validate {
	v := validator.New()
	// maxbytes validates byte length instead of rune count.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit := 0
		if _, err := fmt.Sscanf(fl.Param(), "%d", &limit); err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	return v
}

// Message roles as sent to the model provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a model conversation transcript. Assistant
// messages may carry tool calls; tool messages answer one call and set
// ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Frame types accepted from a client connection.
const (
	FrameMessage = "message"
	FrameTyping  = "typing"
	FramePing    = "ping"
)

// ChatTurnRequest is an inbound frame from a client connection.
// Type defaults to "message" when omitted.
type ChatTurnRequest struct {
	Type           string `json:"type" validate:"omitempty,oneof=message typing ping"`
	ConversationID string `json:"conversation_id" validate:"omitempty,max=128"`
	Content        string `json:"content" validate:"maxbytes=32768"`
}

// EnsureDefaults normalizes optional fields in place.
func (r *ChatTurnRequest) EnsureDefaults() {
	if r.Type == "" {
		r.Type = FrameMessage
	}
}

// Validate checks structural constraints. Message frames additionally
// require non-empty content.
func (r *ChatTurnRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat frame: %w", err)
	}
	if r.Type == FrameMessage && r.Content == "" {
		return fmt.Errorf("invalid chat frame: message content is empty")
	}
	return nil
}

// ConversationTurn is one admitted user prompt together with the
// transcript context handed to the orchestration engine.
type ConversationTurn struct {
	UserID         string
	ConversationID string
	MessageID      string
	UserText       string
	History        []Message
}
