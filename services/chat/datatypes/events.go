// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a stream event emitted to a connected client.
type EventType string

const (
	// EventConnected is sent once, immediately after a connection is
	// accepted, before any turn has been submitted.
	EventConnected EventType = "connected"

	// EventRateLimitInfo carries the caller's current usage and limits.
	// Sent after a turn is admitted, and on connect.
	EventRateLimitInfo EventType = "rate_limit_info"

	// EventRateLimitExceeded is sent when admission denies a turn. The
	// Denial field names the violated limit.
	EventRateLimitExceeded EventType = "rate_limit_exceeded"

	// EventTextChunk carries an incremental fragment of assistant text.
	EventTextChunk EventType = "text_chunk"

	// EventToolDispatched is sent when the model requests a tool call,
	// before the call executes.
	EventToolDispatched EventType = "tool_dispatched"

	// EventToolDone is sent when a tool call finishes, success or not.
	EventToolDone EventType = "tool_done"

	// EventTurnComplete terminates a successful turn.
	EventTurnComplete EventType = "turn_complete"

	// EventTurnLimitReached terminates a turn that hit the iteration
	// ceiling while the model was still requesting tools.
	EventTurnLimitReached EventType = "turn_limit_reached"

	// EventTurnFailed terminates a turn that hit an unrecoverable error.
	EventTurnFailed EventType = "turn_failed"

	// EventTyping acknowledges a client typing indicator.
	EventTyping EventType = "typing"

	// EventPing is a liveness beat sent on idle connections.
	EventPing EventType = "ping"

	// EventError reports a non-fatal connection-level problem.
	EventError EventType = "error"
)

// StreamEvent is the single wire shape for everything pushed to a
// client. Fields are sparse; which ones are set depends on Type.
type StreamEvent struct {
	ID        string    `json:"id,omitempty"`
	Type      EventType `json:"type"`
	CreatedAt int64     `json:"created_at,omitempty"`

	// ConversationID and MessageID scope the event to a turn. MessageID
	// is assigned per submitted turn so clients can correlate chunks.
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`

	// Content holds text_chunk fragments; Message holds human-readable
	// status text for connected, turn_limit_reached and typing events.
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`

	// Error is set on turn_failed and error events.
	Error string `json:"error,omitempty"`

	// Tool fields accompany tool_dispatched and tool_done.
	ToolName    string `json:"tool_name,omitempty"`
	ToolID      string `json:"tool_id,omitempty"`
	ToolSuccess *bool  `json:"success,omitempty"`

	// Usage and Limits accompany rate_limit_info; Denial accompanies
	// rate_limit_exceeded.
	Usage  *Usage      `json:"current_usage,omitempty"`
	Limits *Limits     `json:"limits,omitempty"`
	Denial *DenialInfo `json:"denial,omitempty"`

	// Metadata accompanies turn_complete and turn_limit_reached.
	Metadata *TurnMetadata `json:"metadata,omitempty"`
}

// NewEvent builds a stamped event of the given type. Callers fill the
// type-specific fields afterwards.
func NewEvent(eventType EventType) StreamEvent {
	return StreamEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// TurnMetadata summarizes a finished turn.
type TurnMetadata struct {
	Iterations       int        `json:"iterations"`
	ToolsUsed        []string   `json:"tools_used,omitempty"`
	TokensEstimate   int        `json:"tokens_used"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	Artifacts        []Artifact `json:"artifacts,omitempty"`
}

// Artifact is a side product of a tool call surfaced to the client,
// such as a rendered chart. One artifact is kept per kind; a later
// tool call producing the same kind replaces the earlier one.
type Artifact struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}
