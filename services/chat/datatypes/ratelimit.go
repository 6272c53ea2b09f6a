// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// LimitKind names one of the four admission checks, in the order they
// are evaluated.
type LimitKind string

const (
	LimitBurst           LimitKind = "burst"
	LimitPerConversation LimitKind = "per_conversation"
	LimitHourly          LimitKind = "hourly"
	LimitDaily           LimitKind = "daily"
)

// Limits holds the ceilings applied to a user. PerConversation is a
// lifetime count per conversation; the other three are windowed.
type Limits struct {
	Burst           int `json:"burst_per_minute"`
	PerConversation int `json:"per_conversation"`
	Hourly          int `json:"hourly"`
	Daily           int `json:"daily"`
}

// ForKind returns the ceiling for a single limit kind.
func (l Limits) ForKind(kind LimitKind) int {
	switch kind {
	case LimitBurst:
		return l.Burst
	case LimitPerConversation:
		return l.PerConversation
	case LimitHourly:
		return l.Hourly
	case LimitDaily:
		return l.Daily
	}
	return 0
}

// Usage is a point-in-time snapshot of a user's consumption against
// each limit. Window counts are effective counts: a count whose window
// has lapsed reads as zero even before the stored value is reset.
type Usage struct {
	Burst           int `json:"burst"`
	PerConversation int `json:"per_conversation"`
	Hourly          int `json:"hourly"`
	Daily           int `json:"daily"`
}

// DenialInfo describes which limit rejected a turn.
type DenialInfo struct {
	Kind    LimitKind  `json:"kind"`
	Limit   int        `json:"limit"`
	Used    int        `json:"used"`
	ResetAt *time.Time `json:"reset_at,omitempty"`
}

// Decision is the admission verdict for one prospective turn. When
// Allowed is true, Usage reflects the counts after the turn was
// recorded; when false, counts are unchanged and Denial is set.
type Decision struct {
	Allowed bool        `json:"allowed"`
	Denial  *DenialInfo `json:"denial,omitempty"`
	Usage   Usage       `json:"usage"`
	Limits  Limits      `json:"limits"`
}

// Violation is the audit record of a denied turn. Violations are
// recorded before the denial is surfaced to the caller.
type Violation struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Kind           LimitKind `json:"kind"`
	Limit          int       `json:"limit"`
	Used           int       `json:"used"`
	OccurredAt     time.Time `json:"occurred_at"`
}
