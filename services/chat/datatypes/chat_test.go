// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatTurnRequest_EnsureDefaults(t *testing.T) {
	req := ChatTurnRequest{Content: "hi"}
	req.EnsureDefaults()
	assert.Equal(t, FrameMessage, req.Type)

	req = ChatTurnRequest{Type: FrameTyping}
	req.EnsureDefaults()
	assert.Equal(t, FrameTyping, req.Type)
}

func TestChatTurnRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatTurnRequest
		wantErr bool
	}{
		{
			name: "valid message",
			req:  ChatTurnRequest{Type: FrameMessage, ConversationID: "c1", Content: "what is AAPL at?"},
		},
		{
			name: "typing frame without content",
			req:  ChatTurnRequest{Type: FrameTyping},
		},
		{
			name: "ping frame",
			req:  ChatTurnRequest{Type: FramePing},
		},
		{
			name:    "message without content",
			req:     ChatTurnRequest{Type: FrameMessage, ConversationID: "c1"},
			wantErr: true,
		},
		{
			name:    "unknown frame type",
			req:     ChatTurnRequest{Type: "subscribe"},
			wantErr: true,
		},
		{
			name:    "oversized content",
			req:     ChatTurnRequest{Type: FrameMessage, Content: strings.Repeat("a", MaxMessageContentBytes+1)},
			wantErr: true,
		},
		{
			name: "content at the byte limit",
			req:  ChatTurnRequest{Type: FrameMessage, Content: strings.Repeat("a", MaxMessageContentBytes)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLimits_ForKind(t *testing.T) {
	l := Limits{Burst: 10, PerConversation: 50, Hourly: 150, Daily: 1000}
	assert.Equal(t, 10, l.ForKind(LimitBurst))
	assert.Equal(t, 50, l.ForKind(LimitPerConversation))
	assert.Equal(t, 150, l.ForKind(LimitHourly))
	assert.Equal(t, 1000, l.ForKind(LimitDaily))
	assert.Equal(t, 0, l.ForKind(LimitKind("bogus")))
}

func TestNewEvent_Stamps(t *testing.T) {
	ev := NewEvent(EventTextChunk)
	assert.Equal(t, EventTextChunk, ev.Type)
	assert.NotEmpty(t, ev.ID)
	assert.NotZero(t, ev.CreatedAt)
}
