// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuberahq/kubera/pkg/extensions"
	"github.com/kuberahq/kubera/services/chat/datatypes"
	"github.com/kuberahq/kubera/services/chat/engine"
	"github.com/kuberahq/kubera/services/chat/history"
	"github.com/kuberahq/kubera/services/chat/middleware"
	"github.com/kuberahq/kubera/services/chat/ratelimit"
	"github.com/kuberahq/kubera/services/chat/session"
)

// echoRunner streams one chunk built from the prompt and completes.
type echoRunner struct{}

func (echoRunner) Run(_ context.Context, turn datatypes.ConversationTurn, emit engine.EmitFunc) (*engine.TurnResult, error) {
	chunk := datatypes.NewEvent(datatypes.EventTextChunk)
	chunk.Content = "echo: " + turn.UserText
	emit(chunk)
	done := datatypes.NewEvent(datatypes.EventTurnComplete)
	done.Metadata = &datatypes.TurnMetadata{Iterations: 1}
	emit(done)
	return &engine.TurnResult{
		Outcome:    engine.OutcomeComplete,
		Text:       "echo: " + turn.UserText,
		Iterations: 1,
	}, nil
}

type wsFixture struct {
	server  *httptest.Server
	store   *history.MemoryStore
	limiter *ratelimit.Service
}

func newWSFixture(t *testing.T, limits datatypes.Limits) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := history.NewMemoryStore()
	policy := ratelimit.NewPolicyStore(limits)
	limiter := ratelimit.NewService(nil, nil, policy, nil, nil)
	manager := session.NewManager()
	h := NewChatHandler(limiter, echoRunner{}, manager, store, 20, nil)

	router := gin.New()
	router.GET("/v1/chat/ws", middleware.Auth(&extensions.GuestProvider{}), h.HandleWS)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &wsFixture{server: server, store: store, limiter: limiter}
}

func (f *wsFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/chat/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) datatypes.StreamEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev datatypes.StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHandleWS_ConnectHandshake(t *testing.T) {
	f := newWSFixture(t, ratelimit.DefaultLimits())
	conn := f.dial(t, "?conversation_id=c1&access_token=u1")

	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventConnected, ev.Type)
	assert.Equal(t, "c1", ev.ConversationID)

	ev = readEvent(t, conn)
	assert.Equal(t, datatypes.EventRateLimitInfo, ev.Type)
	require.NotNil(t, ev.Limits)
	assert.Equal(t, 10, ev.Limits.Burst)
	require.NotNil(t, ev.Usage)
	assert.Equal(t, 0, ev.Usage.Burst)
}

func TestHandleWS_MessageTurn(t *testing.T) {
	f := newWSFixture(t, ratelimit.DefaultLimits())
	conn := f.dial(t, "?conversation_id=c1&access_token=u1")
	readEvent(t, conn) // connected
	readEvent(t, conn) // rate_limit_info

	require.NoError(t, conn.WriteJSON(datatypes.ChatTurnRequest{
		Type:    datatypes.FrameMessage,
		Content: "quote AAPL",
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventRateLimitInfo, ev.Type)
	assert.Equal(t, 1, ev.Usage.Burst)

	ev = readEvent(t, conn)
	assert.Equal(t, datatypes.EventTextChunk, ev.Type)
	assert.Equal(t, "echo: quote AAPL", ev.Content)
	assert.NotEmpty(t, ev.MessageID)

	ev = readEvent(t, conn)
	assert.Equal(t, datatypes.EventTurnComplete, ev.Type)

	turns := f.store.Turns("c1")
	require.Len(t, turns, 1)
	assert.Equal(t, "u1", turns[0].UserID)
}

func TestHandleWS_InvalidFrame(t *testing.T) {
	f := newWSFixture(t, ratelimit.DefaultLimits())
	conn := f.dial(t, "?access_token=u1")
	readEvent(t, conn)
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(datatypes.ChatTurnRequest{Type: datatypes.FrameMessage}))

	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventError, ev.Type)
	assert.Contains(t, ev.Error, "content")

	// The connection survives a bad frame.
	require.NoError(t, conn.WriteJSON(datatypes.ChatTurnRequest{Type: datatypes.FrameTyping}))
	ev = readEvent(t, conn)
	assert.Equal(t, datatypes.EventTyping, ev.Type)
}

func TestHandleWS_RateLimitDenial(t *testing.T) {
	limits := ratelimit.DefaultLimits()
	limits.Burst = 1
	f := newWSFixture(t, limits)
	conn := f.dial(t, "?conversation_id=c1&access_token=u1")
	readEvent(t, conn)
	readEvent(t, conn)

	send := func() {
		require.NoError(t, conn.WriteJSON(datatypes.ChatTurnRequest{
			Type:    datatypes.FrameMessage,
			Content: "hello",
		}))
	}

	send()
	for i := 0; i < 3; i++ {
		readEvent(t, conn) // rate_limit_info, chunk, turn_complete
	}

	send()
	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventRateLimitExceeded, ev.Type)
	require.NotNil(t, ev.Denial)
	assert.Equal(t, datatypes.LimitBurst, ev.Denial.Kind)

	// Only the admitted turn was persisted.
	assert.Len(t, f.store.Turns("c1"), 1)
}

func TestHandleWS_GeneratesConversationID(t *testing.T) {
	f := newWSFixture(t, ratelimit.DefaultLimits())
	conn := f.dial(t, "?access_token=u1")

	ev := readEvent(t, conn)
	assert.Equal(t, datatypes.EventConnected, ev.Type)
	assert.NotEmpty(t, ev.ConversationID)
}

func TestHandleWS_HistoryFlowsIntoNextTurn(t *testing.T) {
	f := newWSFixture(t, ratelimit.DefaultLimits())
	conn := f.dial(t, "?conversation_id=c1&access_token=u1")
	readEvent(t, conn)
	readEvent(t, conn)

	for _, prompt := range []string{"first", "second"} {
		require.NoError(t, conn.WriteJSON(datatypes.ChatTurnRequest{
			Type:    datatypes.FrameMessage,
			Content: prompt,
		}))
		for i := 0; i < 3; i++ {
			readEvent(t, conn)
		}
	}

	turns := f.store.Turns("c1")
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].UserText)
	assert.Equal(t, "second", turns[1].UserText)
}
