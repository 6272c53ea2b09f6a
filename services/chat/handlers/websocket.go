// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP and websocket handlers of the
// chat service.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kuberahq/kubera/services/chat/datatypes"
	"github.com/kuberahq/kubera/services/chat/history"
	"github.com/kuberahq/kubera/services/chat/middleware"
	"github.com/kuberahq/kubera/services/chat/ratelimit"
	"github.com/kuberahq/kubera/services/chat/session"
)

const keepaliveInterval = 15 * time.Second

// ChatHandler serves the websocket chat endpoint. One handler instance
// serves all connections.
type ChatHandler struct {
	limiter         *ratelimit.Service
	runner          session.TurnRunner
	manager         *session.Manager
	store           history.Store
	maxHistoryTurns int
	logger          *slog.Logger
	tracer          trace.Tracer
	upgrader        websocket.Upgrader
}

func NewChatHandler(limiter *ratelimit.Service, runner session.TurnRunner, manager *session.Manager, store history.Store, maxHistoryTurns int, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = history.DefaultMaxTurns
	}
	return &ChatHandler{
		limiter:         limiter,
		runner:          runner,
		manager:         manager,
		store:           store,
		maxHistoryTurns: maxHistoryTurns,
		logger:          logger,
		tracer:          otel.Tracer("kubera/chat/handlers"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from app origins we do not
			// enumerate here; identity comes from the auth middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the connection and pumps frames until the client
// goes away. Each message frame runs one full turn before the next
// frame is read; a connection is a serial conversation.
func (h *ChatHandler) HandleWS(c *gin.Context) {
	info := middleware.GetAuthInfo(c)
	if info == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	conversationID := c.Query("conversation_id")
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", info.UserID, "error", err)
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "chat.Connection",
		trace.WithAttributes(
			attribute.String("chat.user_id", info.UserID),
			attribute.String("chat.conversation_id", conversationID),
		))
	defer span.End()

	sess := session.New(info.UserID, conn, h.limiter, h.runner, h.store, h.logger)
	h.manager.Register(sess)
	defer func() {
		h.manager.Unregister(sess)
		_ = sess.Close()
	}()

	h.logger.Info("chat connection opened",
		"user_id", info.UserID,
		"conversation_id", conversationID,
		"user_connections", h.manager.ConnectionCount(info.UserID))

	connected := datatypes.NewEvent(datatypes.EventConnected)
	connected.ConversationID = conversationID
	connected.Message = "connected"
	sess.Send(connected)

	if usage, limits, err := h.limiter.Usage(ctx, info.UserID, conversationID); err == nil {
		ev := datatypes.NewEvent(datatypes.EventRateLimitInfo)
		ev.ConversationID = conversationID
		ev.Usage = &usage
		ev.Limits = &limits
		sess.Send(ev)
	}

	// Keepalive beats ride the same serialized writer as turn events.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sess.Send(datatypes.NewEvent(datatypes.EventPing))
			case <-stop:
				return
			}
		}
	}()

	for {
		var req datatypes.ChatTurnRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("chat connection dropped", "user_id", info.UserID, "error", err)
			}
			return
		}

		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			ev := datatypes.NewEvent(datatypes.EventError)
			ev.ConversationID = conversationID
			ev.Error = err.Error()
			sess.Send(ev)
			continue
		}

		switch req.Type {
		case datatypes.FrameTyping:
			ev := datatypes.NewEvent(datatypes.EventTyping)
			ev.ConversationID = conversationID
			sess.Send(ev)
			continue
		case datatypes.FramePing:
			sess.Send(datatypes.NewEvent(datatypes.EventPing))
			continue
		}

		if req.ConversationID != "" {
			conversationID = req.ConversationID
		}

		turn := datatypes.ConversationTurn{
			UserID:         info.UserID,
			ConversationID: conversationID,
			MessageID:      uuid.New().String(),
			UserText:       req.Content,
		}
		if msgs, err := h.store.RecentMessages(ctx, conversationID, h.maxHistoryTurns); err != nil {
			h.logger.Error("failed to load conversation history",
				"conversation_id", conversationID, "error", err)
		} else {
			turn.History = msgs
		}

		if err := sess.Submit(ctx, turn); err != nil {
			h.logger.Error("turn ended with error",
				"user_id", info.UserID,
				"conversation_id", conversationID,
				"message_id", turn.MessageID,
				"error", err)
		}

		if sess.Closed() {
			return
		}
	}
}
