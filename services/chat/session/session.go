// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session binds one client connection to the admission gate
// and the turn engine, and owns everything written to that connection.
//
// A session is keyed by (user, connection): one user may hold several
// concurrent sessions, each with independent delivery state. Transport
// death never propagates upward; a session whose connection has failed
// silently drops events while the turn runs to completion, so counters
// and persistence stay consistent.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kuberahq/kubera/services/chat/datatypes"
	"github.com/kuberahq/kubera/services/chat/engine"
	"github.com/kuberahq/kubera/services/chat/history"
	"github.com/kuberahq/kubera/services/chat/observability"
)

// Conn is the transport a session writes to. *websocket.Conn satisfies
// it; tests substitute fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Admitter gates turns. *ratelimit.Service satisfies it.
type Admitter interface {
	Admit(ctx context.Context, userID, conversationID string) (datatypes.Decision, error)
}

// TurnRunner executes admitted turns. *engine.Engine satisfies it.
type TurnRunner interface {
	Run(ctx context.Context, turn datatypes.ConversationTurn, emit engine.EmitFunc) (*engine.TurnResult, error)
}

// Session owns one client connection.
type Session struct {
	userID   string
	conn     Conn
	admitter Admitter
	runner   TurnRunner
	recorder history.Recorder
	logger   *slog.Logger

	// closed flips when the transport dies or Close is called. Checked
	// before every write; writes after close are silently dropped.
	closed    atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func New(userID string, conn Conn, admitter Admitter, runner TurnRunner, recorder history.Recorder, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		userID:   userID,
		conn:     conn,
		admitter: admitter,
		runner:   runner,
		recorder: recorder,
		logger:   logger.With("user_id", userID),
	}
}

func (s *Session) UserID() string { return s.userID }

// Closed reports whether the session has stopped delivering events.
func (s *Session) Closed() bool { return s.closed.Load() }

// Close makes the session drop all future events and closes the
// transport. Idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
	})
	return err
}

// Send delivers one event to the client. Events sent after the
// transport has failed are dropped; a write failure marks the session
// closed so no later write is attempted.
func (s *Session) Send(ev datatypes.StreamEvent) {
	if s.closed.Load() {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		s.closed.Store(true)
		s.logger.Warn("transport write failed, dropping remaining events",
			"event_type", string(ev.Type), "error", err)
	}
}

// Submit runs one turn end to end: admission, streaming, persistence.
//
// A denial emits rate_limit_exceeded and returns nil; denial is an
// answer, not an error. The returned error reflects infrastructure
// failures (store or model stream); the client has already received a
// terminal event by then.
func (s *Session) Submit(ctx context.Context, turn datatypes.ConversationTurn) error {
	decision, err := s.admitter.Admit(ctx, turn.UserID, turn.ConversationID)
	if err != nil {
		s.logger.Error("admission check failed", "conversation_id", turn.ConversationID, "error", err)
		ev := datatypes.NewEvent(datatypes.EventError)
		ev.ConversationID = turn.ConversationID
		ev.Error = "service temporarily unavailable"
		s.Send(ev)
		return err
	}

	if !decision.Allowed {
		observability.Default().RecordDenial(string(decision.Denial.Kind))
		ev := datatypes.NewEvent(datatypes.EventRateLimitExceeded)
		ev.ConversationID = turn.ConversationID
		ev.Denial = decision.Denial
		ev.Usage = &decision.Usage
		ev.Limits = &decision.Limits
		s.Send(ev)
		return nil
	}

	info := datatypes.NewEvent(datatypes.EventRateLimitInfo)
	info.ConversationID = turn.ConversationID
	info.Usage = &decision.Usage
	info.Limits = &decision.Limits
	s.Send(info)

	result, runErr := s.runner.Run(ctx, turn, func(ev datatypes.StreamEvent) {
		ev.ConversationID = turn.ConversationID
		ev.MessageID = turn.MessageID
		s.Send(ev)
	})

	if result != nil && s.recorder != nil && result.Outcome != engine.OutcomeFailed {
		rec := history.TurnRecord{
			ConversationID: turn.ConversationID,
			UserID:         turn.UserID,
			MessageID:      turn.MessageID,
			UserText:       turn.UserText,
			AssistantText:  result.Text,
			Outcome:        string(result.Outcome),
			Iterations:     result.Iterations,
			ToolsUsed:      result.ToolsUsed,
			TokensEstimate: result.TokensEstimate,
			Duration:       result.Duration,
			Artifacts:      result.Artifacts,
		}
		if err := s.recorder.Record(ctx, rec); err != nil {
			s.logger.Error("failed to persist turn",
				"conversation_id", turn.ConversationID,
				"message_id", turn.MessageID,
				"error", err)
		}
	}

	return runErr
}
