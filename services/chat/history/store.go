// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history persists finished turns and replays them as model
// context for later turns in the same conversation.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// DefaultMaxTurns bounds how many prior turns are replayed to the model.
const DefaultMaxTurns = 20

// TurnRecord is one persisted turn: the user prompt and the finished
// assistant response with its bookkeeping.
type TurnRecord struct {
	ConversationID string
	UserID         string
	MessageID      string
	UserText       string
	AssistantText  string
	Outcome        string
	Iterations     int
	ToolsUsed      []string
	TokensEstimate int
	Duration       time.Duration
	Artifacts      []datatypes.Artifact
	CreatedAt      time.Time
}

// Recorder persists finished turns.
type Recorder interface {
	Record(ctx context.Context, rec TurnRecord) error
}

// Reader replays conversation context.
type Reader interface {
	// RecentMessages returns the last maxTurns turns of a conversation
	// as alternating user/assistant messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, maxTurns int) ([]datatypes.Message, error)
}

// Store is the full persistence surface a deployment provides.
type Store interface {
	Recorder
	Reader
}

// =============================================================================
// In-Memory Store
// =============================================================================

// MemoryStore keeps turns in process memory. It backs tests and
// single-process deployments without Postgres.
type MemoryStore struct {
	mu    sync.Mutex
	turns map[string][]TurnRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]TurnRecord)}
}

func (m *MemoryStore) Record(_ context.Context, rec TurnRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[rec.ConversationID] = append(m.turns[rec.ConversationID], rec)
	return nil
}

func (m *MemoryStore) RecentMessages(_ context.Context, conversationID string, maxTurns int) ([]datatypes.Message, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.turns[conversationID]
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	messages := make([]datatypes.Message, 0, len(turns)*2)
	for _, turn := range turns {
		messages = append(messages,
			datatypes.Message{Role: datatypes.RoleUser, Content: turn.UserText},
			datatypes.Message{Role: datatypes.RoleAssistant, Content: turn.AssistantText},
		)
	}
	return messages, nil
}

// Turns returns all stored turns for a conversation, oldest first.
// Test helper.
func (m *MemoryStore) Turns(conversationID string) []TurnRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TurnRecord, len(m.turns[conversationID]))
	copy(out, m.turns[conversationID])
	return out
}
