// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// PostgresStore persists turns, conversation counts and rate-limit
// violations in Postgres. Besides the history interfaces it implements
// ratelimit.ConversationCounter, ratelimit.ViolationSink and
// ratelimit.ViolationReader, so a Postgres deployment needs one store.
//
// The store does not own the *sql.DB; callers manage its lifecycle.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables if they do not exist. Intended for
// development; production deployments run migrations out of band.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS chat_turns (
	id              BIGSERIAL PRIMARY KEY,
	conversation_id TEXT        NOT NULL,
	user_id         TEXT        NOT NULL,
	message_id      TEXT        NOT NULL,
	user_text       TEXT        NOT NULL,
	assistant_text  TEXT        NOT NULL,
	outcome         TEXT        NOT NULL,
	iterations      INT         NOT NULL DEFAULT 0,
	tools_used      TEXT[]      NOT NULL DEFAULT '{}',
	tokens_estimate INT         NOT NULL DEFAULT 0,
	duration_ms     BIGINT      NOT NULL DEFAULT 0,
	artifacts       JSONB       NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_chat_turns_conversation
	ON chat_turns (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS conversation_counts (
	conversation_id TEXT PRIMARY KEY,
	prompt_count    INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rate_limit_violations (
	id              BIGSERIAL PRIMARY KEY,
	user_id         TEXT        NOT NULL,
	conversation_id TEXT        NOT NULL DEFAULT '',
	kind            TEXT        NOT NULL,
	limit_value     INT         NOT NULL,
	used            INT         NOT NULL,
	occurred_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_violations_user
	ON rate_limit_violations (user_id, occurred_at);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Record(ctx context.Context, rec TurnRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	artifacts := rec.Artifacts
	if artifacts == nil {
		artifacts = []datatypes.Artifact{}
	}
	artifactsJSON, err := json.Marshal(artifacts)
	if err != nil {
		return fmt.Errorf("history: encode artifacts for turn %s: %w", rec.MessageID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_turns
			(conversation_id, user_id, message_id, user_text, assistant_text,
			 outcome, iterations, tools_used, tokens_estimate, duration_ms, artifacts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ConversationID, rec.UserID, rec.MessageID, rec.UserText, rec.AssistantText,
		rec.Outcome, rec.Iterations, pq.Array(rec.ToolsUsed), rec.TokensEstimate,
		rec.Duration.Milliseconds(), artifactsJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("history: record turn %s: %w", rec.MessageID, err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, maxTurns int) ([]datatypes.Message, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_text, assistant_text FROM (
			SELECT user_text, assistant_text, created_at, id
			FROM chat_turns
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`,
		conversationID, maxTurns,
	)
	if err != nil {
		return nil, fmt.Errorf("history: load conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var messages []datatypes.Message
	for rows.Next() {
		var userText, assistantText string
		if err := rows.Scan(&userText, &assistantText); err != nil {
			return nil, fmt.Errorf("history: scan turn: %w", err)
		}
		messages = append(messages,
			datatypes.Message{Role: datatypes.RoleUser, Content: userText},
			datatypes.Message{Role: datatypes.RoleAssistant, Content: assistantText},
		)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate turns: %w", err)
	}
	return messages, nil
}

// Count implements ratelimit.ConversationCounter.
func (s *PostgresStore) Count(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt_count FROM conversation_counts WHERE conversation_id = $1`,
		conversationID,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("history: conversation count %s: %w", conversationID, err)
	}
	return count, nil
}

// Increment implements ratelimit.ConversationCounter.
func (s *PostgresStore) Increment(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_counts (conversation_id, prompt_count)
		VALUES ($1, 1)
		ON CONFLICT (conversation_id)
		DO UPDATE SET prompt_count = conversation_counts.prompt_count + 1
		RETURNING prompt_count`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("history: increment conversation %s: %w", conversationID, err)
	}
	return count, nil
}

// Append implements ratelimit.ViolationSink.
func (s *PostgresStore) Append(ctx context.Context, v datatypes.Violation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_violations
			(user_id, conversation_id, kind, limit_value, used, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		v.UserID, v.ConversationID, string(v.Kind), v.Limit, v.Used, v.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("history: record violation for %s: %w", v.UserID, err)
	}
	return nil
}

// Recent implements ratelimit.ViolationReader.
func (s *PostgresStore) Recent(ctx context.Context, userID string, limit int) ([]datatypes.Violation, error) {
	query := `
		SELECT user_id, conversation_id, kind, limit_value, used, occurred_at
		FROM rate_limit_violations`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += fmt.Sprintf(` ORDER BY occurred_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: load violations: %w", err)
	}
	defer rows.Close()

	var out []datatypes.Violation
	for rows.Next() {
		var v datatypes.Violation
		var kind string
		if err := rows.Scan(&v.UserID, &v.ConversationID, &kind, &v.Limit, &v.Used, &v.OccurredAt); err != nil {
			return nil, fmt.Errorf("history: scan violation: %w", err)
		}
		v.Kind = datatypes.LimitKind(kind)
		out = append(out, v)
	}
	return out, rows.Err()
}
