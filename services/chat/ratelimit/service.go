// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit implements multi-level admission control for chat
// turns.
//
// Every prospective turn passes four checks, evaluated in a fixed
// order: burst (per minute), per-conversation (lifetime), hourly, and
// daily. Evaluation is fail-fast; the first violated limit denies the
// turn and later checks are skipped. A denied turn consumes nothing:
// counters only advance when all four checks pass.
//
// Whitelisted users bypass all checks and all counting. Per-user
// overrides replace the default ceilings without bypassing.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// Service is the admission gate. All methods are safe for concurrent use.
type Service struct {
	counters      CounterStore
	conversations ConversationCounter
	policy        PolicyProvider
	violations    ViolationSink
	logger        *slog.Logger
	clock         func() time.Time
}

// Option customizes Service construction.
type Option func(*Service)

// WithClock substitutes the time source. Tests use this to cross
// window boundaries without sleeping.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService wires an admission gate. Any nil collaborator gets an
// in-memory default, which makes the zero-config form usable directly
// in tests and single-process deployments.
func NewService(counters CounterStore, conversations ConversationCounter, policy PolicyProvider, violations ViolationSink, logger *slog.Logger, opts ...Option) *Service {
	if counters == nil {
		counters = NewMemoryCounterStore()
	}
	if conversations == nil {
		conversations = NewMemoryConversationCounter()
	}
	if policy == nil {
		policy = NewPolicyStore(DefaultLimits())
	}
	if violations == nil {
		violations = NewMemoryViolationLog(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		counters:      counters,
		conversations: conversations,
		policy:        policy,
		violations:    violations,
		logger:        logger,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit decides whether one turn may proceed.
//
// On allow, the three windowed counters and the conversation count are
// advanced and the returned usage reflects the turn just admitted. On
// deny, no counter moves, the violation is recorded before the
// decision is returned, and the denial names the first violated limit.
//
// An error means a store failure; no decision was reached and nothing
// was counted.
func (s *Service) Admit(ctx context.Context, userID, conversationID string) (datatypes.Decision, error) {
	now := s.clock()
	policy := s.policy.Snapshot()
	limits := policy.LimitsFor(userID)

	if policy.Whitelisted(userID) {
		usage, err := s.usageSnapshot(ctx, userID, conversationID, now)
		if err != nil {
			return datatypes.Decision{}, err
		}
		s.logger.Debug("admission bypassed for whitelisted user", "user_id", userID)
		return datatypes.Decision{Allowed: true, Usage: usage, Limits: limits}, nil
	}

	windows, err := s.counters.Windows(ctx, userID, now)
	if err != nil {
		return datatypes.Decision{}, err
	}
	convCount, err := s.conversations.Count(ctx, conversationID)
	if err != nil {
		return datatypes.Decision{}, err
	}

	usage := datatypes.Usage{
		Burst:           windows.Minute.EffectiveCount(now, BurstWindow),
		PerConversation: convCount,
		Hourly:          windows.Hour.EffectiveCount(now, HourlyWindow),
		Daily:           windows.Day.EffectiveCount(now, DailyWindow),
	}

	checks := []struct {
		kind    datatypes.LimitKind
		used    int
		limit   int
		resetAt *time.Time
	}{
		{datatypes.LimitBurst, usage.Burst, limits.Burst, resetPtr(windows.Minute, BurstWindow, usage.Burst)},
		{datatypes.LimitPerConversation, usage.PerConversation, limits.PerConversation, nil},
		{datatypes.LimitHourly, usage.Hourly, limits.Hourly, resetPtr(windows.Hour, HourlyWindow, usage.Hourly)},
		{datatypes.LimitDaily, usage.Daily, limits.Daily, resetPtr(windows.Day, DailyWindow, usage.Daily)},
	}

	for _, check := range checks {
		if check.used < check.limit {
			continue
		}
		violation := datatypes.Violation{
			UserID:         userID,
			ConversationID: conversationID,
			Kind:           check.kind,
			Limit:          check.limit,
			Used:           check.used,
			OccurredAt:     now,
		}
		if err := s.violations.Append(ctx, violation); err != nil {
			s.logger.Warn("failed to record rate limit violation",
				"user_id", userID, "kind", string(check.kind), "error", err)
		}
		s.logger.Info("turn denied by rate limit",
			"user_id", userID,
			"conversation_id", conversationID,
			"kind", string(check.kind),
			"used", check.used,
			"limit", check.limit)
		return datatypes.Decision{
			Allowed: false,
			Denial: &datatypes.DenialInfo{
				Kind:    check.kind,
				Limit:   check.limit,
				Used:    check.used,
				ResetAt: check.resetAt,
			},
			Usage:  usage,
			Limits: limits,
		}, nil
	}

	windows, err = s.counters.Increment(ctx, userID, now)
	if err != nil {
		return datatypes.Decision{}, err
	}
	convCount, err = s.conversations.Increment(ctx, conversationID)
	if err != nil {
		return datatypes.Decision{}, err
	}

	return datatypes.Decision{
		Allowed: true,
		Usage: datatypes.Usage{
			Burst:           windows.Minute.EffectiveCount(now, BurstWindow),
			PerConversation: convCount,
			Hourly:          windows.Hour.EffectiveCount(now, HourlyWindow),
			Daily:           windows.Day.EffectiveCount(now, DailyWindow),
		},
		Limits: limits,
	}, nil
}

// Usage reports current consumption without admitting anything. Used
// for the rate_limit_info event on connect.
func (s *Service) Usage(ctx context.Context, userID, conversationID string) (datatypes.Usage, datatypes.Limits, error) {
	now := s.clock()
	limits := s.policy.Snapshot().LimitsFor(userID)
	usage, err := s.usageSnapshot(ctx, userID, conversationID, now)
	if err != nil {
		return datatypes.Usage{}, datatypes.Limits{}, err
	}
	return usage, limits, nil
}

// ResetUser clears a user's windowed counters. Conversation counts are
// untouched; they belong to conversations, not users.
func (s *Service) ResetUser(ctx context.Context, userID string) error {
	s.logger.Info("resetting rate limit counters", "user_id", userID)
	return s.counters.Reset(ctx, userID)
}

func (s *Service) usageSnapshot(ctx context.Context, userID, conversationID string, now time.Time) (datatypes.Usage, error) {
	windows, err := s.counters.Windows(ctx, userID, now)
	if err != nil {
		return datatypes.Usage{}, err
	}
	convCount, err := s.conversations.Count(ctx, conversationID)
	if err != nil {
		return datatypes.Usage{}, err
	}
	return datatypes.Usage{
		Burst:           windows.Minute.EffectiveCount(now, BurstWindow),
		PerConversation: convCount,
		Hourly:          windows.Hour.EffectiveCount(now, HourlyWindow),
		Daily:           windows.Day.EffectiveCount(now, DailyWindow),
	}, nil
}

// resetPtr returns the window's lapse time, or nil when the window is
// effectively empty and a reset time would be meaningless.
func resetPtr(w Window, duration time.Duration, effective int) *time.Time {
	if effective == 0 {
		return nil
	}
	t := w.ResetAt(duration)
	return &t
}
