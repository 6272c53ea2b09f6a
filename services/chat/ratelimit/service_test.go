// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// fakeClock lets tests cross window boundaries without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(limits datatypes.Limits) (*Service, *PolicyStore, *MemoryViolationLog, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	policy := NewPolicyStore(limits)
	violations := NewMemoryViolationLog(100)
	svc := NewService(nil, nil, policy, violations, slog.Default(), WithClock(clock.Now))
	return svc, policy, violations, clock
}

func admitN(t *testing.T, svc *Service, user, conv string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		d, err := svc.Admit(context.Background(), user, conv)
		require.NoError(t, err)
		require.True(t, d.Allowed, "turn %d should be admitted", i+1)
	}
}

func TestAdmit_BurstBoundary(t *testing.T) {
	svc, _, _, _ := newTestService(datatypes.Limits{Burst: 3, PerConversation: 100, Hourly: 100, Daily: 100})

	admitN(t, svc, "u1", "c1", 3)

	d, err := svc.Admit(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.Denial)
	assert.Equal(t, datatypes.LimitBurst, d.Denial.Kind)
	assert.Equal(t, 3, d.Denial.Limit)
	assert.Equal(t, 3, d.Denial.Used)
	require.NotNil(t, d.Denial.ResetAt)
}

func TestAdmit_HourlyBoundary(t *testing.T) {
	svc, _, _, clock := newTestService(datatypes.Limits{Burst: 2, PerConversation: 100, Hourly: 5, Daily: 100})

	// Spread turns across minutes so burst never trips first.
	for i := 0; i < 5; i++ {
		admitN(t, svc, "u1", "c1", 1)
		clock.Advance(time.Minute)
	}

	d, err := svc.Admit(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, datatypes.LimitHourly, d.Denial.Kind)
}

func TestAdmit_DailyBoundary(t *testing.T) {
	svc, _, _, clock := newTestService(datatypes.Limits{Burst: 100, PerConversation: 1000, Hourly: 4, Daily: 8})

	for hour := 0; hour < 2; hour++ {
		admitN(t, svc, "u1", "c1", 4)
		clock.Advance(time.Hour)
	}

	d, err := svc.Admit(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, datatypes.LimitDaily, d.Denial.Kind)
}

func TestAdmit_PerConversationNeverResets(t *testing.T) {
	svc, _, _, clock := newTestService(datatypes.Limits{Burst: 100, PerConversation: 3, Hourly: 1000, Daily: 1000})

	admitN(t, svc, "u1", "c1", 3)

	// Days later the conversation is still exhausted.
	clock.Advance(72 * time.Hour)
	d, err := svc.Admit(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, datatypes.LimitPerConversation, d.Denial.Kind)
	assert.Nil(t, d.Denial.ResetAt)

	// A fresh conversation is unaffected.
	d, err = svc.Admit(context.Background(), "u1", "c2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAdmit_DenialDoesNotConsume(t *testing.T) {
	svc, _, _, _ := newTestService(datatypes.Limits{Burst: 2, PerConversation: 100, Hourly: 100, Daily: 100})

	admitN(t, svc, "u1", "c1", 2)

	// Repeated denials leave usage unchanged.
	for i := 0; i < 5; i++ {
		d, err := svc.Admit(context.Background(), "u1", "c1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 2, d.Usage.Burst)
		assert.Equal(t, 2, d.Usage.Hourly)
		assert.Equal(t, 2, d.Usage.Daily)
		assert.Equal(t, 2, d.Usage.PerConversation)
	}
}

func TestAdmit_WindowLapseRestartsAtOne(t *testing.T) {
	svc, _, _, clock := newTestService(datatypes.Limits{Burst: 2, PerConversation: 100, Hourly: 100, Daily: 100})

	admitN(t, svc, "u1", "c1", 2)

	clock.Advance(BurstWindow)
	d, err := svc.Admit(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Usage.Burst)
	// Hourly window has not lapsed; it keeps counting.
	assert.Equal(t, 3, d.Usage.Hourly)
}

func TestAdmit_BurstScenario(t *testing.T) {
	// Three quick prompts per minute against a burst limit of 3: the
	// fourth in any minute is denied, and the next minute starts clean.
	svc, _, _, clock := newTestService(datatypes.Limits{Burst: 3, PerConversation: 100, Hourly: 100, Daily: 100})

	for minute := 0; minute < 3; minute++ {
		admitN(t, svc, "u1", "c1", 3)
		d, err := svc.Admit(context.Background(), "u1", "c1")
		require.NoError(t, err)
		assert.False(t, d.Allowed, "minute %d overflow should be denied", minute)
		clock.Advance(time.Minute)
	}
}

func TestAdmit_FailFastOrder(t *testing.T) {
	// When both burst and hourly are exhausted the denial names burst,
	// the first check in the evaluation order.
	svc, _, violations, _ := newTestService(datatypes.Limits{Burst: 2, PerConversation: 100, Hourly: 2, Daily: 100})

	admitN(t, svc, "u1", "c1", 2)

	d, err := svc.Admit(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.LimitBurst, d.Denial.Kind)

	recorded, err := violations.Recent(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, datatypes.LimitBurst, recorded[0].Kind)
}

func TestAdmit_WhitelistBypassesAndDoesNotCount(t *testing.T) {
	svc, policy, _, _ := newTestService(datatypes.Limits{Burst: 1, PerConversation: 1, Hourly: 1, Daily: 1})
	policy.AddWhitelist("vip")

	for i := 0; i < 20; i++ {
		d, err := svc.Admit(context.Background(), "vip", "c1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 0, d.Usage.Burst)
		assert.Equal(t, 0, d.Usage.PerConversation)
	}

	// Removing the whitelist re-subjects the user immediately.
	policy.RemoveWhitelist("vip")
	d, err := svc.Admit(context.Background(), "vip", "c1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = svc.Admit(context.Background(), "vip", "c1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestAdmit_UserOverride(t *testing.T) {
	svc, policy, _, _ := newTestService(datatypes.Limits{Burst: 10, PerConversation: 50, Hourly: 150, Daily: 1000})
	policy.SetOverride("heavy", datatypes.Limits{Burst: 1, PerConversation: 50, Hourly: 150, Daily: 1000})

	admitN(t, svc, "heavy", "c1", 1)
	d, err := svc.Admit(context.Background(), "heavy", "c1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.Denial.Limit)

	// Other users keep the defaults.
	admitN(t, svc, "light", "c2", 5)

	policy.ClearOverride("heavy")
	d, err = svc.Admit(context.Background(), "heavy", "c1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAdmit_UsersAreIsolated(t *testing.T) {
	svc, _, _, _ := newTestService(datatypes.Limits{Burst: 2, PerConversation: 100, Hourly: 100, Daily: 100})

	admitN(t, svc, "u1", "c1", 2)
	d, err := svc.Admit(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	// A different user in the same conversation window is untouched.
	d, err = svc.Admit(context.Background(), "u2", "c9")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestResetUser_ClearsWindowsOnly(t *testing.T) {
	svc, _, _, _ := newTestService(datatypes.Limits{Burst: 2, PerConversation: 3, Hourly: 100, Daily: 100})

	admitN(t, svc, "u1", "c1", 2)
	require.NoError(t, svc.ResetUser(context.Background(), "u1"))

	d, err := svc.Admit(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Usage.Burst)
	// Conversation consumption survived the reset.
	assert.Equal(t, 3, d.Usage.PerConversation)
}

func TestUsage_ReadOnly(t *testing.T) {
	svc, _, _, _ := newTestService(datatypes.Limits{Burst: 5, PerConversation: 50, Hourly: 150, Daily: 1000})

	admitN(t, svc, "u1", "c1", 2)

	for i := 0; i < 3; i++ {
		usage, limits, err := svc.Usage(context.Background(), "u1", "c1")
		require.NoError(t, err)
		assert.Equal(t, 2, usage.Burst)
		assert.Equal(t, 2, usage.PerConversation)
		assert.Equal(t, 5, limits.Burst)
	}
}

func TestMemoryViolationLog_FilterAndOrder(t *testing.T) {
	log := NewMemoryViolationLog(10)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		user := "a"
		if i%2 == 1 {
			user = "b"
		}
		require.NoError(t, log.Append(context.Background(), datatypes.Violation{
			UserID:     user,
			Kind:       datatypes.LimitBurst,
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := log.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[0].OccurredAt.After(all[3].OccurredAt))

	onlyA, err := log.Recent(context.Background(), "a", 10)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	for _, v := range onlyA {
		assert.Equal(t, "a", v.UserID)
	}
}

func TestWindow_EffectiveCount(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := Window{Count: 7, Start: start}

	assert.Equal(t, 7, w.EffectiveCount(start.Add(30*time.Second), time.Minute))
	assert.Equal(t, 0, w.EffectiveCount(start.Add(time.Minute), time.Minute))
	assert.Equal(t, 0, w.EffectiveCount(start.Add(2*time.Hour), time.Minute))
}
