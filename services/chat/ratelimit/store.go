// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window durations for the three time-based limits.
const (
	BurstWindow  = time.Minute
	HourlyWindow = time.Hour
	DailyWindow  = 24 * time.Hour
)

// Window is one stored counter: how many turns were admitted since
// Start. The stored count is only meaningful while the window is live;
// EffectiveCount applies the lapse rule at read time.
type Window struct {
	Count int
	Start time.Time
}

// EffectiveCount returns the count a limit check should see: zero when
// the window has lapsed, the stored count otherwise.
func (w Window) EffectiveCount(now time.Time, duration time.Duration) int {
	if now.Sub(w.Start) >= duration {
		return 0
	}
	return w.Count
}

// ResetAt is the instant the window lapses.
func (w Window) ResetAt(duration time.Duration) time.Time {
	return w.Start.Add(duration)
}

// WindowSet holds a user's three windowed counters.
type WindowSet struct {
	Minute Window
	Hour   Window
	Day    Window
}

// CounterStore persists per-user windowed counters.
//
// Increment must be atomic with respect to concurrent calls for the
// same user: the read-lapse-write cycle for all three windows happens
// as one unit, so two racing increments never observe the same stored
// state.
type CounterStore interface {
	// Windows returns the stored windows for a user without mutating
	// them. A user never seen before reads as zeroed windows anchored
	// at now.
	Windows(ctx context.Context, userID string, now time.Time) (WindowSet, error)

	// Increment records one admitted turn. A window whose duration has
	// lapsed restarts at count 1 anchored at now; a live window
	// increments in place. Returns the windows after the update.
	Increment(ctx context.Context, userID string, now time.Time) (WindowSet, error)

	// Reset clears all windowed counters for a user.
	Reset(ctx context.Context, userID string) error
}

// ConversationCounter tracks how many prompts a conversation has
// consumed. The count is monotonic for the life of the conversation;
// there is no time-based reset.
type ConversationCounter interface {
	Count(ctx context.Context, conversationID string) (int, error)
	Increment(ctx context.Context, conversationID string) (int, error)
}

// =============================================================================
// In-Memory Store
// =============================================================================

// MemoryCounterStore is the single-process CounterStore used in tests
// and deployments without Redis. A single mutex serializes the
// read-lapse-write cycle.
type MemoryCounterStore struct {
	mu    sync.Mutex
	users map[string]*WindowSet
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{users: make(map[string]*WindowSet)}
}

func (m *MemoryCounterStore) Windows(_ context.Context, userID string, now time.Time) (WindowSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.users[userID]; ok {
		return *ws, nil
	}
	return WindowSet{
		Minute: Window{Start: now},
		Hour:   Window{Start: now},
		Day:    Window{Start: now},
	}, nil
}

func (m *MemoryCounterStore) Increment(_ context.Context, userID string, now time.Time) (WindowSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.users[userID]
	if !ok {
		ws = &WindowSet{
			Minute: Window{Start: now},
			Hour:   Window{Start: now},
			Day:    Window{Start: now},
		}
		m.users[userID] = ws
	}
	bump(&ws.Minute, now, BurstWindow)
	bump(&ws.Hour, now, HourlyWindow)
	bump(&ws.Day, now, DailyWindow)
	return *ws, nil
}

func (m *MemoryCounterStore) Reset(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	return nil
}

// bump applies the lapse-or-increment rule to one window in place.
func bump(w *Window, now time.Time, duration time.Duration) {
	if w.Count == 0 || now.Sub(w.Start) >= duration {
		w.Count = 1
		w.Start = now
		return
	}
	w.Count++
}

// MemoryConversationCounter is the single-process ConversationCounter.
type MemoryConversationCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryConversationCounter() *MemoryConversationCounter {
	return &MemoryConversationCounter{counts: make(map[string]int)}
}

func (m *MemoryConversationCounter) Count(_ context.Context, conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[conversationID], nil
}

func (m *MemoryConversationCounter) Increment(_ context.Context, conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[conversationID]++
	return m.counts[conversationID], nil
}
