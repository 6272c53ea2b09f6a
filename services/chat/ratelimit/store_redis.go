// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCounterPrefix      = "kubera:ratelimit:cnt:"
	redisConversationPrefix = "kubera:ratelimit:conv:"
)

// incrementScript applies the lapse-or-increment rule to all three
// windows in one EVAL so concurrent admissions across processes never
// interleave mid-cycle. Timestamps are unix milliseconds.
//
// KEYS[1] = counter hash, ARGV[1] = now, ARGV[2..4] = window durations.
// Returns {m_count, m_start, h_count, h_start, d_count, d_start}.
var incrementScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local durs = {tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4])}
local fields = {{'m_count','m_start'},{'h_count','h_start'},{'d_count','d_start'}}
local out = {}
for i = 1, 3 do
  local count = tonumber(redis.call('HGET', key, fields[i][1])) or 0
  local start = tonumber(redis.call('HGET', key, fields[i][2])) or now
  if count == 0 or now - start >= durs[i] then
    count = 1
    start = now
  else
    count = count + 1
  end
  redis.call('HSET', key, fields[i][1], count, fields[i][2], start)
  out[#out+1] = count
  out[#out+1] = start
end
redis.call('PEXPIRE', key, durs[3])
return out
`)

// RedisCounterStore is the multi-process CounterStore. Counters live in
// one hash per user; increments run through a Lua script for atomicity.
//
// The store does not own the client; callers manage its lifecycle.
type RedisCounterStore struct {
	client *redis.Client
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (r *RedisCounterStore) Windows(ctx context.Context, userID string, now time.Time) (WindowSet, error) {
	vals, err := r.client.HGetAll(ctx, redisCounterPrefix+userID).Result()
	if err != nil {
		return WindowSet{}, fmt.Errorf("ratelimit: read counters for %s: %w", userID, err)
	}
	return WindowSet{
		Minute: windowFromHash(vals, "m_count", "m_start", now),
		Hour:   windowFromHash(vals, "h_count", "h_start", now),
		Day:    windowFromHash(vals, "d_count", "d_start", now),
	}, nil
}

func (r *RedisCounterStore) Increment(ctx context.Context, userID string, now time.Time) (WindowSet, error) {
	res, err := incrementScript.Run(ctx, r.client,
		[]string{redisCounterPrefix + userID},
		now.UnixMilli(),
		BurstWindow.Milliseconds(),
		HourlyWindow.Milliseconds(),
		DailyWindow.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return WindowSet{}, fmt.Errorf("ratelimit: increment counters for %s: %w", userID, err)
	}
	if len(res) != 6 {
		return WindowSet{}, fmt.Errorf("ratelimit: increment script returned %d values, want 6", len(res))
	}
	return WindowSet{
		Minute: Window{Count: int(res[0]), Start: time.UnixMilli(res[1])},
		Hour:   Window{Count: int(res[2]), Start: time.UnixMilli(res[3])},
		Day:    Window{Count: int(res[4]), Start: time.UnixMilli(res[5])},
	}, nil
}

func (r *RedisCounterStore) Reset(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, redisCounterPrefix+userID).Err(); err != nil {
		return fmt.Errorf("ratelimit: reset counters for %s: %w", userID, err)
	}
	return nil
}

func windowFromHash(vals map[string]string, countField, startField string, now time.Time) Window {
	w := Window{Start: now}
	if s, ok := vals[startField]; ok {
		var ms int64
		if _, err := fmt.Sscanf(s, "%d", &ms); err == nil {
			w.Start = time.UnixMilli(ms)
		}
	}
	if c, ok := vals[countField]; ok {
		_, _ = fmt.Sscanf(c, "%d", &w.Count)
	}
	return w
}

// RedisConversationCounter keeps per-conversation prompt counts in
// plain Redis integers. Counts persist for the conversation lifetime.
type RedisConversationCounter struct {
	client *redis.Client
}

func NewRedisConversationCounter(client *redis.Client) *RedisConversationCounter {
	return &RedisConversationCounter{client: client}
}

func (r *RedisConversationCounter) Count(ctx context.Context, conversationID string) (int, error) {
	n, err := r.client.Get(ctx, redisConversationPrefix+conversationID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: read conversation count for %s: %w", conversationID, err)
	}
	return n, nil
}

func (r *RedisConversationCounter) Increment(ctx context.Context, conversationID string) (int, error) {
	n, err := r.client.Incr(ctx, redisConversationPrefix+conversationID).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: increment conversation count for %s: %w", conversationID, err)
	}
	return int(n), nil
}
