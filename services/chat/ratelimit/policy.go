// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"sync"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// DefaultLimits are the ceilings applied to users with no override.
func DefaultLimits() datatypes.Limits {
	return datatypes.Limits{
		Burst:           10,
		PerConversation: 50,
		Hourly:          150,
		Daily:           1000,
	}
}

// Policy is an immutable snapshot of the limit configuration at one
// point in time. Admission reads a snapshot once per decision so a
// concurrent admin update cannot change limits mid-evaluation.
type Policy struct {
	Defaults  datatypes.Limits
	Overrides map[string]datatypes.Limits
	Whitelist map[string]struct{}
}

// LimitsFor resolves the effective limits for a user.
func (p Policy) LimitsFor(userID string) datatypes.Limits {
	if override, ok := p.Overrides[userID]; ok {
		return override
	}
	return p.Defaults
}

// Whitelisted reports whether the user bypasses admission entirely.
func (p Policy) Whitelisted(userID string) bool {
	_, ok := p.Whitelist[userID]
	return ok
}

// PolicyProvider yields the current policy snapshot.
type PolicyProvider interface {
	Snapshot() Policy
}

// PolicyStore is the mutable, concurrency-safe policy holder backing
// the admin endpoints.
type PolicyStore struct {
	mu        sync.RWMutex
	defaults  datatypes.Limits
	overrides map[string]datatypes.Limits
	whitelist map[string]struct{}
}

func NewPolicyStore(defaults datatypes.Limits) *PolicyStore {
	return &PolicyStore{
		defaults:  defaults,
		overrides: make(map[string]datatypes.Limits),
		whitelist: make(map[string]struct{}),
	}
}

// Snapshot returns a deep copy; callers may hold it without locking.
func (s *PolicyStore) Snapshot() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overrides := make(map[string]datatypes.Limits, len(s.overrides))
	for k, v := range s.overrides {
		overrides[k] = v
	}
	whitelist := make(map[string]struct{}, len(s.whitelist))
	for k := range s.whitelist {
		whitelist[k] = struct{}{}
	}
	return Policy{Defaults: s.defaults, Overrides: overrides, Whitelist: whitelist}
}

// SetDefaults replaces the global limits for all non-overridden users.
func (s *PolicyStore) SetDefaults(limits datatypes.Limits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = limits
}

// SetOverride pins per-user limits that shadow the defaults.
func (s *PolicyStore) SetOverride(userID string, limits datatypes.Limits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[userID] = limits
}

// ClearOverride restores a user to the defaults.
func (s *PolicyStore) ClearOverride(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, userID)
}

// AddWhitelist exempts a user from all admission checks.
func (s *PolicyStore) AddWhitelist(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist[userID] = struct{}{}
}

// RemoveWhitelist re-subjects a user to admission checks.
func (s *PolicyStore) RemoveWhitelist(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.whitelist, userID)
}
