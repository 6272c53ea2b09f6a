// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"sync"

	"github.com/kuberahq/kubera/services/chat/observability"
)

// Manager tracks live sessions per user. A user may hold any number of
// concurrent sessions; each registers and unregisters independently.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]map[*Session]struct{})}
}

func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sessions[s.UserID()]
	if !ok {
		set = make(map[*Session]struct{})
		m.sessions[s.UserID()] = set
	}
	set[s] = struct{}{}
	observability.Default().ConnectionOpened()
}

func (m *Manager) Unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sessions[s.UserID()]
	if !ok {
		return
	}
	if _, present := set[s]; !present {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(m.sessions, s.UserID())
	}
	observability.Default().ConnectionClosed()
}

// ConnectionCount returns the number of live sessions for one user.
func (m *Manager) ConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[userID])
}

// TotalConnections returns the number of live sessions across users.
func (m *Manager) TotalConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, set := range m.sessions {
		total += len(set)
	}
	return total
}

// ConnectedUsers returns the users with at least one live session.
func (m *Manager) ConnectedUsers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]string, 0, len(m.sessions))
	for user := range m.sessions {
		users = append(users, user)
	}
	return users
}

// CloseUser closes every live session for a user and returns how many
// were closed. Used when an operator revokes access.
func (m *Manager) CloseUser(userID string) int {
	m.mu.RLock()
	set := m.sessions[userID]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		_ = s.Close()
	}
	return len(targets)
}
