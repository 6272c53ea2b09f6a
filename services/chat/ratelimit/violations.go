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

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// ViolationSink receives the audit record for every denied turn. The
// sink is invoked before the denial is surfaced to the caller.
type ViolationSink interface {
	Append(ctx context.Context, v datatypes.Violation) error
}

// ViolationReader serves the admin violation listing.
type ViolationReader interface {
	// Recent returns up to limit violations, newest first. A userID of
	// "" returns violations for all users.
	Recent(ctx context.Context, userID string, limit int) ([]datatypes.Violation, error)
}

// MemoryViolationLog is a bounded in-process violation log.
type MemoryViolationLog struct {
	mu         sync.Mutex
	max        int
	violations []datatypes.Violation
}

// NewMemoryViolationLog retains at most max violations, dropping the
// oldest. A max of zero defaults to 1000.
func NewMemoryViolationLog(max int) *MemoryViolationLog {
	if max <= 0 {
		max = 1000
	}
	return &MemoryViolationLog{max: max}
}

func (l *MemoryViolationLog) Append(_ context.Context, v datatypes.Violation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.violations = append(l.violations, v)
	if len(l.violations) > l.max {
		l.violations = l.violations[len(l.violations)-l.max:]
	}
	return nil
}

func (l *MemoryViolationLog) Recent(_ context.Context, userID string, limit int) ([]datatypes.Violation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]datatypes.Violation, 0, limit)
	for i := len(l.violations) - 1; i >= 0 && len(out) < limit; i-- {
		if userID != "" && l.violations[i].UserID != userID {
			continue
		}
		out = append(out, l.violations[i])
	}
	return out, nil
}
