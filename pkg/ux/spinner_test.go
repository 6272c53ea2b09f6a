// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer guards the writer against the animation goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_StartStop(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner("thinking").WithWriter(&buf)

	s.Start()
	time.Sleep(250 * time.Millisecond)
	s.Stop()

	out := buf.String()
	assert.Contains(t, out, "thinking")
	// Stop clears the line.
	assert.Contains(t, out, "\033[K")
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner("idle").WithWriter(&buf)
	s.Stop()
	assert.Empty(t, buf.String())
}

func TestSpinner_DoubleStartIsNoop(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner("working").WithWriter(&buf)
	s.Start()
	s.Start()
	s.Stop()
}

func TestSpinner_UpdateMessage(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner("first").WithWriter(&buf)
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.UpdateMessage("second")
	time.Sleep(150 * time.Millisecond)
	s.Stop()

	assert.Contains(t, buf.String(), "second")
}
