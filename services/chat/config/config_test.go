// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, 60*time.Second, cfg.ToolCallTimeout)
	assert.Equal(t, 20, cfg.MaxHistoryTurns)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHAT_PORT", "9000")
	t.Setenv("CHAT_LOG_LEVEL", "debug")
	t.Setenv("CHAT_MAX_ITERATIONS", "3")
	t.Setenv("CHAT_TOOL_TIMEOUT", "15s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 15*time.Second, cfg.ToolCallTimeout)
}

func TestLoad_InvalidValuesFallBackOrFail(t *testing.T) {
	t.Setenv("CHAT_MAX_ITERATIONS", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxIterations)

	t.Setenv("CHAT_MAX_ITERATIONS", "0")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("CHAT_MAX_ITERATIONS", "5")
	t.Setenv("CHAT_LOG_LEVEL", "loud")
	_, err = Load()
	assert.Error(t, err)
}
