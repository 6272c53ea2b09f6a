// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads chat service configuration from the
// environment. Every knob has a default suitable for local
// development; production overrides them per deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full runtime configuration of the chat service.
type Config struct {
	// Port is the HTTP listen port.
	Port string `validate:"required,numeric"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `validate:"oneof=debug info warn error"`

	// OpenAI-compatible model backend.
	OpenAIAPIKey  string
	OpenAIModel   string `validate:"required"`
	OpenAIBaseURL string

	// RedisAddr enables the Redis-backed rate limit stores when set;
	// empty keeps counters in process memory.
	RedisAddr string

	// PostgresDSN enables Postgres persistence when set; empty keeps
	// history in process memory.
	PostgresDSN string

	// AdminToken protects the admin endpoints. Empty disables them.
	AdminToken string

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string

	// Engine knobs.
	MaxIterations   int           `validate:"min=1,max=20"`
	ToolCallTimeout time.Duration `validate:"min=1s"`
	MaxHistoryTurns int           `validate:"min=1,max=200"`
	SystemPrompt    string
}

var configValidate = validator.New()

// Load reads configuration from the environment, applies defaults,
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            envOr("CHAT_PORT", "8090"),
		LogLevel:        envOr("CHAT_LOG_LEVEL", "info"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		RedisAddr:       os.Getenv("CHAT_REDIS_ADDR"),
		PostgresDSN:     os.Getenv("CHAT_POSTGRES_DSN"),
		AdminToken:      os.Getenv("CHAT_ADMIN_TOKEN"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MaxIterations:   envIntOr("CHAT_MAX_ITERATIONS", 5),
		ToolCallTimeout: envDurationOr("CHAT_TOOL_TIMEOUT", 60*time.Second),
		MaxHistoryTurns: envIntOr("CHAT_MAX_HISTORY_TURNS", 20),
		SystemPrompt:    os.Getenv("CHAT_SYSTEM_PROMPT"),
	}

	if err := configValidate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
