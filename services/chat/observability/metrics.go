// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus metrics for the chat
// service. Metrics register once in the default registry and are
// shared process-wide through Default().
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "kubera"
	subsystem = "chat"
)

// ChatMetrics aggregates every instrument of the chat service.
type ChatMetrics struct {
	// ActiveConnections tracks currently open client connections.
	ActiveConnections prometheus.Gauge

	// TurnsTotal counts finished turns by outcome.
	TurnsTotal *prometheus.CounterVec

	// TurnDuration observes wall time per finished turn by outcome.
	TurnDuration *prometheus.HistogramVec

	// TimeToFirstChunk observes latency from admission to the first
	// streamed text fragment.
	TimeToFirstChunk prometheus.Histogram

	// DenialsTotal counts admission denials by limit kind.
	DenialsTotal *prometheus.CounterVec

	// ToolInvocationsTotal counts tool calls by tool and status
	// (ok, error, timeout, cancelled, not_found).
	ToolInvocationsTotal *prometheus.CounterVec

	// ToolDuration observes tool execution time by tool.
	ToolDuration *prometheus.HistogramVec

	// IterationsPerTurn observes how many model passes a turn took.
	IterationsPerTurn prometheus.Histogram
}

var (
	defaultMetrics *ChatMetrics
	metricsOnce    sync.Once
)

// Default returns the process-wide metrics, registering them on first
// use.
func Default() *ChatMetrics {
	metricsOnce.Do(func() {
		defaultMetrics = newChatMetrics()
	})
	return defaultMetrics
}

func newChatMetrics() *ChatMetrics {
	return &ChatMetrics{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_connections",
			Help:      "Currently open chat connections.",
		}),
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turns_total",
			Help:      "Finished turns by outcome.",
		}, []string{"outcome"}),
		TurnDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turn_duration_seconds",
			Help:      "Wall time per finished turn.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		TimeToFirstChunk: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "time_to_first_chunk_seconds",
			Help:      "Latency from admission to first streamed text fragment.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		DenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rate_limit_denials_total",
			Help:      "Admission denials by limit kind.",
		}, []string{"kind"}),
		ToolInvocationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_invocations_total",
			Help:      "Tool calls by tool name and status.",
		}, []string{"tool", "status"}),
		ToolDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution time by tool name.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 15, 60},
		}, []string{"tool"}),
		IterationsPerTurn: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "iterations_per_turn",
			Help:      "Model passes consumed by a turn.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}),
	}
}

// ConnectionOpened and ConnectionClosed bracket a client connection.
func (m *ChatMetrics) ConnectionOpened() { m.ActiveConnections.Inc() }
func (m *ChatMetrics) ConnectionClosed() { m.ActiveConnections.Dec() }

// RecordTurn records a finished turn.
func (m *ChatMetrics) RecordTurn(outcome string, seconds float64, iterations int) {
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(seconds)
	m.IterationsPerTurn.Observe(float64(iterations))
}

// RecordFirstChunk records admission-to-first-token latency.
func (m *ChatMetrics) RecordFirstChunk(seconds float64) {
	m.TimeToFirstChunk.Observe(seconds)
}

// RecordDenial records an admission denial.
func (m *ChatMetrics) RecordDenial(kind string) {
	m.DenialsTotal.WithLabelValues(kind).Inc()
}

// RecordToolInvocation records one tool call.
func (m *ChatMetrics) RecordToolInvocation(tool, status string, seconds float64) {
	m.ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(seconds)
}
