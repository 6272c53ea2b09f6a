// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Kubera services.
//
// Every service logs through a *Logger, which fans each record out to
// up to three sinks: stderr (human-readable text), a per-service JSON
// log file under the configured directory, and an optional LogExporter
// for shipping records to an aggregation backend.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Service: "chat"})
//	if err != nil { ... }
//	defer logger.Close()
//	logger.Info("server starting", "port", 8080)
//
// All methods are safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level mirrors slog levels with a string form suitable for config files
// and environment variables.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// slogLevel converts a Level to its slog equivalent. Unknown values
// fall back to info rather than failing startup.
func (l Level) slogLevel() slog.Level {
	switch strings.ToLower(string(l)) {
	case string(LevelDebug):
		return slog.LevelDebug
	case string(LevelWarn):
		return slog.LevelWarn
	case string(LevelError):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogExporter ships log records to an external sink.
//
// Export must not block for long periods; the logger calls it inline on
// the logging path. Implementations that talk to the network should
// buffer internally and flush asynchronously.
type LogExporter interface {
	Export(ctx context.Context, record ExportRecord) error
	Close() error
}

// ExportRecord is the flattened form of a log record handed to exporters.
type ExportRecord struct {
	Time    time.Time
	Level   string
	Service string
	Message string
	Attrs   map[string]any
}

// Config controls logger construction. The zero value plus a Service
// name is a working configuration.
type Config struct {
	// Service names the emitting service; it appears on every record
	// and in the log file name.
	Service string

	// Level is the minimum level emitted. Defaults to info.
	Level Level

	// Dir is where JSON log files are written. Defaults to
	// ~/.kubera/logs. Set DisableFile to skip file output entirely.
	Dir         string
	DisableFile bool

	// Stderr controls console output. Defaults to os.Stderr; tests
	// can redirect it. Set DisableStderr to silence the console.
	Stderr        io.Writer
	DisableStderr bool

	// Exporter optionally ships records to an external backend.
	Exporter LogExporter
}

// Logger wraps slog with multi-sink output and a Close method that
// flushes and releases the underlying file and exporter.
type Logger struct {
	*slog.Logger

	service  string
	file     *os.File
	exporter LogExporter

	closeOnce sync.Once
	closeErr  error
}

// New builds a Logger from cfg. The returned logger is ready for use;
// callers own it and should Close it on shutdown.
func New(cfg Config) (*Logger, error) {
	if cfg.Service == "" {
		return nil, fmt.Errorf("logging: config requires a service name")
	}

	level := cfg.Level.slogLevel()
	var handlers []slog.Handler

	if !cfg.DisableStderr {
		w := cfg.Stderr
		if w == nil {
			w = os.Stderr
		}
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}

	var file *os.File
	if !cfg.DisableFile {
		dir := cfg.Dir
		if dir == "" {
			dir = defaultLogDir()
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("logging: create log dir %s: %w", dir, err)
		}
		path := filepath.Join(dir, cfg.Service+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file %s: %w", path, err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	if cfg.Exporter != nil {
		handlers = append(handlers, &exportHandler{
			exporter: cfg.Exporter,
			service:  cfg.Service,
			level:    level,
		})
	}

	base := slog.New(&multiHandler{handlers: handlers}).With("service", cfg.Service)

	return &Logger{
		Logger:   base,
		service:  cfg.Service,
		file:     file,
		exporter: cfg.Exporter,
	}, nil
}

// Close flushes and closes the log file and exporter. Safe to call
// more than once; later calls return the first error.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		if l.file != nil {
			if err := l.file.Close(); err != nil {
				l.closeErr = fmt.Errorf("logging: close file: %w", err)
			}
		}
		if l.exporter != nil {
			if err := l.exporter.Close(); err != nil && l.closeErr == nil {
				l.closeErr = fmt.Errorf("logging: close exporter: %w", err)
			}
		}
	})
	return l.closeErr
}

// defaultLogDir resolves ~/.kubera/logs, falling back to the working
// directory when the home directory cannot be determined.
func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".kubera", "logs")
	}
	return filepath.Join(home, ".kubera", "logs")
}

// =============================================================================
// Multi Handler
// =============================================================================

// multiHandler fans a record out to every child handler. A failing
// child does not stop the others; the first error is returned.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// =============================================================================
// Exporter Bridge
// =============================================================================

// exportHandler adapts a LogExporter to the slog.Handler interface.
type exportHandler struct {
	exporter LogExporter
	service  string
	level    slog.Level
	attrs    []slog.Attr
}

func (e *exportHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= e.level
}

func (e *exportHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(e.attrs))
	for _, a := range e.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	return e.exporter.Export(ctx, ExportRecord{
		Time:    r.Time,
		Level:   r.Level.String(),
		Service: e.service,
		Message: r.Message,
		Attrs:   attrs,
	})
}

func (e *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(e.attrs)+len(attrs))
	merged = append(merged, e.attrs...)
	merged = append(merged, attrs...)
	return &exportHandler{exporter: e.exporter, service: e.service, level: e.level, attrs: merged}
}

func (e *exportHandler) WithGroup(string) slog.Handler { return e }

// =============================================================================
// Exporters
// =============================================================================

// NopExporter discards every record. Useful as a placeholder in tests
// and in deployments with no aggregation backend.
type NopExporter struct{}

func (NopExporter) Export(context.Context, ExportRecord) error { return nil }
func (NopExporter) Close() error                               { return nil }

// BufferedExporter keeps the most recent records in memory. Tests use
// it to assert on emitted logs.
type BufferedExporter struct {
	mu      sync.Mutex
	max     int
	records []ExportRecord
}

// NewBufferedExporter retains at most max records, dropping the oldest.
// A max of zero means unbounded.
func NewBufferedExporter(max int) *BufferedExporter {
	return &BufferedExporter{max: max}
}

func (b *BufferedExporter) Export(_ context.Context, record ExportRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, record)
	if b.max > 0 && len(b.records) > b.max {
		b.records = b.records[len(b.records)-b.max:]
	}
	return nil
}

func (b *BufferedExporter) Close() error { return nil }

// Records returns a copy of the buffered records.
func (b *BufferedExporter) Records() []ExportRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ExportRecord, len(b.records))
	copy(out, b.records)
	return out
}
