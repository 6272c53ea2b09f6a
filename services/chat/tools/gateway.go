// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kuberahq/kubera/services/chat/datatypes"
	"github.com/kuberahq/kubera/services/chat/observability"
)

// DefaultCallTimeout bounds a single tool execution.
const DefaultCallTimeout = 60 * time.Second

// Call is one requested invocation with decoded arguments.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Gateway executes tool calls against a registry.
//
// Failures never propagate as Go errors: every call yields a
// ToolResult, failed or not, so one bad call in a batch cannot take
// its siblings down with it.
type Gateway struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewGateway(registry *Registry, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
		tracer:   otel.Tracer("kubera/chat/tools"),
	}
}

// Specs exposes the registry's advertised tool specs.
func (g *Gateway) Specs() []datatypes.ToolSpec {
	return g.registry.Specs()
}

// Invoke runs a single call and always returns a result.
//
// An unknown tool name fails immediately without consuming the
// timeout. A call that overruns the per-call deadline yields a timeout
// result; the runaway goroutine is abandoned with its context
// cancelled. A panicking tool is converted to a failed result.
func (g *Gateway) Invoke(ctx context.Context, call Call) datatypes.ToolResult {
	started := time.Now()
	ctx, span := g.tracer.Start(ctx, "tools.Invoke",
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("tool.call_id", call.ID),
		))
	defer span.End()

	tool, ok := g.registry.Lookup(call.Name)
	if !ok {
		span.SetStatus(codes.Error, "tool not found")
		g.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
		observability.Default().RecordToolInvocation(call.Name, "not_found", time.Since(started).Seconds())
		return datatypes.ToolResult{ID: call.ID, Name: call.Name, Error: "not found"}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		payload, err := tool.Fn(callCtx, call.Args)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case <-callCtx.Done():
		// The per-call deadline and a cancelled parent both land here;
		// only the former is a tool timeout.
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			g.logger.Info("tool call cancelled",
				"tool", call.Name, "call_id", call.ID, "error", context.Cause(ctx))
			observability.Default().RecordToolInvocation(call.Name, "cancelled", time.Since(started).Seconds())
			return datatypes.ToolResult{ID: call.ID, Name: call.Name, Error: "cancelled"}
		}
		span.SetStatus(codes.Error, "timeout")
		g.logger.Warn("tool call timed out",
			"tool", call.Name, "call_id", call.ID, "timeout", g.timeout.String())
		observability.Default().RecordToolInvocation(call.Name, "timeout", time.Since(started).Seconds())
		return datatypes.ToolResult{ID: call.ID, Name: call.Name, Error: "timeout"}
	case out := <-done:
		elapsed := time.Since(started)
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, out.err.Error())
			g.logger.Warn("tool call failed",
				"tool", call.Name, "call_id", call.ID, "error", out.err)
			observability.Default().RecordToolInvocation(call.Name, "error", elapsed.Seconds())
			return datatypes.ToolResult{ID: call.ID, Name: call.Name, Error: out.err.Error()}
		}
		observability.Default().RecordToolInvocation(call.Name, "ok", elapsed.Seconds())
		return datatypes.ToolResult{ID: call.ID, Name: call.Name, Success: true, Payload: out.payload}
	}
}

// InvokeBatch runs a batch of calls concurrently and returns results
// in the same order as the input. Each call gets its own timeout and
// its own failure domain.
func (g *Gateway) InvokeBatch(ctx context.Context, calls []Call) []datatypes.ToolResult {
	results := make([]datatypes.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(slot int, c Call) {
			defer wg.Done()
			results[slot] = g.Invoke(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}
