// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine runs the agentic orchestration loop for one chat turn.
//
// A turn alternates between model passes and tool execution. Each pass
// streams text to the client while reassembling any tool calls the
// model requests; requested calls run as a concurrent batch through
// the gateway, their results are folded back into the transcript, and
// the model gets another pass. The loop ends when a pass requests no
// tools, the iteration ceiling is hit, or the model stream fails.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kuberahq/kubera/services/chat/datatypes"
	"github.com/kuberahq/kubera/services/chat/observability"
	"github.com/kuberahq/kubera/services/chat/tools"
)

// DefaultMaxIterations bounds model passes per turn.
const DefaultMaxIterations = 5

// DefaultSystemPrompt frames the assistant for stock research.
const DefaultSystemPrompt = `You are Kubera, a stock research assistant. Answer questions about ` +
	`stocks, prices, and market trends. Use the available tools to fetch quotes, ` +
	`price history, and charts; never invent numbers. Be concise and cite the ` +
	`figures the tools returned.`

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeComplete      Outcome = "complete"
	OutcomeMaxIterations Outcome = "max_iterations"
	OutcomeFailed        Outcome = "failed"
)

// TurnResult summarizes a finished turn for persistence and metrics.
// Text is the full assistant text across all passes.
type TurnResult struct {
	Outcome        Outcome
	Text           string
	Iterations     int
	ToolsUsed      []string
	TokensEstimate int
	Artifacts      []datatypes.Artifact
	Duration       time.Duration
}

// EmitFunc delivers a stream event to the client. Emission must never
// fail the turn; transports that die swallow events downstream.
type EmitFunc func(datatypes.StreamEvent)

// Engine orchestrates turns. Safe for concurrent use; per-turn state
// lives on the stack of Run.
type Engine struct {
	provider      CompletionProvider
	gateway       *tools.Gateway
	maxIterations int
	systemPrompt  string
	logger        *slog.Logger
	tracer        trace.Tracer
}

func New(provider CompletionProvider, gateway *tools.Gateway, maxIterations int, systemPrompt string, logger *slog.Logger) *Engine {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider:      provider,
		gateway:       gateway,
		maxIterations: maxIterations,
		systemPrompt:  systemPrompt,
		logger:        logger,
		tracer:        otel.Tracer("kubera/chat/engine"),
	}
}

// Run executes one turn and always returns a TurnResult alongside any
// terminal error. The terminal event (turn_complete,
// turn_limit_reached or turn_failed) is emitted before Run returns.
func (e *Engine) Run(ctx context.Context, turn datatypes.ConversationTurn, emit EmitFunc) (*TurnResult, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(
			attribute.String("chat.conversation_id", turn.ConversationID),
			attribute.String("chat.message_id", turn.MessageID),
		))
	defer span.End()

	messages := make([]datatypes.Message, 0, len(turn.History)+2)
	messages = append(messages, datatypes.Message{Role: datatypes.RoleSystem, Content: e.systemPrompt})
	messages = append(messages, turn.History...)
	messages = append(messages, datatypes.Message{Role: datatypes.RoleUser, Content: turn.UserText})

	specs := e.gateway.Specs()
	result := &TurnResult{}
	var (
		fullText   strings.Builder
		toolsUsed  []string
		seenTools  = make(map[string]bool)
		firstChunk = true
	)

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		result.Iterations = iteration
		acc := newToolCallAccumulator()
		var passText strings.Builder

		err := e.provider.StreamCompletion(ctx, messages, specs, func(d Delta) error {
			if d.Content != "" {
				if firstChunk {
					firstChunk = false
					observability.Default().RecordFirstChunk(time.Since(started).Seconds())
				}
				passText.WriteString(d.Content)
				ev := datatypes.NewEvent(datatypes.EventTextChunk)
				ev.Content = d.Content
				emit(ev)
			}
			for _, tc := range d.ToolCalls {
				id, name, startedCall := acc.add(tc)
				if startedCall {
					ev := datatypes.NewEvent(datatypes.EventToolDispatched)
					ev.ToolID = id
					ev.ToolName = name
					emit(ev)
				}
			}
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "model stream failed")
			e.logger.Error("turn failed on model stream",
				"conversation_id", turn.ConversationID,
				"iteration", iteration,
				"error", err)
			result.Outcome = OutcomeFailed
			result.Text = fullText.String()
			result.Duration = time.Since(started)
			ev := datatypes.NewEvent(datatypes.EventTurnFailed)
			ev.Error = "the assistant could not finish this response"
			emit(ev)
			observability.Default().RecordTurn(string(OutcomeFailed), result.Duration.Seconds(), result.Iterations)
			return result, fmt.Errorf("turn %s: %w", turn.MessageID, err)
		}

		text := passText.String()
		fullText.WriteString(text)
		result.TokensEstimate += estimateTokens(text)

		calls := acc.finalize()
		if len(calls) == 0 {
			result.Outcome = OutcomeComplete
			result.Text = fullText.String()
			result.ToolsUsed = toolsUsed
			result.Duration = time.Since(started)
			ev := datatypes.NewEvent(datatypes.EventTurnComplete)
			ev.Metadata = e.metadata(result)
			emit(ev)
			observability.Default().RecordTurn(string(OutcomeComplete), result.Duration.Seconds(), result.Iterations)
			span.SetAttributes(attribute.Int("chat.iterations", result.Iterations))
			return result, nil
		}

		results := e.dispatch(ctx, calls)
		for _, res := range results {
			success := res.Success
			ev := datatypes.NewEvent(datatypes.EventToolDone)
			ev.ToolID = res.ID
			ev.ToolName = res.Name
			ev.ToolSuccess = &success
			emit(ev)

			if !res.Success {
				continue
			}
			if !seenTools[res.Name] {
				seenTools[res.Name] = true
				toolsUsed = append(toolsUsed, res.Name)
			}
			if artifact, ok := tools.ExtractArtifact(res.Payload); ok {
				result.Artifacts = tools.MergeArtifact(result.Artifacts, artifact)
			}
		}

		messages = append(messages, datatypes.Message{
			Role:      datatypes.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
		})
		for _, res := range results {
			messages = append(messages, datatypes.Message{
				Role:       datatypes.RoleTool,
				ToolCallID: res.ID,
				Content:    renderResultForModel(res),
			})
		}
	}

	result.Outcome = OutcomeMaxIterations
	result.Text = fullText.String()
	result.ToolsUsed = toolsUsed
	result.Duration = time.Since(started)
	e.logger.Warn("turn hit iteration ceiling",
		"conversation_id", turn.ConversationID,
		"max_iterations", e.maxIterations)
	ev := datatypes.NewEvent(datatypes.EventTurnLimitReached)
	ev.Message = "I reached the tool budget for this turn. Here is what I found so far."
	ev.Metadata = e.metadata(result)
	emit(ev)
	observability.Default().RecordTurn(string(OutcomeMaxIterations), result.Duration.Seconds(), result.Iterations)
	return result, nil
}

// dispatch parses argument JSON and runs the batch. Calls with
// malformed arguments become failed results without touching their
// siblings; the positional order of calls is preserved.
func (e *Engine) dispatch(ctx context.Context, calls []datatypes.ToolCall) []datatypes.ToolResult {
	results := make([]datatypes.ToolResult, len(calls))
	batch := make([]tools.Call, 0, len(calls))
	slots := make([]int, 0, len(calls))

	for i, call := range calls {
		args := map[string]any{}
		if strings.TrimSpace(call.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				e.logger.Warn("tool call has malformed arguments",
					"tool", call.Name, "call_id", call.ID, "error", err)
				results[i] = datatypes.ToolResult{
					ID:    call.ID,
					Name:  call.Name,
					Error: fmt.Sprintf("invalid arguments: %v", err),
				}
				continue
			}
		}
		batch = append(batch, tools.Call{ID: call.ID, Name: call.Name, Args: args})
		slots = append(slots, i)
	}

	for j, res := range e.gateway.InvokeBatch(ctx, batch) {
		results[slots[j]] = res
	}
	return results
}

func (e *Engine) metadata(result *TurnResult) *datatypes.TurnMetadata {
	return &datatypes.TurnMetadata{
		Iterations:       result.Iterations,
		ToolsUsed:        result.ToolsUsed,
		TokensEstimate:   result.TokensEstimate,
		ProcessingTimeMs: result.Duration.Milliseconds(),
		Artifacts:        result.Artifacts,
	}
}

// renderResultForModel serializes a tool result into the transcript.
func renderResultForModel(res datatypes.ToolResult) string {
	if !res.Success {
		return fmt.Sprintf(`{"tool":%q,"error":%q}`, res.Name, res.Error)
	}
	b, err := json.Marshal(res.Payload)
	if err != nil {
		return fmt.Sprintf(`{"tool":%q,"error":"unserializable result"}`, res.Name)
	}
	return string(b)
}

// estimateTokens approximates token usage from word count. It feeds
// the turn metadata only; nothing enforces a budget with it.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * 1.3)
}
