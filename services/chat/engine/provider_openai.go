// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// OpenAIProvider streams completions from an OpenAI-compatible API.
// BaseURL may point at any server speaking the same protocol.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	tracer trace.Tracer
}

// NewOpenAIProvider builds a provider. baseURL is optional; empty
// means api.openai.com.
func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("engine: openai provider requires an API key")
	}
	if model == "" {
		return nil, fmt.Errorf("engine: openai provider requires a model name")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		tracer: otel.Tracer("kubera/chat/engine"),
	}, nil
}

func (p *OpenAIProvider) StreamCompletion(ctx context.Context, messages []datatypes.Message, tools []datatypes.ToolSpec, fn DeltaFunc) error {
	ctx, span := p.tracer.Start(ctx, "engine.StreamCompletion",
		trace.WithAttributes(
			attribute.String("llm.model", p.model),
			attribute.Int("llm.message_count", len(messages)),
			attribute.Int("llm.tool_count", len(tools)),
		))
	defer span.End()

	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(tools),
		Stream:   true,
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream open failed")
		return fmt.Errorf("engine: open completion stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream read failed")
			return fmt.Errorf("engine: read completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0].Delta
		delta := Delta{Content: choice.Content}
		for _, tc := range choice.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			delta.ToolCalls = append(delta.ToolCalls, ToolCallDelta{
				Index:     index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if delta.Content == "" && len(delta.ToolCalls) == 0 {
			continue
		}
		if err := fn(delta); err != nil {
			return err
		}
	}
}

func toOpenAIMessages(messages []datatypes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []datatypes.ToolSpec) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
