// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools hosts the tool registry and the execution gateway that
// runs model-requested tool calls.
//
// A Tool pairs a spec (name, description, JSON-schema parameters) with
// a Go function. The registry is the single source of truth for what
// the model may call; the gateway executes batches of calls against it
// with per-call timeouts and failure isolation.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// Func executes one tool call. Args are the decoded JSON arguments.
// The returned payload must be JSON-serializable; it is forwarded both
// to the client and back to the model.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool is a registered capability.
type Tool struct {
	Spec datatypes.ToolSpec
	Fn   Func
}

// Registry holds the callable tools. Registration normally happens at
// startup; Lookup and Specs are safe for concurrent use throughout.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name is an error; tool names
// are part of the model-facing contract and must not silently change.
func (r *Registry) Register(tool Tool) error {
	if tool.Spec.Name == "" {
		return fmt.Errorf("tools: register: spec has no name")
	}
	if tool.Fn == nil {
		return fmt.Errorf("tools: register %s: nil function", tool.Spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Spec.Name]; exists {
		return fmt.Errorf("tools: register %s: already registered", tool.Spec.Name)
	}
	r.tools[tool.Spec.Name] = tool
	return nil
}

// Lookup returns the tool for a name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Specs returns every registered spec sorted by name, ready to
// advertise to the model.
func (r *Registry) Specs() []datatypes.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]datatypes.ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Names returns the registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	specs := r.Specs()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
