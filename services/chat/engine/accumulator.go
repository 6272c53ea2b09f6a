// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"strings"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// toolCallAccumulator reassembles tool calls from streamed fragments.
//
// Providers interleave fragments for multiple calls within one stream;
// each fragment carries the index of the call it extends. The ID and
// name arrive on the first fragment, argument text dribbles in across
// the rest. A call is complete only when the stream ends.
type toolCallAccumulator struct {
	order []int
	calls map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*pendingCall)}
}

// add folds one fragment in. Returns the call's id and name along with
// true when the fragment opens a call not seen before, so callers can
// announce the dispatch exactly once.
func (a *toolCallAccumulator) add(d ToolCallDelta) (id, name string, started bool) {
	call, ok := a.calls[d.Index]
	if !ok {
		call = &pendingCall{}
		a.calls[d.Index] = call
		a.order = append(a.order, d.Index)
		started = true
	}
	if d.ID != "" {
		call.id = d.ID
	}
	if d.Name != "" {
		call.name = d.Name
	}
	call.args.WriteString(d.Arguments)
	return call.id, call.name, started
}

// finalize flushes the assembled calls in first-seen order and resets
// the accumulator.
func (a *toolCallAccumulator) finalize() []datatypes.ToolCall {
	out := make([]datatypes.ToolCall, 0, len(a.order))
	for _, index := range a.order {
		call := a.calls[index]
		out = append(out, datatypes.ToolCall{
			ID:        call.id,
			Name:      call.name,
			Arguments: call.args.String(),
		})
	}
	a.order = nil
	a.calls = make(map[int]*pendingCall)
	return out
}
