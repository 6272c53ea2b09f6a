// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// Delta is one streamed fragment from the model: incremental text,
// incremental tool-call pieces, or both.
type Delta struct {
	Content   string
	ToolCalls []ToolCallDelta
}

// ToolCallDelta is a fragment of a tool call under construction.
// Index identifies which in-flight call the fragment belongs to; ID
// and Name arrive on the first fragment for a call, Arguments
// accumulate across fragments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// DeltaFunc receives each fragment as it streams. Returning an error
// aborts the stream.
type DeltaFunc func(Delta) error

// CompletionProvider streams one model completion. Implementations
// block until the stream is drained or fails; a nil return means the
// stream ended cleanly.
type CompletionProvider interface {
	StreamCompletion(ctx context.Context, messages []datatypes.Message, tools []datatypes.ToolSpec, fn DeltaFunc) error
}
