// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"encoding/json"

	"github.com/kuberahq/kubera/services/chat/datatypes"
)

// ExtractArtifact inspects a successful tool payload for a client
// artifact. A payload that carries a non-empty "chart_url" yields a
// chart artifact; the "chart_type" field, when present, refines the
// kind. String payloads are probed as JSON before giving up.
func ExtractArtifact(payload any) (datatypes.Artifact, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		s, isString := payload.(string)
		if !isString {
			return datatypes.Artifact{}, false
		}
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return datatypes.Artifact{}, false
		}
	}

	url, _ := m["chart_url"].(string)
	if url == "" {
		return datatypes.Artifact{}, false
	}
	kind := "chart"
	if ct, _ := m["chart_type"].(string); ct != "" {
		kind = ct
	}
	return datatypes.Artifact{Kind: kind, Ref: url}, true
}

// MergeArtifact applies the last-writer-wins rule: within a turn, a
// later artifact of the same kind replaces the earlier one while
// preserving first-seen ordering of kinds.
func MergeArtifact(artifacts []datatypes.Artifact, next datatypes.Artifact) []datatypes.Artifact {
	for i, a := range artifacts {
		if a.Kind == next.Kind {
			artifacts[i] = next
			return artifacts
		}
	}
	return append(artifacts, next)
}
