// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable integration points of the
// Kubera platform. The open-source build ships permissive defaults;
// hosted deployments swap in real identity providers without touching
// service code.
package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned (possibly wrapped) when authentication
// or authorization fails.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity attached to an authenticated request.
type AuthInfo struct {
	// UserID uniquely identifies the user. Never empty.
	UserID string

	// Email may be empty if the provider does not supply one.
	Email string

	// Roles drives authorization. Common roles: "admin", "analyst".
	Roles []string
}

// HasRole reports whether the identity carries a role.
func (a *AuthInfo) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens.
//
// Validate returns the identity for a valid token, or an error
// wrapping ErrUnauthorized for an invalid one. Other errors indicate
// provider failures (network, upstream outage). Implementations must
// be safe for concurrent use.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider authenticates everyone as a local admin. It is the
// default for single-user deployments with no identity infrastructure;
// any token, including none, is accepted.
type NopAuthProvider struct{}

func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{UserID: "local-user", Roles: []string{"admin"}}, nil
}

// StaticTokenProvider authenticates against a fixed token table. It
// serves small deployments and tests; anything larger plugs in a real
// identity provider.
type StaticTokenProvider struct {
	tokens map[string]AuthInfo
}

// NewStaticTokenProvider copies the given token table.
func NewStaticTokenProvider(tokens map[string]AuthInfo) *StaticTokenProvider {
	copied := make(map[string]AuthInfo, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticTokenProvider{tokens: copied}
}

func (p *StaticTokenProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	info, ok := p.tokens[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	out := info
	return &out, nil
}

// GuestProvider is the development identity scheme: the bearer token
// itself is taken as the user id, an empty token maps to "anonymous",
// and the configured operator token grants the admin role. It gives
// per-user rate limiting without identity infrastructure; production
// deployments replace it.
type GuestProvider struct {
	AdminToken string
}

func (p *GuestProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if p.AdminToken != "" && token == p.AdminToken {
		return &AuthInfo{UserID: "operator", Roles: []string{"admin"}}, nil
	}
	if token == "" {
		return &AuthInfo{UserID: "anonymous"}, nil
	}
	return &AuthInfo{UserID: token}, nil
}
