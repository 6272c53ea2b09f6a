// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopAuthProvider_AcceptsAnything(t *testing.T) {
	p := &NopAuthProvider{}

	for _, token := range []string{"", "anything", "Bearer junk"} {
		info, err := p.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "local-user", info.UserID)
		assert.True(t, info.HasRole("admin"))
	}
}

func TestStaticTokenProvider(t *testing.T) {
	p := NewStaticTokenProvider(map[string]AuthInfo{
		"tok-alice": {UserID: "alice", Roles: []string{"analyst"}},
		"tok-admin": {UserID: "ops", Roles: []string{"admin"}},
	})

	info, err := p.Validate(context.Background(), "tok-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.UserID)
	assert.False(t, info.HasRole("admin"))

	info, err = p.Validate(context.Background(), "tok-admin")
	require.NoError(t, err)
	assert.True(t, info.HasRole("admin"))

	_, err = p.Validate(context.Background(), "bogus")
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestGuestProvider(t *testing.T) {
	p := &GuestProvider{AdminToken: "secret-ops"}

	info, err := p.Validate(context.Background(), "secret-ops")
	require.NoError(t, err)
	assert.Equal(t, "operator", info.UserID)
	assert.True(t, info.HasRole("admin"))

	info, err = p.Validate(context.Background(), "user-42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", info.UserID)
	assert.False(t, info.HasRole("admin"))

	info, err = p.Validate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", info.UserID)
}

func TestAuthInfo_HasRole_NilReceiver(t *testing.T) {
	var info *AuthInfo
	assert.False(t, info.HasRole("admin"))
}
