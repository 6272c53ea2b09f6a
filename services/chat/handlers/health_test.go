// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuberahq/kubera/services/chat/session"
)

func TestHandleHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := session.NewManager()
	manager.Register(session.New("u1", &nopConn{}, nil, nil, nil, nil))
	manager.Register(session.New("u1", &nopConn{}, nil, nil, nil, nil))
	manager.Register(session.New("u2", &nopConn{}, nil, nil, nil, nil))

	router := gin.New()
	router.GET("/health", NewHealthHandler(manager).HandleHealth)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status            string `json:"status"`
		Service           string `json:"service"`
		ActiveConnections int    `json:"active_connections"`
		ConnectedUsers    int    `json:"connected_users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "chat", resp.Service)
	assert.Equal(t, 3, resp.ActiveConnections)
	assert.Equal(t, 2, resp.ConnectedUsers)
}
