// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kuberahq/kubera/services/chat/session"
)

// HealthHandler serves liveness and a connection snapshot.
type HealthHandler struct {
	manager *session.Manager
}

func NewHealthHandler(manager *session.Manager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

func (h *HealthHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"service":            "chat",
		"active_connections": h.manager.TotalConnections(),
		"connected_users":    len(h.manager.ConnectedUsers()),
	})
}
