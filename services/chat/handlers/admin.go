// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kuberahq/kubera/services/chat/datatypes"
	"github.com/kuberahq/kubera/services/chat/ratelimit"
	"github.com/kuberahq/kubera/services/chat/session"
)

// AdminHandler serves the operator surface: limit policy, whitelist,
// counter resets, violation history, and connection inspection.
type AdminHandler struct {
	limiter    *ratelimit.Service
	policy     *ratelimit.PolicyStore
	violations ratelimit.ViolationReader
	manager    *session.Manager
	logger     *slog.Logger
}

func NewAdminHandler(limiter *ratelimit.Service, policy *ratelimit.PolicyStore, violations ratelimit.ViolationReader, manager *session.Manager, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		limiter:    limiter,
		policy:     policy,
		violations: violations,
		manager:    manager,
		logger:     logger,
	}
}

// limitsRequest is the payload for default and per-user limit updates.
type limitsRequest struct {
	Burst           int `json:"burst_per_minute" binding:"required,min=1"`
	PerConversation int `json:"per_conversation" binding:"required,min=1"`
	Hourly          int `json:"hourly" binding:"required,min=1"`
	Daily           int `json:"daily" binding:"required,min=1"`
}

func (r limitsRequest) toLimits() datatypes.Limits {
	return datatypes.Limits{
		Burst:           r.Burst,
		PerConversation: r.PerConversation,
		Hourly:          r.Hourly,
		Daily:           r.Daily,
	}
}

// HandleSetDefaults replaces the global limits.
func (h *AdminHandler) HandleSetDefaults(c *gin.Context) {
	var req limitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.policy.SetDefaults(req.toLimits())
	h.logger.Info("global rate limits updated", "limits", req)
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// HandleSetUserLimits pins per-user limits.
func (h *AdminHandler) HandleSetUserLimits(c *gin.Context) {
	userID := c.Param("user_id")
	var req limitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.policy.SetOverride(userID, req.toLimits())
	h.logger.Info("user rate limit override set", "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"status": "updated", "user_id": userID})
}

// HandleClearUserLimits restores a user to the defaults.
func (h *AdminHandler) HandleClearUserLimits(c *gin.Context) {
	userID := c.Param("user_id")
	h.policy.ClearOverride(userID)
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "user_id": userID})
}

// HandleWhitelist adds a user to the admission whitelist.
func (h *AdminHandler) HandleWhitelist(c *gin.Context) {
	userID := c.Param("user_id")
	h.policy.AddWhitelist(userID)
	h.logger.Info("user whitelisted", "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"status": "whitelisted", "user_id": userID})
}

// HandleUnwhitelist removes a user from the whitelist.
func (h *AdminHandler) HandleUnwhitelist(c *gin.Context) {
	userID := c.Param("user_id")
	h.policy.RemoveWhitelist(userID)
	c.JSON(http.StatusOK, gin.H{"status": "removed", "user_id": userID})
}

// HandleResetUser clears a user's windowed counters.
func (h *AdminHandler) HandleResetUser(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.limiter.ResetUser(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "user_id": userID})
}

// HandleViolations lists recent rate limit violations, optionally
// filtered by user.
func (h *AdminHandler) HandleViolations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	violations, err := h.violations.Recent(c.Request.Context(), c.Query("user_id"), limit)
	if err != nil {
		h.logger.Error("failed to load violations", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"violations": violations, "count": len(violations)})
}

// HandleConnections reports live connection counts.
func (h *AdminHandler) HandleConnections(c *gin.Context) {
	users := h.manager.ConnectedUsers()
	perUser := make(map[string]int, len(users))
	for _, user := range users {
		perUser[user] = h.manager.ConnectionCount(user)
	}
	c.JSON(http.StatusOK, gin.H{
		"total":    h.manager.TotalConnections(),
		"per_user": perUser,
	})
}

// HandleDisconnectUser force-closes every session of a user.
func (h *AdminHandler) HandleDisconnectUser(c *gin.Context) {
	userID := c.Param("user_id")
	closed := h.manager.CloseUser(userID)
	h.logger.Info("user sessions closed by operator", "user_id", userID, "closed", closed)
	c.JSON(http.StatusOK, gin.H{"status": "disconnected", "user_id": userID, "closed": closed})
}
