// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires handlers onto the Gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kuberahq/kubera/pkg/extensions"
	"github.com/kuberahq/kubera/services/chat/handlers"
	"github.com/kuberahq/kubera/services/chat/middleware"
)

// Deps bundles everything the router needs.
type Deps struct {
	Chat         *handlers.ChatHandler
	Health       *handlers.HealthHandler
	Admin        *handlers.AdminHandler
	AuthProvider extensions.AuthProvider
}

// Setup registers all routes. The websocket endpoint lives under /v1
// behind auth; admin endpoints additionally require the admin role.
func Setup(router *gin.Engine, deps Deps) {
	router.Use(otelgin.Middleware("kubera-chat"))

	router.GET("/health", deps.Health.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(deps.AuthProvider))
	{
		v1.GET("/chat/ws", deps.Chat.HandleWS)
	}

	admin := router.Group("/v1/admin")
	admin.Use(middleware.Auth(deps.AuthProvider), middleware.RequireRole("admin"))
	{
		admin.PUT("/limits", deps.Admin.HandleSetDefaults)
		admin.PUT("/users/:user_id/limits", deps.Admin.HandleSetUserLimits)
		admin.DELETE("/users/:user_id/limits", deps.Admin.HandleClearUserLimits)
		admin.POST("/users/:user_id/whitelist", deps.Admin.HandleWhitelist)
		admin.DELETE("/users/:user_id/whitelist", deps.Admin.HandleUnwhitelist)
		admin.POST("/users/:user_id/reset", deps.Admin.HandleResetUser)
		admin.POST("/users/:user_id/disconnect", deps.Admin.HandleDisconnectUser)
		admin.GET("/violations", deps.Admin.HandleViolations)
		admin.GET("/connections", deps.Admin.HandleConnections)
	}
}
