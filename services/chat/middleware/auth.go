// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides the HTTP middleware of the chat service.
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it through the configured AuthProvider, and stores
// the resulting AuthInfo in the Gin context for handlers. Websocket
// clients that cannot set headers may pass the token as an
// access_token query parameter instead.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kuberahq/kubera/pkg/extensions"
)

// authInfoKey is the Gin context key for the authenticated identity.
const authInfoKey = "kubera_auth_info"

// SetAuthInfo stores the authenticated identity in the Gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated identity, or nil when the
// request did not pass the auth middleware.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if v, exists := c.Get(authInfoKey); exists {
		if info, ok := v.(*extensions.AuthInfo); ok {
			return info
		}
	}
	return nil
}

// Auth authenticates every request through the provider and aborts
// with 401 on failure.
func Auth(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)

		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}

		SetAuthInfo(c, info)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated identity
// carries the role. Must run after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetAuthInfo(c).HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// extractToken pulls the bearer token from the Authorization header,
// falling back to the access_token query parameter for websockets.
// The Bearer prefix is case-insensitive per RFC 7235.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("access_token")
}
