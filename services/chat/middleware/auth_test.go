// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kuberahq/kubera/pkg/extensions"
)

func newAuthRouter(provider extensions.AuthProvider, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{Auth(provider)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		info := GetAuthInfo(c)
		c.JSON(http.StatusOK, gin.H{"user_id": info.UserID})
	})
	router.GET("/protected", handlers...)
	return router
}

func TestAuth_NopProviderAcceptsBareRequests(t *testing.T) {
	router := newAuthRouter(&extensions.NopAuthProvider{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "local-user")
}

func TestAuth_StaticProvider(t *testing.T) {
	provider := extensions.NewStaticTokenProvider(map[string]extensions.AuthInfo{
		"good": {UserID: "alice", Roles: []string{"analyst"}},
	})
	router := newAuthRouter(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_QueryParamFallback(t *testing.T) {
	provider := extensions.NewStaticTokenProvider(map[string]extensions.AuthInfo{
		"ws-token": {UserID: "bob"},
	})
	router := newAuthRouter(provider)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected?access_token=ws-token", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bob")
}

func TestRequireRole(t *testing.T) {
	provider := extensions.NewStaticTokenProvider(map[string]extensions.AuthInfo{
		"admin-tok":   {UserID: "ops", Roles: []string{"admin"}},
		"analyst-tok": {UserID: "ana", Roles: []string{"analyst"}},
	})
	router := newAuthRouter(provider, RequireRole("admin"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer admin-tok")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer analyst-tok")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
