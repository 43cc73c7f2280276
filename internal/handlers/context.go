package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/consultportal/portal/internal/middleware"
	"github.com/consultportal/portal/pkg/errors"
	"github.com/consultportal/portal/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUser returns the authenticated caller, writing a 401 when absent.
func currentUser(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
