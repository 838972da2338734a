package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/credvault/credvault/internal/middleware"
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

// identityID returns the authenticated identity from the request, or "" when
// the route is unauthenticated.
func identityID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Get(middleware.CtxIdentityKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
