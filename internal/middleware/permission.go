package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/credvault/credvault/internal/permissions"
	"github.com/credvault/credvault/pkg/errors"
	"github.com/credvault/credvault/pkg/metrics"
	"github.com/credvault/credvault/pkg/response"
)

// RequirePermission checks that the authenticated identity has the provided permission ID.
func RequirePermission(checker *permissions.Checker, permissionID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxIdentityKey)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		identityID, _ := v.(string)
		allowed, err := checker.Check(c.Request.Context(), identityID, permissionID)
		if err != nil {
			// Internal error while checking permissions
			metrics.PermissionChecks.WithLabelValues(permissionID, "error").Inc()
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": gin.H{"code": errors.ErrInternalServer.Code, "message": "permission check failed"}})
			return
		}
		if !allowed {
			metrics.PermissionChecks.WithLabelValues(permissionID, "denied").Inc()
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		metrics.PermissionChecks.WithLabelValues(permissionID, "allowed").Inc()
		c.Next()
	}
}
