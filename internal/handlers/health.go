package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/pkg/response"
)

// Health returns a status payload useful for readiness checks. When a
// database handle is supplied the connection is pinged as part of the check.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(requestContext(c)) != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "degraded"})
				return
			}
		}

		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
