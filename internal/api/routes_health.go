package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/app"
	"github.com/credvault/credvault/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, cfg *app.Config) {
	if cfg != nil && !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		return
	}
	r.GET("/health", handlers.Health(db))
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
