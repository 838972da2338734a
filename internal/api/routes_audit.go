package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/handlers"
	"github.com/credvault/credvault/internal/middleware"
	"github.com/credvault/credvault/internal/permissions"
)

func registerAuditRoutes(api *gin.RouterGroup, db *gorm.DB, checker *permissions.Checker) error {
	auditHandler, err := handlers.NewAuditHandler(db)
	if err != nil {
		return err
	}

	api.GET("/audit", middleware.RequirePermission(checker, "audit.view"), auditHandler.List)

	return nil
}
