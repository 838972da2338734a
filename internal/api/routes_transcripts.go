package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/gateway"
	"github.com/credvault/credvault/internal/handlers"
	"github.com/credvault/credvault/internal/middleware"
	"github.com/credvault/credvault/internal/permissions"
)

func registerTranscriptRoutes(r *gin.Engine, api *gin.RouterGroup, db *gorm.DB, checker *permissions.Checker, gw *gateway.Gateway) error {
	transcriptHandler, err := handlers.NewTranscriptHandler(db, checker, gw)
	if err != nil {
		return err
	}

	r.GET("/transcripts/:seq", transcriptHandler.GetPublic)
	r.GET("/holders/:id/transcripts", transcriptHandler.ListByHolder)

	transcripts := api.Group("/transcripts")
	{
		transcripts.POST("", middleware.RequirePermission(checker, "credential.create"), transcriptHandler.Create)
		transcripts.POST("/:seq/verify", middleware.RequirePermission(checker, "credential.verify"), transcriptHandler.Verify)
		transcripts.GET("/:seq/handles", transcriptHandler.GetHandles)
	}

	return nil
}
