package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/gateway"
	"github.com/credvault/credvault/internal/handlers"
	"github.com/credvault/credvault/internal/middleware"
	"github.com/credvault/credvault/internal/permissions"
)

func registerCredentialRoutes(r *gin.Engine, api *gin.RouterGroup, db *gorm.DB, checker *permissions.Checker, gw *gateway.Gateway) error {
	credentialHandler, err := handlers.NewCredentialHandler(db, checker, gw)
	if err != nil {
		return err
	}

	// Public projections: any verifier may look up a credential by its
	// sequential identifier or enumerate a holder's records.
	r.GET("/credentials/:seq", credentialHandler.GetPublic)
	r.GET("/holders/:id/credentials", credentialHandler.ListByHolder)

	credentials := api.Group("/credentials")
	{
		credentials.POST("", middleware.RequirePermission(checker, "credential.create"), credentialHandler.Create)
		credentials.POST("/:seq/verify", middleware.RequirePermission(checker, "credential.verify"), credentialHandler.Verify)
		// Handle access is decided per record: university admins of the
		// issuing institution, global admins, and the holder itself when a
		// decryption capability is registered.
		credentials.GET("/:seq/handles", credentialHandler.GetHandles)
	}

	return nil
}
