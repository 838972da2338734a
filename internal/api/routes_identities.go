package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/handlers"
	"github.com/credvault/credvault/internal/middleware"
	"github.com/credvault/credvault/internal/permissions"
)

func registerIdentityRoutes(r *gin.Engine, api *gin.RouterGroup, db *gorm.DB, checker *permissions.Checker) error {
	identityHandler, err := handlers.NewIdentityHandler(db)
	if err != nil {
		return err
	}

	// Role queries are public so verifiers can resolve issuer status.
	public := r.Group("/identities")
	{
		public.GET("/:id/is-admin", identityHandler.IsAdmin)
		public.GET("/:id/is-university-admin", identityHandler.IsUniversityAdmin)
	}

	identities := api.Group("/identities")
	{
		identities.POST("", middleware.RequirePermission(checker, "identity.register"), identityHandler.Register)
		identities.GET("", middleware.RequirePermission(checker, "identity.register"), identityHandler.List)
		identities.GET("/:id", middleware.RequirePermission(checker, "identity.register"), identityHandler.Get)
		identities.PUT("/:id/admin", middleware.RequirePermission(checker, "role.grant"), identityHandler.SetAdmin)
		identities.PUT("/:id/university-admin", middleware.RequirePermission(checker, "role.grant"), identityHandler.SetUniversityAdmin)
		identities.PUT("/:id/active", middleware.RequirePermission(checker, "role.grant"), identityHandler.SetActive)
	}

	// Any authenticated identity may register its own decryption capability.
	api.PUT("/profile/decrypt-key", identityHandler.SetDecryptKey)

	return nil
}
