package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/handlers"
	"github.com/credvault/credvault/internal/middleware"
	"github.com/credvault/credvault/internal/permissions"
)

func registerInstitutionRoutes(r *gin.Engine, api *gin.RouterGroup, db *gorm.DB, checker *permissions.Checker) error {
	institutionHandler, err := handlers.NewInstitutionHandler(db)
	if err != nil {
		return err
	}

	// The institution directory is public.
	public := r.Group("/institutions")
	{
		public.GET("", institutionHandler.List)
		public.GET("/:seq", institutionHandler.Get)
	}

	institutions := api.Group("/institutions")
	{
		institutions.POST("", middleware.RequirePermission(checker, "institution.register"), institutionHandler.Register)
		institutions.PATCH("/:seq", middleware.RequirePermission(checker, "institution.manage"), institutionHandler.SetStatus)
	}

	return nil
}
