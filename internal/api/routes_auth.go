package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/handlers"
)

func registerAuthRoutes(r *gin.Engine, api *gin.RouterGroup, db *gorm.DB, challenges *iauth.ChallengeService, jwt *iauth.JWTService) error {
	authHandler, err := handlers.NewAuthHandler(db, challenges, jwt)
	if err != nil {
		return err
	}

	// Challenge and login are unauthenticated: they bootstrap the session.
	auth := r.Group("/api/auth")
	{
		auth.POST("/challenge", authHandler.Challenge)
		auth.POST("/login", authHandler.Login)
	}

	api.GET("/auth/me", authHandler.Me)

	return nil
}
