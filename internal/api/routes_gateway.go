package api

import (
	"github.com/gin-gonic/gin"

	"github.com/credvault/credvault/internal/gateway"
	"github.com/credvault/credvault/internal/handlers"
	"github.com/credvault/credvault/internal/middleware"
	"github.com/credvault/credvault/internal/permissions"
)

func registerGatewayRoutes(r *gin.Engine, api *gin.RouterGroup, checker *permissions.Checker, gw *gateway.Gateway) error {
	gatewayHandler, err := handlers.NewGatewayHandler(gw)
	if err != nil {
		return err
	}

	// Decrypt authorizations carry their own signature, so the endpoint is
	// public; the gateway key endpoint lets clients seal and verify locally.
	public := r.Group("/gateway")
	{
		public.GET("/key", gatewayHandler.Key)
		public.POST("/decrypt", gatewayHandler.Decrypt)
	}

	api.POST("/gateway/encrypt", middleware.RequirePermission(checker, "credential.create"), gatewayHandler.Encrypt)

	return nil
}
