package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/app"
	iauth "github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/gateway"
	"github.com/credvault/credvault/internal/middleware"
	"github.com/credvault/credvault/internal/permissions"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, challenges *iauth.ChallengeService, gw *gateway.Gateway, cfg *app.Config, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if challenges == nil {
		return nil, fmt.Errorf("challenge service must be provided")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	store, err := permissions.NewGormStore(db)
	if err != nil {
		return nil, err
	}
	checker, err := permissions.NewChecker(store)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	if cfg.Server.RateLimit.Enabled {
		r.Use(middleware.RateLimit(rateStore, cfg.Server.RateLimit.MaxRequests, cfg.Server.RateLimit.Window))
	}

	registerHealthRoutes(r, db, cfg)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	if err := registerAuthRoutes(r, api, db, challenges, jwt); err != nil {
		return nil, err
	}
	if err := registerIdentityRoutes(r, api, db, checker); err != nil {
		return nil, err
	}
	if err := registerInstitutionRoutes(r, api, db, checker); err != nil {
		return nil, err
	}
	if err := registerCredentialRoutes(r, api, db, checker, gw); err != nil {
		return nil, err
	}
	if err := registerTranscriptRoutes(r, api, db, checker, gw); err != nil {
		return nil, err
	}
	if err := registerGatewayRoutes(r, api, checker, gw); err != nil {
		return nil, err
	}
	if err := registerAuditRoutes(api, db, checker); err != nil {
		return nil, err
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
