// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"stockledger/internal/app"
	"stockledger/internal/core/idempotency"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Ledger provides the domain services.
	Ledger *app.Ledger

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator enables bearer authentication. Nil leaves the API open and
	// movements are attributed to the system actor.
	JWTValidator middleware.JWTValidator

	// IdempotencyStore enables X-Idempotency-Key handling when set.
	IdempotencyStore idempotency.Store

	// HealthChecks are run by /health/ready.
	HealthChecks map[string]handlers.Check

	// ServiceName names the otel server spans. Empty disables gin tracing.
	ServiceName string

	Version string

	// Development switches gin to debug mode.
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	if cfg.ServiceName != "" {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Version, cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	api := router.Group("/api/v1")
	if cfg.JWTValidator != nil {
		api.Use(middleware.AuthWrites(cfg.JWTValidator))
	}
	// Idempotency runs after auth so keys are scoped to the caller.
	if cfg.IdempotencyStore != nil {
		api.Use(middleware.Idempotency(cfg.IdempotencyStore))
	}

	base := handlers.NewBaseHandler()
	l := cfg.Ledger

	Mount(api, "/stock",
		handlers.NewStockHandler(base, l.Store, l.Log),
		handlers.NewInventoryHandler(base, l.Inventory),
	)
	Mount(api, "/reservations", handlers.NewReservationHandler(base, l.Reservations))
	Mount(api, "/alerts", handlers.NewAlertHandler(base, l.Alerts))

	return router
}
