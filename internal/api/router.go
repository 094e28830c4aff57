package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/app"
	iauth "github.com/charlesng35/careerhub/internal/auth"
	"github.com/charlesng35/careerhub/internal/database"
	"github.com/charlesng35/careerhub/internal/handlers"
	"github.com/charlesng35/careerhub/internal/middleware"
	"github.com/charlesng35/careerhub/internal/realtime"
)

// Dependencies bundles the services the HTTP surface is built on.
type Dependencies struct {
	DB            *gorm.DB
	JWT           *iauth.JWTService
	Notifications handlers.NotificationStore
	Settings      handlers.SettingsStore
	WelcomeStatus handlers.WelcomeStatusChecker
	Claimer       handlers.BonusClaimer
	Hub           *realtime.Hub
	RateStore     middleware.RateStore
	// HealthChecks are extra readiness probes; the database is always checked.
	HealthChecks  map[string]handlers.HealthCheck
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	if limit := cfg.Server.RateLimit; limit.Enabled && deps.RateStore != nil {
		r.Use(middleware.RateLimit(deps.RateStore, limit.Requests, limit.Window))
	}

	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(ctx, deps.DB) },
	}
	for name, check := range deps.HealthChecks {
		checks[name] = check
	}
	registerHealthRoutes(r, checks)

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications, deps.Settings, deps.Hub)
	if err != nil {
		return nil, err
	}
	registerNotificationRoutes(r, notificationHandler, deps.JWT)

	welcomeHandler, err := handlers.NewWelcomeHandler(deps.Claimer, deps.WelcomeStatus)
	if err != nil {
		return nil, err
	}
	registerWelcomeRoutes(r, welcomeHandler, deps.JWT)

	if prom := cfg.Monitoring.Prometheus; prom.Enabled {
		endpoint := strings.TrimSpace(prom.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
