package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/careerhub/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, checks map[string]handlers.HealthCheck) {
	health := handlers.NewHealthHandler(checks)
	for _, group := range []gin.IRouter{r, r.Group("/api")} {
		group.GET("/health", health.Ready)
		group.GET("/health/live", health.Live)
		group.GET("/health/ready", health.Ready)
	}
}
