package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/careerhub/internal/auth"
	"github.com/charlesng35/careerhub/internal/handlers"
	"github.com/charlesng35/careerhub/internal/middleware"
)

func registerNotificationRoutes(r *gin.Engine, handler *handlers.NotificationHandler, jwt *iauth.JWTService) {
	// WebSocket clients may only be able to pass the token as a query parameter.
	r.GET("/api/notifications/stream", middleware.StreamAuth(jwt), handler.Stream)

	group := r.Group("/api/notifications", middleware.Auth(jwt))
	{
		group.GET("", handler.List)
		group.GET("/stats", handler.Stats)
		group.GET("/settings", handler.GetSettings)
		group.PUT("/settings", handler.UpdateSettings)
		group.POST("/read-all", handler.MarkAllRead)
		group.PUT("/:id/read", handler.MarkRead)
		group.DELETE("/clear/all", handler.ClearAll)
		group.DELETE("/:id", handler.Delete)
	}
}
