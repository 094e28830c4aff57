package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/careerhub/internal/auth"
	"github.com/charlesng35/careerhub/internal/handlers"
	"github.com/charlesng35/careerhub/internal/middleware"
)

func registerWelcomeRoutes(r *gin.Engine, handler *handlers.WelcomeHandler, jwt *iauth.JWTService) {
	group := r.Group("/api/welcome")
	{
		group.GET("/status", handler.Status)
		group.POST("/bonus", middleware.Auth(jwt), handler.Bonus)
	}
}
