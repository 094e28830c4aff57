package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/careerhub/internal/middleware"
	appErrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/response"
)

// requestContext returns the request context, or Background when the gin
// context carries no request (handler unit tests).
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// authenticatedUserID returns the user resolved by the auth middleware. When
// none is present it writes a 401 and reports false.
func authenticatedUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
