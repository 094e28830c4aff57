package middleware

import (
	stdErrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/response"
)

// Recovery turns a handler panic into the standard 500 envelope. The panic
// value and stack are logged; neither reaches the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			// net/http uses this sentinel to abort a response silently.
			if err, ok := rec.(error); ok && stdErrors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			}
			if userID := c.GetString(CtxUserIDKey); userID != "" {
				fields = append(fields, logger.UserID(userID))
			}
			logger.WithModule("http").Error("handler panicked", fields...)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Success: false,
				Error: &response.ErrorInfo{
					Code:    errors.ErrInternalServer.Code,
					Message: errors.ErrInternalServer.Message,
				},
			})
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the JSON envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.New("ROUTE_NOT_FOUND", fmt.Sprintf("route %s not found", c.Request.URL.Path), http.StatusNotFound))
}
