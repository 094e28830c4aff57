package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/logger"
)

// Response is the envelope every API endpoint returns.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo is the client-facing part of an AppError.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries pagination details for list endpoints.
type Meta struct {
	Page       int  `json:"page,omitempty"`
	PerPage    int  `json:"per_page,omitempty"`
	Total      int  `json:"total,omitempty"`
	TotalPages int  `json:"total_pages,omitempty"`
	HasMore    bool `json:"has_more,omitempty"`
}

// NewMeta builds pagination metadata for a page window. Page and page size
// are clamped to at least one.
func NewMeta(page, perPage int, total int64) *Meta {
	page = max(page, 1)
	perPage = max(perPage, 1)

	pages := int(total / int64(perPage))
	if total%int64(perPage) != 0 {
		pages++
	}
	return &Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: pages,
		HasMore:    page < pages,
	}
}

// Success writes data in a success envelope.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

// SuccessWithMeta writes data and pagination metadata in a success envelope.
func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error writes err as a failure envelope. Server-side failures are logged with
// their internal cause, which never reaches the client.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}
	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		fields := []zap.Field{
			zap.String("route", routeOf(c)),
			zap.String("code", appErr.Code),
			zap.Error(err),
		}
		if c.Request != nil {
			fields = append(fields, zap.String("method", c.Request.Method))
		}
		if userID := c.GetString("userID"); userID != "" {
			fields = append(fields, logger.UserID(userID))
		}
		logger.WithModule("http").Error("request failed", fields...)
	}

	c.JSON(status, Response{Error: &ErrorInfo{Code: appErr.Code, Message: appErr.Message}})
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	if c.Request == nil {
		return ""
	}
	return c.Request.URL.Path
}
