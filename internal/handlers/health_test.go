package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	redisErr := errors.New("connection refused")
	redisDown := false
	h := NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			if redisDown {
				return redisErr
			}
			return nil
		},
		"skipped": nil,
	})

	r := gin.New()
	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)

	probe := func(path string) (int, map[string]any) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w.Code, body
	}

	code, body := probe("/health/ready")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
	require.Len(t, body["checks"], 2)

	redisDown = true
	code, body = probe("/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	redis := checks["redis"].(map[string]any)
	require.Equal(t, "down", redis["status"])
	require.Equal(t, "connection refused", redis["error"])

	code, body = probe("/health/live")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["success"])
}
