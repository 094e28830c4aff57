package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks map[string]HealthCheck
}

// CheckResult is the outcome of a single probe.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// NewHealthHandler builds a handler over named readiness checks. Nil checks are skipped.
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	h := &HealthHandler{checks: make(map[string]HealthCheck, len(checks))}
	for name, check := range checks {
		if check != nil {
			h.checks[name] = check
		}
	}
	return h
}

// Live reports that the process is serving requests.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"status":     "ok",
		"checked_at": time.Now().UTC(),
	})
}

// Ready runs every check and answers 503 when any of them fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	results, healthy := h.evaluate(c.Request.Context())
	status, state := http.StatusOK, "ok"
	if !healthy {
		status, state = http.StatusServiceUnavailable, "degraded"
	}
	c.JSON(status, gin.H{
		"success":    healthy,
		"status":     state,
		"checks":     results,
		"checked_at": time.Now().UTC(),
	})
}

func (h *HealthHandler) evaluate(ctx context.Context) (map[string]CheckResult, bool) {
	results := make(map[string]CheckResult, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		started := time.Now()
		err := check(checkCtx)
		cancel()

		result := CheckResult{Status: "ok", Duration: time.Since(started).Round(time.Microsecond).String()}
		if err != nil {
			healthy = false
			result.Status = "down"
			result.Error = err.Error()
		}
		results[name] = result
	}
	return results, healthy
}
