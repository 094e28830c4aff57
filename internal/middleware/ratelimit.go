package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/careerhub/internal/cache"
	"github.com/charlesng35/careerhub/pkg/errors"
	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/response"
)

const rateKeyPrefix = "ratelimit:"

// RateStore counts hits for a key within a fixed window and reports the time
// left until the window resets.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type cacheRateStore struct {
	store cache.Store
}

// NewRateStore keeps rate counters in a cache.Store, so limits are shared by
// every instance using the same database or Redis.
func NewRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return cacheRateStore{store: store}
}

func (s cacheRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	count, ttl, err := s.store.IncrementWithTTL(ctx, rateKeyPrefix+key, window)
	return int(count), ttl, err
}

// RateLimit allows maxRequests per client IP and route in each window. When
// the store fails the request is let through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	if store == nil || maxRequests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limit := strconv.Itoa(maxRequests)
	log := logger.WithModule("http")

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		count, resetIn, err := store.Increment(c.Request.Context(), c.ClientIP()+"|"+route, window)
		if err != nil {
			log.Warn("rate limit store unavailable", zap.String("route", route), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxRequests-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Round(time.Second).Seconds())))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(max(1, int(resetIn.Round(time.Second).Seconds()))))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}
		c.Next()
	}
}
