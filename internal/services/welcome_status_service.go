package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/charlesng35/careerhub/internal/cache"
	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/pkg/logger"
	"github.com/charlesng35/careerhub/pkg/metrics"
)

const (
	welcomeStatusKeyPrefix = "welcome:status:"
	welcomeRateKeyPrefix   = "welcome:rate:"
)

// WelcomeStatusConfig controls the status cache lifetime and request spacing.
type WelcomeStatusConfig struct {
	StatusTTL   time.Duration
	MinInterval time.Duration
}

// WelcomeStatus answers whether the welcome experience should be shown.
type WelcomeStatus struct {
	ShouldShowWelcome bool      `json:"should_show_welcome"`
	HasReceived       bool      `json:"has_received"`
	UserName          string    `json:"user_name"`
	UserID            string    `json:"user_id"`
	Timestamp         time.Time `json:"timestamp"`
	RateLimited       bool      `json:"rate_limited"`
}

// BonusChecker reports whether a user already holds the welcome bonus.
type BonusChecker interface {
	HasBonus(ctx context.Context, userID string) (bool, error)
}

// UserLookup loads a user profile.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// WelcomeStatusService fronts welcome status lookups with a short-lived cache
// and a per-user minimum request interval. Cached answers are advisory only;
// the ledger re-checks durable storage before any grant.
type WelcomeStatusService struct {
	ledger BonusChecker
	users  UserLookup
	store  cache.Store
	cfg    WelcomeStatusConfig
	now    func() time.Time
	group  singleflight.Group
	log    *zap.Logger
}

// WelcomeStatusOption customises the WelcomeStatusService.
type WelcomeStatusOption func(*WelcomeStatusService)

// WithWelcomeClock overrides the clock stamped on status answers.
func WithWelcomeClock(now func() time.Time) WelcomeStatusOption {
	return func(s *WelcomeStatusService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewWelcomeStatusService constructs a WelcomeStatusService.
func NewWelcomeStatusService(ledger BonusChecker, users UserLookup, store cache.Store, cfg WelcomeStatusConfig, opts ...WelcomeStatusOption) (*WelcomeStatusService, error) {
	if ledger == nil || users == nil {
		return nil, errors.New("welcome status service: ledger and user lookup are required")
	}
	if store == nil {
		return nil, errors.New("welcome status service: cache store is required")
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 5 * time.Minute
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 30 * time.Second
	}
	svc := &WelcomeStatusService{
		ledger: ledger,
		users:  users,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		log:    logger.WithModule("welcome"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckStatus returns the user's welcome status. Calls closer together than
// MinInterval are answered from cache, or with a conservative default when
// nothing is cached, and flagged RateLimited.
func (s *WelcomeStatusService) CheckStatus(ctx context.Context, userID string) (WelcomeStatus, error) {
	ctx = ensureContext(ctx)

	if s.rateLimited(ctx, userID) {
		if cached, ok := s.cached(ctx, userID); ok {
			metrics.WelcomeStatusLookups.WithLabelValues("rate_limited").Inc()
			cached.RateLimited = true
			return cached, nil
		}
		metrics.WelcomeStatusLookups.WithLabelValues("default").Inc()
		return WelcomeStatus{
			UserID:      userID,
			Timestamp:   s.now().UTC(),
			RateLimited: true,
		}, nil
	}

	value, err, _ := s.group.Do(userID, func() (any, error) {
		return s.lookup(ctx, userID)
	})
	if err != nil {
		return WelcomeStatus{}, err
	}
	metrics.WelcomeStatusLookups.WithLabelValues("ledger").Inc()
	return value.(WelcomeStatus), nil
}

// Invalidate drops the cached status, typically after a claim.
func (s *WelcomeStatusService) Invalidate(ctx context.Context, userID string) {
	if err := s.store.Delete(ensureContext(ctx), welcomeStatusKeyPrefix+userID); err != nil {
		s.log.Warn("welcome status invalidation failed", logger.UserID(userID), zap.Error(err))
	}
}

func (s *WelcomeStatusService) lookup(ctx context.Context, userID string) (WelcomeStatus, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return WelcomeStatus{}, err
	}

	received, err := s.ledger.HasBonus(ctx, userID)
	if err != nil {
		return WelcomeStatus{}, err
	}

	status := WelcomeStatus{
		ShouldShowWelcome: !received,
		HasReceived:       received,
		UserName:          user.Username,
		UserID:            user.ID,
		Timestamp:         s.now().UTC(),
	}

	if encoded, err := json.Marshal(status); err == nil {
		if err := s.store.Set(ctx, welcomeStatusKeyPrefix+userID, encoded, s.cfg.StatusTTL); err != nil {
			s.log.Warn("welcome status cache write failed", logger.UserID(userID), zap.Error(err))
		}
	}
	return status, nil
}

func (s *WelcomeStatusService) cached(ctx context.Context, userID string) (WelcomeStatus, bool) {
	raw, ok, err := s.store.Get(ctx, welcomeStatusKeyPrefix+userID)
	if err != nil {
		s.log.Warn("welcome status cache read failed", logger.UserID(userID), zap.Error(err))
		return WelcomeStatus{}, false
	}
	if !ok {
		return WelcomeStatus{}, false
	}
	var status WelcomeStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return WelcomeStatus{}, false
	}
	return status, true
}

// rateLimited counts the request in a fixed MinInterval window. Store failures
// let the request through to the ledger.
func (s *WelcomeStatusService) rateLimited(ctx context.Context, userID string) bool {
	count, _, err := s.store.IncrementWithTTL(ctx, welcomeRateKeyPrefix+userID, s.cfg.MinInterval)
	if err != nil {
		s.log.Warn("welcome rate window unavailable", logger.UserID(userID), zap.Error(err))
		return false
	}
	return count > 1
}
