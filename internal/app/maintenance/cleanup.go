package maintenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/onboarding"
	"github.com/charlesng35/careerhub/pkg/logger"
)

const (
	defaultSweepSpec    = "@every 5m"
	defaultPurgeSpec    = "@hourly"
	defaultProgressSpec = "@daily"
)

// Sweeper runs one onboarding sweep pass.
type Sweeper interface {
	Sweep(ctx context.Context) (onboarding.SweepReport, error)
}

// Purger removes expired cache entries.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background jobs: the onboarding sweep, expired cache
// purging, and removal of progress rows left behind by deleted users.
type Cleaner struct {
	db      *gorm.DB
	sweeper Sweeper
	purger  Purger
	cron    *cron.Cron
	log     *zap.Logger
	enabled bool

	sweepSchedule    string
	purgeSchedule    string
	progressSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSweepSchedule overrides the cron specification for the onboarding sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron specification for cache purging.
func WithPurgeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.purgeSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the
// corresponding job being skipped.
func NewCleaner(db *gorm.DB, sweeper Sweeper, purger Purger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:               db,
		sweeper:          sweeper,
		purger:           purger,
		sweepSchedule:    defaultSweepSpec,
		purgeSchedule:    defaultPurgeSpec,
		progressSchedule: defaultProgressSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sweeper != nil || cleaner.purger != nil || cleaner.db != nil
	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sweeper != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			report, err := c.sweeper.Sweep(context.Background())
			if err != nil {
				c.log.Warn("onboarding sweep failed", zap.Error(err))
				return
			}
			c.log.Debug("onboarding sweep complete",
				zap.Int("welcomes_scheduled", report.WelcomesScheduled),
				zap.Int("claims_recovered", report.ClaimsRecovered),
				zap.Int("users_advanced", report.UsersAdvanced),
			)
		}); err != nil {
			return err
		}
	}

	if c.purger != nil {
		if _, err := c.cron.AddFunc(c.purgeSchedule, func() {
			if _, err := c.purger.PurgeExpired(context.Background()); err != nil {
				c.log.Warn("cache purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.progressSchedule, func() {
			if _, err := CleanupOrphanedProgress(context.Background(), c.db); err != nil {
				c.log.Warn("progress cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// Entries reports how many jobs are registered with the scheduler.
func (c *Cleaner) Entries() int {
	return len(c.cron.Entries())
}

// RunOnce executes every configured job sequentially. Used by tests and the
// operator CLI.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sweeper != nil {
		if _, err := c.sweeper.Sweep(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.purger != nil {
		if _, err := c.purger.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := CleanupOrphanedProgress(ctx, c.db); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupOrphanedProgress removes onboarding progress for users that no longer
// exist or were soft-deleted.
func CleanupOrphanedProgress(ctx context.Context, db *gorm.DB) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup progress: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	live := db.Model(&models.User{}).Select("id")
	result := db.WithContext(ctx).
		Where("user_id NOT IN (?)", live).
		Delete(&models.OnboardingProgress{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup progress: %w", result.Error)
	}
	return result.RowsAffected, nil
}
