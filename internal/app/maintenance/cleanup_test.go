package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/cache"
	testutil "github.com/charlesng35/careerhub/internal/database/testutil"
	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/onboarding"
)

type stubSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *stubSweeper) Sweep(context.Context) (onboarding.SweepReport, error) {
	s.calls.Add(1)
	return onboarding.SweepReport{WelcomesScheduled: 1}, s.err
}

func TestCleanupOrphanedProgress(t *testing.T) {
	db := testutil.NewDB(t)

	kept := seedUser(t, db, "kept")
	removed := seedUser(t, db, "removed")
	for _, id := range []string{kept.ID, removed.ID, "never-existed"} {
		require.NoError(t, db.Create(&models.OnboardingProgress{UserID: id}).Error)
	}
	require.NoError(t, db.Delete(removed).Error)

	deleted, err := CleanupOrphanedProgress(context.Background(), db)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var remaining []models.OnboardingProgress
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, kept.ID, remaining[0].UserID)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.NewDB(t)
	store := cache.NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "welcome:status:u1", []byte("{}"), time.Nanosecond))
	time.Sleep(time.Millisecond)
	require.NoError(t, db.Create(&models.OnboardingProgress{UserID: "ghost"}).Error)

	sweeper := &stubSweeper{}
	c := NewCleaner(db, sweeper, store, WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))))
	require.NoError(t, c.RunOnce(ctx))

	require.EqualValues(t, 1, sweeper.calls.Load())

	var entries int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&entries).Error)
	require.Zero(t, entries)

	var progress int64
	require.NoError(t, db.Model(&models.OnboardingProgress{}).Count(&progress).Error)
	require.Zero(t, progress)
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("sweep failed")}
	c := NewCleaner(nil, sweeper, nil)

	err := c.RunOnce(context.Background())
	require.ErrorContains(t, err, "sweep failed")
}

func TestCleanerStartRegistersEnabledJobs(t *testing.T) {
	db := testutil.NewDB(t)

	c := NewCleaner(db, &stubSweeper{}, cache.NewDatabaseStore(db), WithSweepSchedule("@every 1h"))
	require.NoError(t, c.Start())
	t.Cleanup(func() { <-c.Stop().Done() })
	require.Equal(t, 3, c.Entries())

	bad := NewCleaner(nil, &stubSweeper{}, nil, WithSweepSchedule("not a schedule"))
	require.Error(t, bad.Start())

	idle := NewCleaner(nil, nil, nil)
	require.NoError(t, idle.Start())
	require.Zero(t, idle.Entries())
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
