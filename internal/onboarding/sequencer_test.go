package onboarding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/notifications"
)

var stageOrder = []string{
	notifications.TemplateWelcome,
	notifications.TemplateBonusAwarded,
	notifications.TemplateFeatureIntro,
	notifications.TemplateTips,
}

func TestClaimDeliversStagesInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ada", "en", f.clock.Now())
	claimedAt := f.clock.Now()

	result, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, result.Granted)
	require.EqualValues(t, 100, result.Amount)
	require.Equal(t, "ada", result.UserName)
	require.Equal(t, 3, f.scheduler.Pending())

	f.scheduler.RunAll(t)

	rows := f.notificationsFor(t, user.ID)
	require.Equal(t, stageOrder, notificationTypes(rows))
	require.False(t, rows[1].CreatedAt.Before(claimedAt))
	require.False(t, rows[2].CreatedAt.Before(claimedAt.Add(30*time.Second)))
	require.False(t, rows[3].CreatedAt.Before(claimedAt.Add(120*time.Second)))
	require.Equal(t, "You received 100 coins", rows[1].Title)
	require.Contains(t, rows[0].Title, "ada")

	decoded, err := notifications.Decode(rows[1].Data)
	require.NoError(t, err)
	bonus, ok := decoded.(notifications.BonusAwardedPayload)
	require.True(t, ok)
	require.EqualValues(t, 100, bonus.Amount)

	status, err := f.seq.Status(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, StateTipsNotified, status.State)
	require.True(t, status.State.Terminal())
	require.Empty(t, status.NextStage)

	balance, err := f.ledger.Balance(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100, balance)
}

func TestRepeatedClaimDoesNotDuplicateStages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "grace", "en", f.clock.Now())

	first, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, first.Granted)
	f.scheduler.RunAll(t)

	second, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, second.Granted)
	require.Zero(t, second.Amount)
	require.Zero(t, f.scheduler.Pending())

	_, err = f.seq.Sweep(ctx)
	require.NoError(t, err)
	f.scheduler.RunAll(t)

	require.Equal(t, stageOrder, notificationTypes(f.notificationsFor(t, user.ID)))
}

func TestConcurrentClaimsGrantOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "linus", "en", f.clock.Now())

	const workers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.seq.Claim(ctx, user.ID)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if result.Granted {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, granted)

	f.scheduler.RunAll(t)
	require.Equal(t, stageOrder, notificationTypes(f.notificationsFor(t, user.ID)))
}

func TestClaimForUnknownUserFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.seq.Claim(context.Background(), "missing")
	require.Error(t, err)
	require.Zero(t, f.scheduler.Pending())
}

func TestFailedSendLeavesStageUnsentForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "ken", "en", f.clock.Now())
	f.sink.FailNext(notifications.TemplateFeatureIntro, 1)

	_, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)

	require.True(t, f.scheduler.RunNext()) // bonus
	require.True(t, f.scheduler.RunNext()) // features, fails

	status, err := f.seq.Status(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, StateBonusNotified, status.State)
	require.Nil(t, status.Sent[StageFeatures])
	require.Equal(t, StageFeatures, status.NextStage)

	var progress models.OnboardingProgress
	require.NoError(t, f.db.Take(&progress, "user_id = ?", user.ID).Error)
	require.Nil(t, progress.LeaseUntil)

	f.scheduler.RunAll(t)
	require.Equal(t, stageOrder, notificationTypes(f.notificationsFor(t, user.ID)))
}

func TestWelcomeFailureDoesNotBlockClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "barbara", "en", f.clock.Now())
	f.sink.FailNext(notifications.TemplateWelcome, 1)

	result, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, result.Granted)

	f.scheduler.RunAll(t)
	require.Equal(t, stageOrder[1:], notificationTypes(f.notificationsFor(t, user.ID)))

	// Welcome is gated on bonus absence, so a claimed user is not welcomed later.
	require.NoError(t, f.seq.Welcome(ctx, user.ID))
	require.Len(t, f.notificationsFor(t, user.ID), 3)
}

func TestStageUsesLanguageResolvedAtSendTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "marie", "en-GB", f.clock.Now())

	_, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, f.users.UpdateLocale(ctx, user.ID, "fr-FR"))
	f.languages.Invalidate(ctx, user.ID)
	f.scheduler.RunAll(t)

	rows := f.notificationsFor(t, user.ID)
	require.Equal(t, "Welcome to CareerHub, marie!", rows[0].Title)
	require.Equal(t, "Vous avez reçu 100 pièces", rows[1].Title)

	status, err := f.seq.Status(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, StateTipsNotified, status.State)
}

func TestCancelDropsPendingStages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "alan", "en", f.clock.Now())

	_, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, f.seq.Cancel(ctx, user.ID))
	require.Zero(t, f.scheduler.Pending())

	f.clock.Advance(time.Hour)
	_, err = f.seq.Sweep(ctx)
	require.NoError(t, err)
	f.scheduler.RunAll(t)

	require.Equal(t, stageOrder[:1], notificationTypes(f.notificationsFor(t, user.ID)))
	status, err := f.seq.Status(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, status.OptedOut)
}

func TestFiredTaskForDeletedUserIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "edsger", "en", f.clock.Now())

	_, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, f.users.Delete(ctx, user.ID))

	f.scheduler.RunAll(t)
	require.Len(t, f.notificationsFor(t, user.ID), 1)

	require.NoError(t, f.seq.Forget(ctx, user.ID))
	status, err := f.seq.Status(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, StateNew, status.State)
}

func TestDeletingUserForgetsOnboarding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.users.OnDelete(f.seq.Forget)
	user := f.seedUser(t, "barbara", "en", f.clock.Now())

	_, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 3, f.scheduler.Pending())

	require.NoError(t, f.users.Delete(ctx, user.ID))
	require.Zero(t, f.scheduler.Pending())

	var rows int64
	require.NoError(t, f.db.Model(&models.OnboardingProgress{}).Where("user_id = ?", user.ID).Count(&rows).Error)
	require.Zero(t, rows)

	f.clock.Advance(time.Hour)
	report, err := f.seq.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, report.ClaimsRecovered)
	require.Len(t, f.notificationsFor(t, user.ID), 1)
}

func TestSweepWelcomesRecentUsersWithJitter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()
	recent := f.seedUser(t, "recent", "fr", start.Add(-time.Minute))
	stale := f.seedUser(t, "stale", "en", start.Add(-time.Hour))

	report, err := f.seq.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.WelcomesScheduled)
	require.Equal(t, []time.Time{start.Add(2 * time.Second)}, f.scheduler.dueTimes())

	f.scheduler.RunAll(t)
	rows := f.notificationsFor(t, recent.ID)
	require.Len(t, rows, 1)
	require.Equal(t, notifications.TemplateWelcome, rows[0].Type)
	require.Equal(t, "Bienvenue sur CareerHub, recent !", rows[0].Title)
	require.True(t, rows[0].CreatedAt.Equal(start.Add(2*time.Second)))
	require.Empty(t, f.notificationsFor(t, stale.ID))

	status, err := f.seq.Status(ctx, recent.ID)
	require.NoError(t, err)
	require.Equal(t, StateWelcomeSent, status.State)

	report, err = f.seq.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, report.WelcomesScheduled)
}

func TestSweepAdvancesOverdueStagesAfterRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "hopper", "en", f.clock.Now())

	_, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)

	// The first process dies before its timers fire.
	restarted := f.newSequencer(t, newManualScheduler(f.clock))
	f.clock.Advance(3 * time.Minute)

	report, err := restarted.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.UsersAdvanced)
	require.Equal(t, stageOrder, notificationTypes(f.notificationsFor(t, user.ID)))

	// Stale timers from the dead process must not re-send.
	f.scheduler.RunAll(t)
	require.Equal(t, stageOrder, notificationTypes(f.notificationsFor(t, user.ID)))
}

func TestSweepRecoversClaimLostAfterAward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "liskov", "en", f.clock.Now())
	awardedAt := f.clock.Now()

	var failed atomic.Bool
	require.NoError(t, f.db.Callback().Update().Before("gorm:update").Register("test:fail_claim_once", func(tx *gorm.DB) {
		fields, ok := tx.Statement.Dest.(map[string]any)
		if !ok {
			return
		}
		if _, ok := fields["bonus_claimed_at"]; ok && failed.CompareAndSwap(false, true) {
			_ = tx.AddError(errors.New("connection reset"))
		}
	}))

	result, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, result.Granted)
	require.True(t, failed.Load())
	require.Zero(t, f.scheduler.Pending())

	f.clock.Advance(10 * time.Minute)
	report, err := f.seq.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.ClaimsRecovered)
	require.Equal(t, 1, report.UsersAdvanced)
	require.Equal(t, stageOrder, notificationTypes(f.notificationsFor(t, user.ID)))

	var progress models.OnboardingProgress
	require.NoError(t, f.db.Where("user_id = ?", user.ID).First(&progress).Error)
	require.NotNil(t, progress.BonusClaimedAt)
	require.True(t, progress.BonusClaimedAt.Equal(awardedAt))
	require.EqualValues(t, 100, progress.BonusAmount)

	report, err = f.seq.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, report.ClaimsRecovered)
	require.Zero(t, report.UsersAdvanced)
}

func TestResumeReschedulesFutureStages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "dijkstra", "en", f.clock.Now())
	claimedAt := f.clock.Now()

	_, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)

	restartedScheduler := newManualScheduler(f.clock)
	restarted := f.newSequencer(t, restartedScheduler)
	resumed, err := restarted.Resume(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, resumed)

	restartedScheduler.RunAll(t)
	rows := f.notificationsFor(t, user.ID)
	require.Equal(t, stageOrder, notificationTypes(rows))
	require.False(t, rows[3].CreatedAt.Before(claimedAt.Add(120*time.Second)))
}

func TestLeaseHeldElsewhereSkipsStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "liskov", "en", f.clock.Now())

	_, err := f.seq.Claim(ctx, user.ID)
	require.NoError(t, err)

	until := f.clock.Now().Add(time.Hour)
	require.NoError(t, f.db.Model(&models.OnboardingProgress{}).
		Where("user_id = ?", user.ID).
		Update("lease_until", until).Error)

	require.True(t, f.scheduler.RunNext())
	require.Len(t, f.notificationsFor(t, user.ID), 1)

	status, err := f.seq.Status(ctx, user.ID)
	require.NoError(t, err)
	require.Nil(t, status.Sent[StageBonus])
}
