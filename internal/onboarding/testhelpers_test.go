package onboarding

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/careerhub/internal/cache"
	"github.com/charlesng35/careerhub/internal/database/testutil"
	"github.com/charlesng35/careerhub/internal/models"
	"github.com/charlesng35/careerhub/internal/notifications"
	"github.com/charlesng35/careerhub/internal/services"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

func (c *testClock) AdvanceTo(t time.Time) {
	c.mu.Lock()
	if t.After(c.current) {
		c.current = t
	}
	c.mu.Unlock()
}

// manualScheduler fires tasks only when the test asks, moving the clock to
// each task's due time first.
type manualScheduler struct {
	mu    sync.Mutex
	clock *testClock
	tasks []*manualTask
	seq   int
}

type manualTask struct {
	key taskKey
	due time.Time
	seq int
	run func()
}

func newManualScheduler(clock *testClock) *manualScheduler {
	return &manualScheduler{clock: clock}
}

func (m *manualScheduler) Schedule(userID string, stage Stage, delay time.Duration, task func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := taskKey{userID: userID, stage: stage}
	for _, existing := range m.tasks {
		if existing.key == key {
			return false
		}
	}
	if delay < 0 {
		delay = 0
	}
	m.seq++
	m.tasks = append(m.tasks, &manualTask{key: key, due: m.clock.Now().Add(delay), seq: m.seq, run: task})
	return true
}

func (m *manualScheduler) CancelUser(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tasks[:0]
	dropped := 0
	for _, task := range m.tasks {
		if task.key.userID == userID {
			dropped++
			continue
		}
		kept = append(kept, task)
	}
	m.tasks = kept
	return dropped
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *manualScheduler) Flush() {
	for m.RunNext() {
	}
}

func (m *manualScheduler) Stop() {
	m.mu.Lock()
	m.tasks = nil
	m.mu.Unlock()
}

func (m *manualScheduler) dueTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	times := make([]time.Time, 0, len(m.tasks))
	for _, task := range m.tasks {
		times = append(times, task.due)
	}
	return times
}

// RunNext fires the earliest task and reports whether one was pending.
func (m *manualScheduler) RunNext() bool {
	m.mu.Lock()
	if len(m.tasks) == 0 {
		m.mu.Unlock()
		return false
	}
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].due.Equal(m.tasks[j].due) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].due.Before(m.tasks[j].due)
	})
	task := m.tasks[0]
	m.tasks = m.tasks[1:]
	m.mu.Unlock()

	m.clock.AdvanceTo(task.due)
	task.run()
	return true
}

func (m *manualScheduler) RunAll(t *testing.T) {
	t.Helper()
	for i := 0; m.RunNext(); i++ {
		require.Less(t, i, 100, "scheduler did not drain")
	}
}

// flakySink fails the next n creates of a notification type.
type flakySink struct {
	inner Sink
	mu    sync.Mutex
	fail  map[string]int
}

func (s *flakySink) FailNext(notificationType string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = map[string]int{}
	}
	s.fail[notificationType] = n
}

func (s *flakySink) Create(ctx context.Context, input services.CreateNotificationInput) (*services.NotificationDTO, error) {
	s.mu.Lock()
	if s.fail[input.Type] > 0 {
		s.fail[input.Type]--
		s.mu.Unlock()
		return nil, errors.New("notification store unavailable")
	}
	s.mu.Unlock()
	return s.inner.Create(ctx, input)
}

type fixture struct {
	db        *gorm.DB
	clock     *testClock
	scheduler *manualScheduler
	ledger    *services.BonusLedger
	users     *services.UserService
	languages *services.LanguageProvider
	sink      *flakySink
	deps      Dependencies
	seq       *Sequencer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	clock := newTestClock()

	ledger, err := services.NewBonusLedger(db, services.DefaultWelcomeBonus, services.WithLedgerClock(clock.Now))
	require.NoError(t, err)
	users, err := services.NewUserService(db)
	require.NoError(t, err)
	notifier, err := services.NewNotificationService(db, nil, services.WithNotificationClock(clock.Now))
	require.NoError(t, err)
	resolver, err := notifications.DefaultResolver()
	require.NoError(t, err)

	f := &fixture{
		db:        db,
		clock:     clock,
		scheduler: newManualScheduler(clock),
		ledger:    ledger,
		users:     users,
		languages: services.NewLanguageProvider(users, cache.NewMemoryStore(clock.Now), time.Minute),
		sink:      &flakySink{inner: notifier},
	}
	f.deps = Dependencies{
		Ledger:    ledger,
		Languages: f.languages,
		Templates: resolver,
		Sink:      f.sink,
		Users:     users,
	}
	f.seq = f.newSequencer(t, f.scheduler, opts...)
	return f
}

// newSequencer builds another instance over the same storage, as a second
// process or a restarted one would see it.
func (f *fixture) newSequencer(t *testing.T, scheduler Scheduler, opts ...Option) *Sequencer {
	t.Helper()
	base := []Option{WithClock(f.clock.Now), WithScheduler(scheduler), WithJitter(func() time.Duration { return 2 * time.Second })}
	seq, err := NewSequencer(f.db, f.deps, DefaultConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return seq
}

func (f *fixture) seedUser(t *testing.T, username, locale string, createdAt time.Time) *models.User {
	t.Helper()
	user := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		Locale:    locale,
		IsActive:  true,
		CreatedAt: createdAt,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixture) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("created_at ASC").Order("rowid ASC").Find(&rows).Error)
	return rows
}

func notificationTypes(rows []models.Notification) []string {
	types := make([]string, len(rows))
	for i, row := range rows {
		types[i] = row.Type
	}
	return types
}
