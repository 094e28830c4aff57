package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/careerhub/internal/database/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func storesUnderTest(t *testing.T, clock *fakeClock) map[string]Store {
	t.Helper()

	db := testutil.NewDB(t)
	dbStore := NewDatabaseStore(db)
	dbStore.now = clock.Now

	return map[string]Store{
		"database": dbStore,
		"memory":   NewMemoryStore(clock.Now),
	}
}

func TestIncrementWithTTLUsesFixedWindow(t *testing.T) {
	clock := newFakeClock()
	for name, store := range storesUnderTest(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "rate:" + name

			count, ttl, err := store.IncrementWithTTL(ctx, key, 30*time.Second)
			require.NoError(t, err)
			require.EqualValues(t, 1, count)
			require.Equal(t, 30*time.Second, ttl)

			clock.Advance(10 * time.Second)
			count, ttl, err = store.IncrementWithTTL(ctx, key, 30*time.Second)
			require.NoError(t, err)
			require.EqualValues(t, 2, count)
			require.Equal(t, 20*time.Second, ttl, "later hits must not extend the window")

			clock.Advance(21 * time.Second)
			count, ttl, err = store.IncrementWithTTL(ctx, key, 30*time.Second)
			require.NoError(t, err)
			require.EqualValues(t, 1, count)
			require.Equal(t, 30*time.Second, ttl)
		})
	}
}

func TestSetGetRespectsExpiry(t *testing.T) {
	clock := newFakeClock()
	for name, store := range storesUnderTest(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "status:" + name

			require.NoError(t, store.Set(ctx, key, []byte(`{"ok":true}`), time.Minute))

			value, ok, err := store.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			require.JSONEq(t, `{"ok":true}`, string(value))

			require.NoError(t, store.Set(ctx, key, []byte(`{"ok":false}`), time.Minute))
			value, ok, err = store.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			require.JSONEq(t, `{"ok":false}`, string(value))

			clock.Advance(2 * time.Minute)
			_, ok, err = store.Get(ctx, key)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDeleteRemovesKeys(t *testing.T) {
	clock := newFakeClock()
	for name, store := range storesUnderTest(t, clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
			require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
			require.NoError(t, store.Delete(ctx, "a", "b"))
			require.NoError(t, store.Delete(ctx))

			_, ok, err := store.Get(ctx, "a")
			require.NoError(t, err)
			require.False(t, ok)
			_, ok, err = store.Get(ctx, "b")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	clock := newFakeClock()
	db := testutil.NewDB(t)
	store := NewDatabaseStore(db)
	store.now = clock.Now
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("y"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("z"), 0))

	clock.Advance(time.Minute)
	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	_, ok, err := store.Get(ctx, "long")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisKeysArePrefixedOnce(t *testing.T) {
	require.Equal(t, "careerhub:welcome:u1", prefixed("welcome:u1"))
	require.Equal(t, "careerhub:welcome:u1", prefixed("careerhub:welcome:u1"))
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{Address: "  "})
	require.Error(t, err)
}
