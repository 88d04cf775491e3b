package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{AcquireTimeout: 60 * time.Millisecond, Attempts: 3}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec // test cleanup

	return NewRedisStore(client), mr
}

// runs the shared store contract against both implementations
func stores(t *testing.T) map[string]Store {
	mem := NewMemoryStore()
	t.Cleanup(func() { mem.Close() }) //nolint:errcheck,gosec // test cleanup

	rs, _ := newRedisStore(t)

	return map[string]Store{"memory": mem, "redis": rs}
}

func TestStore_AcquireRelease(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := store.Acquire(ctx, "k", "token-a", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.Acquire(ctx, "k", "token-b", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "second holder must be refused")

			released, err := store.Release(ctx, "k", "token-b")
			require.NoError(t, err)
			assert.False(t, released, "wrong token must not release")

			released, err = store.Release(ctx, "k", "token-a")
			require.NoError(t, err)
			assert.True(t, released)

			ok, err = store.Acquire(ctx, "k", "token-b", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRedisStore_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "k", "old", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = store.Acquire(ctx, "k", "new", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lock can be taken over")

	released, err := store.Release(ctx, "k", "old")
	require.NoError(t, err)
	assert.False(t, released)

	val, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "new", val, "new holder keeps its lock")
}

func TestWithLock_RunsBodyAndReleases(t *testing.T) {
	store, mr := newRedisStore(t)
	locker := NewLocker(store, fastOptions())

	ran := false
	err := locker.WithLock(context.Background(), URLKey("abc123"), 30*time.Second, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("updateUrlInfoLock::abc123"))

		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, time.Second)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("updateUrlInfoLock::abc123"))
}

func TestWithLock_BusyAfterRetryBudget(t *testing.T) {
	store, _ := newRedisStore(t)
	locker := NewLocker(store, fastOptions())
	ctx := context.Background()

	ok, err := store.Acquire(ctx, UserKey(7), "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	start := time.Now()
	err = locker.WithLock(ctx, UserKey(7), 10*time.Second, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, called)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close() //nolint:errcheck // test cleanup
	locker := NewLocker(store, fastOptions())
	ctx := context.Background()
	boom := errors.New("update failed")

	err := locker.WithLock(ctx, "k", time.Minute, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ok, err := store.Acquire(ctx, "k", "next", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock must be free after an error")
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close() //nolint:errcheck // test cleanup
	locker := NewLocker(store, fastOptions())
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = locker.WithLock(ctx, "k", time.Minute, func(context.Context) error { panic("boom") })
	})

	ok, err := store.Acquire(ctx, "k", "next", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock must be free after a panic")
}

func TestWithLock_ReleasesWhenCallerContextCancelled(t *testing.T) {
	store, mr := newRedisStore(t)
	locker := NewLocker(store, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	err := locker.WithLock(ctx, "k", time.Minute, func(context.Context) error {
		cancel()
		return nil
	})

	require.NoError(t, err)
	assert.False(t, mr.Exists("k"))
}

func TestWithLock_SerializesConcurrentCallers(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close() //nolint:errcheck // test cleanup
	locker := NewLocker(store, Options{AcquireTimeout: 2 * time.Second, Attempts: 40})

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)

	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "shared", time.Minute, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "updateUrlInfoLock::Xy9", URLKey("Xy9"))
	assert.Equal(t, "updateUserInfoLock::42", UserKey(42))
}
