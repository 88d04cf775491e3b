package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
)

const releaseTimeout = 2 * time.Second

// serializes read-modify-write sections on a single entity
type Locker struct {
	store Store
	opts  Options
}

func NewLocker(store Store, opts Options) *Locker {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	return &Locker{store: store, opts: opts}
}

// lock key for a URL's metadata
func URLKey(shortCode string) string {
	return fmt.Sprintf(keyURLLock, shortCode)
}

// lock key for a user's profile
func UserKey(userID int64) string {
	return fmt.Sprintf(keyUserLock, strconv.FormatInt(userID, 10))
}

// runs fn while holding the lock on key.
//
// The lock lives at most maxHold and fn's context is cut off at the same
// moment. When the lock stays taken for the whole retry budget ErrBusy is
// returned and fn never runs. The lock is released on every way out of fn,
// panics included, and only if this call still owns it.
func (l *Locker) WithLock(ctx context.Context, key string, maxHold time.Duration, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token, maxHold); err != nil {
		return err
	}

	defer l.release(ctx, key, token)

	holdCtx, cancel := context.WithTimeout(ctx, maxHold)
	defer cancel()

	return fn(holdCtx)
}

func (l *Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	interval := l.opts.AcquireTimeout / time.Duration(l.opts.Attempts)

	for attempt := 1; attempt <= l.opts.Attempts; attempt++ {
		ok, err := l.store.Acquire(ctx, key, token, ttl)
		if err != nil {
			metrics.LockAcquire.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}

		if ok {
			metrics.LockAcquire.WithLabelValues("acquired").Inc()
			return nil
		}

		if attempt == l.opts.Attempts {
			break
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.LockAcquire.WithLabelValues("busy").Inc()
	logger.Warn("lock busy", "key", key, "attempts", l.opts.Attempts)

	return fmt.Errorf("%w: %s is locked", ErrBusy, key)
}

func (l *Locker) release(ctx context.Context, key, token string) {
	// the caller's context may already be cancelled; release regardless
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released, err := l.store.Release(relCtx, key, token)
	if err != nil {
		logger.ErrorErr(err, "failed to release lock", "key", key)
		return
	}

	if !released {
		logger.Warn("lock expired or was taken over before release", "key", key)
	}
}
