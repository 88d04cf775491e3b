package lock

import (
	"context"
	"errors"
	"time"
)

// the lock could not be acquired within the retry budget
var ErrBusy = errors.New("system busy")

// key formats for the entities whose metadata updates are serialized
const (
	keyURLLock  = "updateUrlInfoLock::%s"
	keyUserLock = "updateUserInfoLock::%s"
)

// TTL-bounded mutual exclusion keyed by string. a holder is identified by
// the token it acquired with; Release must only delete the key when the
// token still matches.
type Store interface {
	// sets key to token with ttl if key is free. reports whether it was set.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// deletes key if it still holds token. reports whether it was deleted.
	Release(ctx context.Context, key, token string) (bool, error)
}

// acquire retry budget
type Options struct {
	// total time spent trying to acquire before giving up with ErrBusy
	AcquireTimeout time.Duration

	// number of acquire attempts spread over AcquireTimeout
	Attempts int
}

func DefaultOptions() Options {
	return Options{
		AcquireTimeout: time.Second,
		Attempts:       3,
	}
}
