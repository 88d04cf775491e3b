package users

import (
	"context"
	"time"

	"codeberg.org/tinyurl/server/tinyurl/users"
)

type UserStore interface {
	FindByID(ctx context.Context, userID int64) (*users.User, error)
	UpdateProfile(ctx context.Context, userID int64, name, avatarURL string) (*users.User, error)
}

type Locker interface {
	WithLock(ctx context.Context, key string, maxHold time.Duration, fn func(ctx context.Context) error) error
}

type Deps struct {
	Users  UserStore
	Locker Locker

	// lock hold limit for profile updates
	LockTTL time.Duration
}
