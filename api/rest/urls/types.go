package urls

import (
	"context"
	"time"

	"codeberg.org/tinyurl/server/internal/tasks"
	"codeberg.org/tinyurl/server/tinyurl/urls"
)

type URLStore interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, id int64, p urls.CreateParams) (*urls.URL, error)
	FindByCode(ctx context.Context, code string) (*urls.URL, error)
	Update(ctx context.Context, u *urls.URL) (*urls.URL, error)
}

// write side of the url -> owner index
type OwnerIndex interface {
	Assign(ctx context.Context, urlID, userID int64) error
}

type OwnershipChecker interface {
	Require(ctx context.Context, urlID, userID int64) error
}

type Locker interface {
	WithLock(ctx context.Context, key string, maxHold time.Duration, fn func(ctx context.Context) error) error
}

type TaskQueue interface {
	Submit(name string, fn tasks.Task) error
}

// everything the url handlers need
type Deps struct {
	URLs      URLStore
	Owners    OwnerIndex
	Ownership OwnershipChecker
	Locker    Locker
	Tasks     TaskQueue

	// public prefix of short links, e.g. https://tiny.example
	BaseURL string

	// lock hold limit for metadata updates
	LockTTL time.Duration
}

// CreateURLRequest contains data for shortening a URL
type CreateURLRequest struct {
	OriginalURL string     `json:"original_url" binding:"required,url,max=2048"`
	Title       string     `json:"title"        binding:"max=200"`
	IsPrivate   bool       `json:"is_private"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// UpdateURLRequest contains the metadata to change; omitted fields are kept
type UpdateURLRequest struct {
	OriginalURL *string    `json:"original_url" binding:"omitempty,url,max=2048"`
	Title       *string    `json:"title"        binding:"omitempty,max=200"`
	IsPrivate   *bool      `json:"is_private"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type URLResponse struct {
	*urls.URL
	ShortURL string `json:"short_url"`
}
