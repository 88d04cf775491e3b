package urls

import (
	"errors"
	"time"

	"codeberg.org/tinyurl/server/internal/storage"
)

var ErrNotFound = errors.New("url not found")

// handles url database operations
type Repository struct {
	db storage.DBTX
}

// a shortened URL
type URL struct {
	ID          int64      `json:"id"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	Title       string     `json:"title"`
	IsPrivate   bool       `json:"is_private"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// reports whether the URL has passed its expiry time
func (u *URL) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && !now.Before(*u.ExpiresAt)
}

type CreateParams struct {
	ShortCode   string
	OriginalURL string
	Title       string
	IsPrivate   bool
	CreatedBy   int64
	ExpiresAt   *time.Time
}

// fields a metadata update may change; nil leaves the field as is
type UpdateParams struct {
	OriginalURL *string
	Title       *string
	IsPrivate   *bool
	ExpiresAt   *time.Time
}

// applies p to u in place
func (p UpdateParams) Apply(u *URL) {
	if p.OriginalURL != nil {
		u.OriginalURL = *p.OriginalURL
	}

	if p.Title != nil {
		u.Title = *p.Title
	}

	if p.IsPrivate != nil {
		u.IsPrivate = *p.IsPrivate
	}

	if p.ExpiresAt != nil {
		u.ExpiresAt = p.ExpiresAt
	}
}
