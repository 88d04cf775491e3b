package clicks

import (
	"time"

	sq "github.com/Masterminds/squirrel"

	"codeberg.org/tinyurl/server/internal/storage"
)

// handles click_events operations
type Repository struct {
	db storage.DBTX
	sb sq.StatementBuilderType
}

// geo lookup attached to a click, when available
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
}

// fire-and-forget message published on every redirect
type Message struct {
	URLID         int64     `json:"urlId"`
	ShortCode     string    `json:"shortCode"`
	UserID        *int64    `json:"userId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     string    `json:"userAgent"`
	Referrer      string    `json:"referrer,omitempty"`
	CorrelationID string    `json:"correlationId"`
	Location      *Location `json:"location,omitempty"`
}

// a stored click. ID increases monotonically in insert order.
type Event struct {
	ID        int64
	URLID     int64
	ShortCode string
	UserID    *int64
	ClickedAt time.Time
	IPAddress string
	UserAgent string
	Referrer  string
	Location  Location
	Processed bool
}
