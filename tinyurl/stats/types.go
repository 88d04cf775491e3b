package stats

import (
	"time"

	"codeberg.org/tinyurl/server/internal/storage"
)

// handles url_daily_stats operations
type Repository struct {
	db storage.DBTX
}

// per (url, day) click counter.
// LastProcessedClickID is the watermark: click events with an id at or below
// it are already part of ClickCount.
type DailyStat struct {
	ID                   int64      `json:"id"`
	URLID                int64      `json:"url_id"`
	Date                 time.Time  `json:"date"`
	ClickCount           uint64     `json:"click_count"`
	LastProcessedClickID uint64     `json:"last_processed_click_id"`
	LastProcessedAt      *time.Time `json:"last_processed_at,omitempty"`
}

// totals over every recorded day of a URL
type Summary struct {
	URLID       int64      `json:"url_id"`
	TotalClicks uint64     `json:"total_clicks"`
	Days        int        `json:"days"`
	FirstDate   *time.Time `json:"first_date,omitempty"`
	LastDate    *time.Time `json:"last_date,omitempty"`
}
