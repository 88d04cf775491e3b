package admin

import (
	"context"
	"time"

	"codeberg.org/tinyurl/server/internal/analytics"
)

type AnalyticsCache interface {
	InvalidateURL(ctx context.Context, urlID int64) error
	InvalidateAll(ctx context.Context) error
	WarmUp(ctx context.Context, limit int) (int, error)
	Stats(ctx context.Context) (analytics.CacheStats, error)
}

type OwnershipCache interface {
	Evict(urlID, userID int64) bool
	CacheLen() int
}

type Aggregator interface {
	RunNow(ctx context.Context, date time.Time) (analytics.BatchResult, error)
}

type TableCounter interface {
	TableCounts(ctx context.Context) (map[string]int64, error)
}

type Deps struct {
	Analytics  AnalyticsCache
	Ownership  OwnershipCache
	Aggregator Aggregator
	Tables     TableCounter

	// API key expected in X-Admin-Key; empty disables the admin routes
	Key string

	// URLs warmed by POST /cache/warmup
	WarmUpLimit int
}
