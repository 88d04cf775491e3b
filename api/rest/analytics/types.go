package analytics

import (
	"context"
	"time"

	"codeberg.org/tinyurl/server/tinyurl/stats"
)

type StatsCache interface {
	GetDailyStat(ctx context.Context, urlID int64, date time.Time) (*stats.DailyStat, error)
	GetSummary(ctx context.Context, urlID int64) (*stats.Summary, error)
	GetLatest(ctx context.Context, urlID int64) ([]stats.DailyStat, error)
}

type OwnershipChecker interface {
	Require(ctx context.Context, urlID, userID int64) error
}

type Deps struct {
	Stats     StatsCache
	Ownership OwnershipChecker
}

type LatestResponse struct {
	URLID int64             `json:"url_id"`
	Days  []stats.DailyStat `json:"days"`
}
