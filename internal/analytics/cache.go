package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/tinyurl/stats"
)

const (
	keyPrefix = "analytics:"

	kindDaily   = "daily"
	kindSummary = "summary"
	kindLatest  = "latest"

	// days covered by the latest kind, today included
	recentDays = 7

	scanCount = 500
)

// read side of the stats repository
type StatsReader interface {
	Find(ctx context.Context, urlID int64, date time.Time) (*stats.DailyStat, error)
	Summary(ctx context.Context, urlID int64) (*stats.Summary, error)
	ListRange(ctx context.Context, urlID int64, from, to time.Time) ([]stats.DailyStat, error)
	ActiveURLs(ctx context.Context, since time.Time, limit int) ([]int64, error)
}

// entries per cache kind
type CacheStats struct {
	Daily   int `json:"daily"`
	Summary int `json:"summary"`
	Latest  int `json:"latest"`
	Total   int `json:"total"`
}

// read-through Redis cache in front of the daily stats.
// keys are analytics:<kind>:<url id>[:<date>].
type CacheManager struct {
	client redis.UniversalClient
	stats  StatsReader
	ttl    time.Duration
	now    func() time.Time
}

func NewCacheManager(client redis.UniversalClient, reader StatsReader, ttl time.Duration) *CacheManager {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &CacheManager{
		client: client,
		stats:  reader,
		ttl:    ttl,
		now:    time.Now,
	}
}

// the stat of urlID on date, nil when nothing was recorded that day
func (m *CacheManager) GetDailyStat(ctx context.Context, urlID int64, date time.Time) (*stats.DailyStat, error) {
	key := dailyKey(urlID, date)

	var cached stats.DailyStat
	if hit, err := m.get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	s, err := m.stats.Find(ctx, urlID, date)
	if err != nil || s == nil {
		return s, err
	}

	m.set(ctx, key, s)

	return s, nil
}

func (m *CacheManager) GetSummary(ctx context.Context, urlID int64) (*stats.Summary, error) {
	key := summaryKey(urlID)

	var cached stats.Summary
	if hit, err := m.get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	s, err := m.stats.Summary(ctx, urlID)
	if err != nil {
		return nil, err
	}

	m.set(ctx, key, s)

	return s, nil
}

// daily stats of the last seven days, oldest first
func (m *CacheManager) GetLatest(ctx context.Context, urlID int64) ([]stats.DailyStat, error) {
	key := latestKey(urlID)

	var cached []stats.DailyStat
	if hit, err := m.get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	to := DateOnly(m.now())
	list, err := m.stats.ListRange(ctx, urlID, to.AddDate(0, 0, -(recentDays-1)), to)
	if err != nil {
		return nil, err
	}

	if list == nil {
		list = []stats.DailyStat{}
	}

	m.set(ctx, key, list)

	return list, nil
}

// drops every analytics entry
func (m *CacheManager) InvalidateAll(ctx context.Context) error {
	n, err := m.deleteMatching(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to invalidate analytics cache: %w", err)
	}

	logger.Info("analytics cache invalidated", "keys", n)

	return nil
}

// drops the entries of one URL
func (m *CacheManager) InvalidateURL(ctx context.Context, urlID int64) error {
	id := strconv.FormatInt(urlID, 10)

	for _, pattern := range []string{keyPrefix + "*:" + id, keyPrefix + "*:" + id + ":*"} {
		if _, err := m.deleteMatching(ctx, pattern); err != nil {
			return fmt.Errorf("failed to invalidate analytics cache for url %d: %w", urlID, err)
		}
	}

	return nil
}

// preloads summaries and latest stats of URLs active in the last week.
// returns how many URLs were loaded.
func (m *CacheManager) WarmUp(ctx context.Context, limit int) (int, error) {
	since := DateOnly(m.now()).AddDate(0, 0, -(recentDays - 1))

	ids, err := m.stats.ActiveURLs(ctx, since, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list active urls: %w", err)
	}

	warmed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return warmed, ctx.Err()
		}

		if _, err := m.GetSummary(ctx, id); err != nil {
			logger.WarnErr(err, "failed to warm summary", "url_id", id)
			continue
		}

		if _, err := m.GetLatest(ctx, id); err != nil {
			logger.WarnErr(err, "failed to warm latest stats", "url_id", id)
			continue
		}

		warmed++
	}

	logger.Info("analytics cache warmed", "urls", warmed, "candidates", len(ids))

	return warmed, nil
}

func (m *CacheManager) Stats(ctx context.Context) (CacheStats, error) {
	var s CacheStats

	iter := m.client.Scan(ctx, 0, keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		switch kindOf(iter.Val()) {
		case kindDaily:
			s.Daily++
		case kindSummary:
			s.Summary++
		case kindLatest:
			s.Latest++
		}
		s.Total++
	}

	if err := iter.Err(); err != nil {
		return CacheStats{}, fmt.Errorf("failed to scan analytics cache: %w", err)
	}

	return s, nil
}

// cache failures are logged and treated as a miss
func (m *CacheManager) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := m.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		logger.WarnErr(err, "analytics cache read failed", "key", key)
		return false, err
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		logger.WarnErr(err, "dropping undecodable analytics cache entry", "key", key)
		m.client.Del(ctx, key)
		return false, err
	}

	return true, nil
}

func (m *CacheManager) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.WarnErr(err, "failed to encode analytics cache entry", "key", key)
		return
	}

	if err := m.client.Set(ctx, key, raw, m.ttl).Err(); err != nil {
		logger.WarnErr(err, "analytics cache write failed", "key", key)
	}
}

func (m *CacheManager) deleteMatching(ctx context.Context, pattern string) (int, error) {
	var (
		batch   []string
		deleted int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := m.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	iter := m.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanCount {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}

	if err := iter.Err(); err != nil {
		return deleted, err
	}

	return deleted, flush()
}

func dailyKey(urlID int64, date time.Time) string {
	return keyPrefix + kindDaily + ":" + strconv.FormatInt(urlID, 10) + ":" + FormatDate(date)
}

func summaryKey(urlID int64) string {
	return keyPrefix + kindSummary + ":" + strconv.FormatInt(urlID, 10)
}

func latestKey(urlID int64) string {
	return keyPrefix + kindLatest + ":" + strconv.FormatInt(urlID, 10)
}

func kindOf(key string) string {
	rest := strings.TrimPrefix(key, keyPrefix)
	kind, _, _ := strings.Cut(rest, ":")
	return kind
}
