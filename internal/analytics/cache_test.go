package analytics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/tinyurl/server/tinyurl/stats"
)

type fakeReader struct {
	finds     int32
	summaries int32
	ranges    int32
	active    []int64
}

func (f *fakeReader) Find(_ context.Context, urlID int64, date time.Time) (*stats.DailyStat, error) {
	atomic.AddInt32(&f.finds, 1)
	if urlID == 404 {
		return nil, nil
	}
	return &stats.DailyStat{ID: 1, URLID: urlID, Date: DateOnly(date), ClickCount: 42}, nil
}

func (f *fakeReader) Summary(_ context.Context, urlID int64) (*stats.Summary, error) {
	atomic.AddInt32(&f.summaries, 1)
	return &stats.Summary{URLID: urlID, TotalClicks: 100, Days: 3}, nil
}

func (f *fakeReader) ListRange(_ context.Context, urlID int64, from, _ time.Time) ([]stats.DailyStat, error) {
	atomic.AddInt32(&f.ranges, 1)
	return []stats.DailyStat{{URLID: urlID, Date: from, ClickCount: 1}}, nil
}

func (f *fakeReader) ActiveURLs(context.Context, time.Time, int) ([]int64, error) {
	return f.active, nil
}

func newTestCache(t *testing.T) (*CacheManager, *fakeReader, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec // test cleanup

	reader := &fakeReader{}
	m := NewCacheManager(client, reader, time.Minute)
	m.now = func() time.Time { return day.Add(12 * time.Hour) }

	return m, reader, mr
}

func TestCacheManager_ReadThrough(t *testing.T) {
	m, reader, mr := newTestCache(t)
	ctx := context.Background()

	s, err := m.GetDailyStat(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), s.ClickCount)

	s, err = m.GetDailyStat(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), s.ClickCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.finds))

	assert.True(t, mr.Exists("analytics:daily:1:2026-03-14"))
	assert.Equal(t, time.Minute, mr.TTL("analytics:daily:1:2026-03-14"))
}

func TestCacheManager_MissingStatNotCached(t *testing.T) {
	m, reader, mr := newTestCache(t)

	s, err := m.GetDailyStat(context.Background(), 404, day)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.False(t, mr.Exists("analytics:daily:404:2026-03-14"))

	_, _ = m.GetDailyStat(context.Background(), 404, day)
	assert.Equal(t, int32(2), atomic.LoadInt32(&reader.finds))
}

func TestCacheManager_ExpiresAfterTTL(t *testing.T) {
	m, reader, mr := newTestCache(t)
	ctx := context.Background()

	_, err := m.GetSummary(ctx, 1)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = m.GetSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&reader.summaries))
}

func TestCacheManager_InvalidateAll(t *testing.T) {
	m, reader, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("unrelated", "keep"))

	for id := int64(1); id <= 3; id++ {
		_, err := m.GetSummary(ctx, id)
		require.NoError(t, err)
		_, err = m.GetDailyStat(ctx, id, day)
		require.NoError(t, err)
	}

	require.NoError(t, m.InvalidateAll(ctx))

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Total)
	assert.True(t, mr.Exists("unrelated"))

	_, err = m.GetSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&reader.summaries))
}

func TestCacheManager_InvalidateURL(t *testing.T) {
	m, _, mr := newTestCache(t)
	ctx := context.Background()

	for _, id := range []int64{1, 11} {
		_, err := m.GetSummary(ctx, id)
		require.NoError(t, err)
		_, err = m.GetDailyStat(ctx, id, day)
		require.NoError(t, err)
	}

	require.NoError(t, m.InvalidateURL(ctx, 1))

	assert.False(t, mr.Exists("analytics:summary:1"))
	assert.False(t, mr.Exists("analytics:daily:1:2026-03-14"))
	assert.True(t, mr.Exists("analytics:summary:11"))
	assert.True(t, mr.Exists("analytics:daily:11:2026-03-14"))
}

func TestCacheManager_WarmUpAndStats(t *testing.T) {
	m, reader, _ := newTestCache(t)
	reader.active = []int64{1, 2}
	ctx := context.Background()

	n, err := m.WarmUp(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = m.GetDailyStat(ctx, 1, day)
	require.NoError(t, err)

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, CacheStats{Daily: 1, Summary: 2, Latest: 2, Total: 5}, st)
}

func TestCacheManager_UndecodableEntryIsDropped(t *testing.T) {
	m, reader, mr := newTestCache(t)

	require.NoError(t, mr.Set("analytics:summary:1", "not json"))

	s, err := m.GetSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), s.TotalClicks)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.summaries))
}

func TestCacheManager_RedisDownFallsBackToStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec // test cleanup

	reader := &fakeReader{}
	m := NewCacheManager(client, reader, time.Minute)

	s, err := m.GetSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), s.TotalClicks)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.summaries))
}
