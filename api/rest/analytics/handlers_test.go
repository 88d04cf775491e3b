package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/tinyurl/server/internal/analytics"
	"codeberg.org/tinyurl/server/internal/auth"
	"codeberg.org/tinyurl/server/internal/ownership"
	"codeberg.org/tinyurl/server/tinyurl/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReader struct {
	daily map[string]stats.DailyStat
	finds int32
}

func (f *fakeReader) Find(_ context.Context, urlID int64, date time.Time) (*stats.DailyStat, error) {
	atomic.AddInt32(&f.finds, 1)

	s, ok := f.daily[strconv.FormatInt(urlID, 10)+"/"+analytics.FormatDate(date)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeReader) Summary(_ context.Context, urlID int64) (*stats.Summary, error) {
	var total uint64
	for _, s := range f.daily {
		if s.URLID == urlID {
			total += s.ClickCount
		}
	}
	return &stats.Summary{URLID: urlID, TotalClicks: total, Days: len(f.daily)}, nil
}

func (f *fakeReader) ListRange(_ context.Context, urlID int64, _, _ time.Time) ([]stats.DailyStat, error) {
	var out []stats.DailyStat
	for _, s := range f.daily {
		if s.URLID == urlID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeReader) ActiveURLs(context.Context, time.Time, int) ([]int64, error) {
	return nil, nil
}

// user 1 owns url 10, url 99 has no answer in time
type fakeOwnership struct{}

func (fakeOwnership) Require(_ context.Context, urlID, userID int64) error {
	switch {
	case urlID == 99:
		return ownership.ErrVerificationUnavailable
	case urlID == 10 && userID == 1:
		return nil
	default:
		return ownership.ErrNotOwner
	}
}

func newRouter(t *testing.T, reader *fakeReader) *gin.Engine {
	t.Helper()
	t.Setenv("JWT_SECRET", "analytics-test-secret")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec // test cleanup

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), Deps{
		Stats:     analytics.NewCacheManager(client, reader, time.Minute),
		Ownership: fakeOwnership{},
	})

	return r
}

func get(t *testing.T, r http.Handler, userID int64, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID > 0 {
		token, err := auth.GenerateJWT(userID, "owner@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestGetDaily_ReadsThroughCache(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{daily: map[string]stats.DailyStat{
		"10/2026-03-14": {URLID: 10, Date: day, ClickCount: 4, LastProcessedClickID: 104},
	}}
	r := newRouter(t, reader)

	for range 3 {
		w := get(t, r, 1, "/api/v1/analytics/urls/10/daily?date=2026-03-14")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var got stats.DailyStat
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, uint64(4), got.ClickCount)
		assert.Equal(t, uint64(104), got.LastProcessedClickID)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.finds))
}

func TestGetDaily_EmptyDayReportsZero(t *testing.T) {
	r := newRouter(t, &fakeReader{})

	w := get(t, r, 1, "/api/v1/analytics/urls/10/daily?date=2026-03-15")
	require.Equal(t, http.StatusOK, w.Code)

	var got stats.DailyStat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(10), got.URLID)
	assert.Zero(t, got.ClickCount)
}

func TestAnalytics_Statuses(t *testing.T) {
	r := newRouter(t, &fakeReader{})

	tests := []struct {
		name   string
		userID int64
		path   string
		want   int
	}{
		{"anonymous", 0, "/api/v1/analytics/urls/10/summary", http.StatusUnauthorized},
		{"not owner", 2, "/api/v1/analytics/urls/10/summary", http.StatusForbidden},
		{"verification timeout", 1, "/api/v1/analytics/urls/99/summary", http.StatusServiceUnavailable},
		{"bad id", 1, "/api/v1/analytics/urls/abc/summary", http.StatusBadRequest},
		{"bad date", 1, "/api/v1/analytics/urls/10/daily?date=14-03-2026", http.StatusBadRequest},
		{"summary", 1, "/api/v1/analytics/urls/10/summary", http.StatusOK},
		{"latest", 1, "/api/v1/analytics/urls/10/latest", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, r, tt.userID, tt.path).Code)
		})
	}
}

func TestGetLatest_EmptyListIsArray(t *testing.T) {
	r := newRouter(t, &fakeReader{})

	w := get(t, r, 1, "/api/v1/analytics/urls/10/latest")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url_id":10,"days":[]}`, w.Body.String())
}
