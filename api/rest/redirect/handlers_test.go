package redirect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/tinyurl/server/internal/auth"
	"codeberg.org/tinyurl/server/internal/botdefense"
	"codeberg.org/tinyurl/server/internal/correlation"
	"codeberg.org/tinyurl/server/internal/ownership"
	"codeberg.org/tinyurl/server/internal/ratelimit"
	"codeberg.org/tinyurl/server/internal/tasks"
	"codeberg.org/tinyurl/server/tinyurl/clicks"
	"codeberg.org/tinyurl/server/tinyurl/urls"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeURLs map[string]*urls.URL

func (f fakeURLs) FindByCode(_ context.Context, code string) (*urls.URL, error) {
	if u, ok := f[code]; ok {
		return u, nil
	}
	return nil, urls.ErrNotFound
}

type fakeOwnership struct {
	owners map[int64]int64
	err    error
}

func (f *fakeOwnership) Require(_ context.Context, urlID, userID int64) error {
	if f.err != nil {
		return f.err
	}
	if f.owners[urlID] != userID {
		return ownership.ErrNotOwner
	}
	return nil
}

type recordingClicks struct {
	mu   sync.Mutex
	msgs []clicks.Message
}

func (r *recordingClicks) Publish(_ context.Context, m clicks.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

// runs tasks inline, or refuses them when full is set
type inlineTasks struct {
	full bool
}

func (q *inlineTasks) Submit(_ string, fn tasks.Task) error {
	if q.full {
		return tasks.ErrQueueFull
	}
	return fn(context.Background())
}

type harness struct {
	router    *gin.Engine
	clicks    *recordingClicks
	ownership *fakeOwnership
	tasks     *inlineTasks
}

func newHarness(t *testing.T, rateLimit gin.HandlerFunc) *harness {
	t.Helper()
	t.Setenv("JWT_SECRET", "redirect-test-secret")

	past := time.Now().Add(-time.Hour)

	h := &harness{
		clicks:    &recordingClicks{},
		ownership: &fakeOwnership{owners: map[int64]int64{2: 100}},
		tasks:     &inlineTasks{},
	}

	h.router = gin.New()
	RegisterRoutes(h.router, Deps{
		URLs: fakeURLs{
			"0001": {ID: 1, ShortCode: "0001", OriginalURL: "https://example.com/a"},
			"0002": {ID: 2, ShortCode: "0002", OriginalURL: "https://example.com/private", IsPrivate: true},
			"0003": {ID: 3, ShortCode: "0003", OriginalURL: "https://example.com/old", ExpiresAt: &past},
		},
		Ownership: h.ownership,
		Clicks:    h.clicks,
		Tasks:     h.tasks,
		RateLimit: rateLimit,
	})

	return h
}

func (h *harness) get(t *testing.T, path string, userID int64, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.10:4000"

	if userID != 0 {
		token, err := auth.GenerateJWT(userID, fmt.Sprintf("u%d@example.com", userID))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	return w
}

func TestRedirect_Public(t *testing.T) {
	h := newHarness(t, nil)

	w := h.get(t, "/0001", 0, map[string]string{
		"User-Agent":   "test-agent",
		"Referer":      "https://news.example",
		"CF-IPCountry": "NL",
	})

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/a", w.Header().Get("Location"))

	require.Len(t, h.clicks.msgs, 1)
	m := h.clicks.msgs[0]
	assert.Equal(t, int64(1), m.URLID)
	assert.Equal(t, "0001", m.ShortCode)
	assert.Equal(t, "192.0.2.10", m.IPAddress)
	assert.Equal(t, "test-agent", m.UserAgent)
	assert.Equal(t, "https://news.example", m.Referrer)
	assert.NotEmpty(t, m.CorrelationID)
	assert.Nil(t, m.UserID)
	require.NotNil(t, m.Location)
	assert.Equal(t, "NL", m.Location.Country)
}

func TestRedirect_Statuses(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		userID     int64
		ownerErr   error
		wantStatus int
	}{
		{"unknown code", "/zzzz", 0, nil, http.StatusNotFound},
		{"invalid code", "/not-a-code", 0, nil, http.StatusNotFound},
		{"expired", "/0003", 0, nil, http.StatusGone},
		{"private anonymous", "/0002", 0, nil, http.StatusUnauthorized},
		{"private non owner", "/0002", 999, nil, http.StatusForbidden},
		{"private owner", "/0002", 100, nil, http.StatusFound},
		{
			"private verification timeout", "/0002", 100,
			fmt.Errorf("%w: %w", ownership.ErrVerificationUnavailable, correlation.ErrTimeout),
			http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.ownership.err = tt.ownerErr

			w := h.get(t, tt.path, tt.userID, nil)
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusFound {
				assert.Len(t, h.clicks.msgs, 1)
			} else {
				assert.Empty(t, h.clicks.msgs)
			}
		})
	}
}

func TestRedirect_OwnerClickCarriesUser(t *testing.T) {
	h := newHarness(t, nil)

	w := h.get(t, "/0002", 100, nil)
	require.Equal(t, http.StatusFound, w.Code)

	require.Len(t, h.clicks.msgs, 1)
	require.NotNil(t, h.clicks.msgs[0].UserID)
	assert.Equal(t, int64(100), *h.clicks.msgs[0].UserID)
}

func TestRedirect_FullQueueStillRedirects(t *testing.T) {
	h := newHarness(t, nil)
	h.tasks.full = true

	w := h.get(t, "/0001", 0, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Empty(t, h.clicks.msgs)
}

func TestRedirect_RateLimited(t *testing.T) {
	l, err := ratelimit.NewMemoryLimiter("2-M")
	require.NoError(t, err)

	h := newHarness(t, ratelimit.Middleware("redirect", l))

	assert.Equal(t, http.StatusFound, h.get(t, "/0001", 0, nil).Code)
	assert.Equal(t, http.StatusFound, h.get(t, "/0001", 0, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.get(t, "/0001", 0, nil).Code)
}

func TestRedirect_BotsAreNotCounted(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck,gosec // test cleanup

	cfg := botdefense.DefaultConfig()
	defense := botdefense.New(cfg, botdefense.NewStore(client, cfg))

	h := newHarness(t, nil)
	h.router = gin.New()
	h.router.Use(defense.Middleware())
	RegisterRoutes(h.router, Deps{
		URLs:      fakeURLs{"0001": {ID: 1, ShortCode: "0001", OriginalURL: "https://example.com/a"}},
		Ownership: h.ownership,
		Clicks:    h.clicks,
		Tasks:     h.tasks,
	})

	browser := map[string]string{
		"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/126.0 Safari/537.36",
		"Accept":          "text/html",
		"Accept-Language": "en",
		"Accept-Encoding": "gzip",
	}
	preview := map[string]string{"User-Agent": "Slackbot-LinkExpanding 1.0 (+https://api.slack.com/robots)"}

	assert.Equal(t, http.StatusFound, h.get(t, "/0001", 0, preview).Code)
	assert.Empty(t, h.clicks.msgs)

	assert.Equal(t, http.StatusFound, h.get(t, "/0001", 0, browser).Code)
	assert.Len(t, h.clicks.msgs, 1)
}
