package ratelimit

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	apierrors "codeberg.org/tinyurl/server/internal/errors"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
)

// creates a per-client-IP limiter shared by every instance through redis.
// rate uses the "<limit>-<period>" format, e.g. "300-M".
func NewRedisLimiter(client redis.UniversalClient, rate, prefix string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   "ratelimit:" + prefix,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}

	return limiter.New(store, r, limiter.WithTrustForwardHeader(true)), nil
}

// creates a limiter local to this process
func NewMemoryLimiter(rate string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	return limiter.New(memory.NewStore(), r), nil
}

// gin middleware enforcing l per client IP. name labels metrics and logs.
// when the store is unreachable requests are let through.
func Middleware(name string, l *limiter.Limiter) gin.HandlerFunc {
	mw := mgin.NewMiddleware(l,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			metrics.RateLimited.WithLabelValues(name).Inc()
			logger.Debug("rate limit reached", "limiter", name, "ip", c.ClientIP())
			c.Header("Retry-After", strconv.FormatInt(int64(l.Rate.Period.Seconds()), 10))
			apierrors.TooManyRequests(c, "")
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.WarnErr(err, "rate limiter unavailable, allowing request", "limiter", name)
			c.Next()
		}),
	)

	return mw
}
