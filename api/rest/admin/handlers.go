package admin

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/analytics"
	"codeberg.org/tinyurl/server/internal/logger"
)

// InvalidateURL godoc
// @Summary Drop the cached analytics of one URL
// @Tags admin
// @Produce plain
// @Param urlId path int true "URL ID"
// @Success 200 {string} string
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Router /api/v1/admin/cache/analytics/url/{urlId} [delete]
// @Security AdminKeyAuth
func InvalidateURL(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		urlID, err := strconv.ParseInt(c.Param("urlId"), 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "Invalid url id: %s", c.Param("urlId"))
			return
		}

		logger.Info("manual cache invalidation", "url_id", urlID)

		if err := d.Analytics.InvalidateURL(c.Request.Context(), urlID); err != nil {
			logger.ErrorErr(err, "failed to invalidate url cache", "url_id", urlID)
			c.String(http.StatusInternalServerError, "Error invalidating cache: %v", err)
			return
		}

		c.String(http.StatusOK, "Cache invalidated for URL: %d", urlID)
	}
}

// InvalidateAll godoc
// @Summary Drop every cached analytics entry
// @Tags admin
// @Produce plain
// @Success 200 {string} string
// @Failure 500 {string} string
// @Router /api/v1/admin/cache/analytics/all [delete]
// @Security AdminKeyAuth
func InvalidateAll(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.Info("manual invalidation of all analytics caches")

		if err := d.Analytics.InvalidateAll(c.Request.Context()); err != nil {
			logger.ErrorErr(err, "failed to invalidate analytics caches")
			c.String(http.StatusInternalServerError, "Error invalidating caches: %v", err)
			return
		}

		c.String(http.StatusOK, "All analytics caches invalidated")
	}
}

// WarmUp godoc
// @Summary Preload the caches of recently active URLs
// @Tags admin
// @Produce plain
// @Success 200 {string} string
// @Failure 500 {string} string
// @Router /api/v1/admin/cache/warmup [post]
// @Security AdminKeyAuth
func WarmUp(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := d.Analytics.WarmUp(c.Request.Context(), d.WarmUpLimit)
		if err != nil {
			logger.ErrorErr(err, "cache warm-up failed", "warmed", n)
			c.String(http.StatusInternalServerError, "Error during cache warm-up: %v", err)
			return
		}

		logger.Info("cache warm-up completed", "warmed", n)
		c.String(http.StatusOK, "Cache warm-up completed: %d URLs", n)
	}
}

// CacheStats godoc
// @Summary Report cache entry counts
// @Tags admin
// @Produce plain
// @Success 200 {string} string
// @Failure 500 {string} string
// @Router /api/v1/admin/cache/stats [get]
// @Security AdminKeyAuth
func CacheStats(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := d.Analytics.Stats(c.Request.Context())
		if err != nil {
			logger.ErrorErr(err, "failed to read cache statistics")
			c.String(http.StatusInternalServerError, "Error getting cache statistics: %v", err)
			return
		}

		ownershipEntries := d.Ownership.CacheLen()

		logger.Info("cache statistics",
			"daily", s.Daily,
			"summary", s.Summary,
			"latest", s.Latest,
			"total", s.Total,
			"ownership", ownershipEntries,
		)

		c.String(http.StatusOK, "analytics: daily=%d summary=%d latest=%d total=%d\nownership: entries=%d",
			s.Daily, s.Summary, s.Latest, s.Total, ownershipEntries)
	}
}

// EvictOwnership godoc
// @Summary Forget one cached ownership answer
// @Tags admin
// @Produce plain
// @Param urlId path int true "URL ID"
// @Param userId path int true "User ID"
// @Success 200 {string} string
// @Failure 400 {string} string
// @Router /api/v1/admin/cache/ownership/{urlId}/{userId} [delete]
// @Security AdminKeyAuth
func EvictOwnership(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		urlID, err1 := strconv.ParseInt(c.Param("urlId"), 10, 64)
		userID, err2 := strconv.ParseInt(c.Param("userId"), 10, 64)
		if err1 != nil || err2 != nil {
			c.String(http.StatusBadRequest, "Invalid url or user id")
			return
		}

		removed := d.Ownership.Evict(urlID, userID)
		logger.Info("manual ownership cache invalidation", "url_id", urlID, "user_id", userID, "removed", removed)

		c.String(http.StatusOK, "URL ownership cache invalidated for URL: %d and user: %d", urlID, userID)
	}
}

// RunAggregation godoc
// @Summary Run the daily click aggregation now
// @Description Defaults to yesterday (UTC)
// @Tags admin
// @Produce plain
// @Param date query string false "Day as YYYY-MM-DD"
// @Success 200 {string} string
// @Failure 400 {string} string
// @Failure 500 {string} string
// @Router /api/v1/admin/aggregation/run [post]
// @Security AdminKeyAuth
func RunAggregation(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		date := analytics.DateOnly(time.Now()).AddDate(0, 0, -1)
		if raw := c.Query("date"); raw != "" {
			parsed, err := analytics.ParseDate(raw)
			if err != nil {
				c.String(http.StatusBadRequest, "Invalid date %q, expected YYYY-MM-DD", raw)
				return
			}
			date = parsed
		}

		res, err := d.Aggregator.RunNow(c.Request.Context(), date)
		if err != nil {
			logger.ErrorErr(err, "manual aggregation failed", "date", analytics.FormatDate(date))
			c.String(http.StatusInternalServerError, "Error running aggregation: %v", err)
			return
		}

		c.String(http.StatusOK,
			"Aggregation completed for %s: %d events, %d urls (%d processed, %d skipped, %d failed), %d clicks applied",
			analytics.FormatDate(res.Date), res.Events, res.URLs, res.Processed, res.Skipped, res.Failed, res.Applied,
		)
	}
}

// TableStats godoc
// @Summary Report row counts of the main tables
// @Tags admin
// @Produce plain
// @Success 200 {string} string
// @Failure 500 {string} string
// @Router /api/v1/admin/db/stats [get]
// @Security AdminKeyAuth
func TableStats(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := d.Tables.TableCounts(c.Request.Context())
		if err != nil {
			logger.ErrorErr(err, "failed to count table rows")
			c.String(http.StatusInternalServerError, "Error counting rows: %v", err)
			return
		}

		tables := make([]string, 0, len(counts))
		for t := range counts {
			tables = append(tables, t)
		}
		sort.Strings(tables)

		var b strings.Builder
		for i, t := range tables {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%s=%d", t, counts[t])
		}

		c.String(http.StatusOK, "%s", b.String())
	}
}
