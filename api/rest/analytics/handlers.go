package analytics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/analytics"
	"codeberg.org/tinyurl/server/internal/auth"
	"codeberg.org/tinyurl/server/internal/errors"
	"codeberg.org/tinyurl/server/tinyurl/stats"
)

// GetDaily godoc
// @Summary Get the click count of a URL for one day
// @Description Defaults to today (UTC). Days without clicks report zero.
// @Tags analytics
// @Produce json
// @Param id path int true "URL ID"
// @Param date query string false "Day as YYYY-MM-DD"
// @Success 200 {object} stats.DailyStat
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /api/v1/analytics/urls/{id}/daily [get]
// @Security BearerAuth
func GetDaily(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		urlID, ok := authorize(c, d)
		if !ok {
			return
		}

		date := analytics.DateOnly(time.Now())
		if raw := c.Query("date"); raw != "" {
			parsed, err := analytics.ParseDate(raw)
			if err != nil {
				errors.BadRequest(c, "date must be YYYY-MM-DD", err)
				return
			}
			date = parsed
		}

		stat, err := d.Stats.GetDailyStat(c.Request.Context(), urlID, date)
		if err != nil {
			errors.InternalError(c, "failed to load daily stats", err)
			return
		}

		if stat == nil {
			stat = &stats.DailyStat{URLID: urlID, Date: date}
		}

		c.JSON(http.StatusOK, stat)
	}
}

// GetSummary godoc
// @Summary Get the click totals of a URL
// @Tags analytics
// @Produce json
// @Param id path int true "URL ID"
// @Success 200 {object} stats.Summary
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /api/v1/analytics/urls/{id}/summary [get]
// @Security BearerAuth
func GetSummary(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		urlID, ok := authorize(c, d)
		if !ok {
			return
		}

		summary, err := d.Stats.GetSummary(c.Request.Context(), urlID)
		if err != nil {
			errors.InternalError(c, "failed to load summary", err)
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

// GetLatest godoc
// @Summary Get the daily click counts of the last seven days
// @Tags analytics
// @Produce json
// @Param id path int true "URL ID"
// @Success 200 {object} LatestResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /api/v1/analytics/urls/{id}/latest [get]
// @Security BearerAuth
func GetLatest(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		urlID, ok := authorize(c, d)
		if !ok {
			return
		}

		days, err := d.Stats.GetLatest(c.Request.Context(), urlID)
		if err != nil {
			errors.InternalError(c, "failed to load recent stats", err)
			return
		}

		c.JSON(http.StatusOK, LatestResponse{URLID: urlID, Days: days})
	}
}

// parses the url id and checks the caller owns it. writes the error response itself.
func authorize(c *gin.Context, d Deps) (int64, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		errors.Unauthorized(c, "user not authenticated")
		return 0, false
	}

	urlID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || urlID <= 0 {
		errors.BadRequest(c, "invalid url id", err)
		return 0, false
	}

	if err := d.Ownership.Require(c.Request.Context(), urlID, userID); err != nil {
		errors.Respond(c, "failed to verify ownership", err)
		return 0, false
	}

	return urlID, true
}
