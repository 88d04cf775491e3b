package redirect

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"codeberg.org/tinyurl/server/internal/auth"
	"codeberg.org/tinyurl/server/internal/botdefense"
	"codeberg.org/tinyurl/server/internal/errors"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
	"codeberg.org/tinyurl/server/internal/shortcode"
	"codeberg.org/tinyurl/server/tinyurl/clicks"
	"codeberg.org/tinyurl/server/tinyurl/urls"
)

// Redirect godoc
// @Summary Follow a short link
// @Description Redirects to the original URL and records the click. Private links require the owner's token.
// @Tags redirect
// @Param code path string true "Short code"
// @Success 302
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 410 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /{code} [get]
func Redirect(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		if !shortcode.Valid(code) {
			metrics.Redirects.WithLabelValues("not_found").Inc()
			errors.NotFound(c, "url")
			return
		}

		ctx := c.Request.Context()

		u, err := d.URLs.FindByCode(ctx, code)
		if stderrors.Is(err, urls.ErrNotFound) {
			metrics.Redirects.WithLabelValues("not_found").Inc()
			errors.NotFound(c, "url")
			return
		}

		if err != nil {
			metrics.Redirects.WithLabelValues("error").Inc()
			errors.InternalError(c, "failed to resolve url", err)
			return
		}

		now := time.Now().UTC()

		if u.Expired(now) {
			metrics.Redirects.WithLabelValues("expired").Inc()
			errors.Gone(c, "link expired")
			return
		}

		userID, authenticated := auth.GetUserID(c)

		if u.IsPrivate {
			if !authenticated {
				metrics.Redirects.WithLabelValues("denied").Inc()
				errors.Unauthorized(c, "this link is private")
				return
			}

			// a verification timeout is a 503, never a silent deny
			if err := d.Ownership.Require(ctx, u.ID, userID); err != nil {
				metrics.Redirects.WithLabelValues("denied").Inc()
				errors.Respond(c, "could not verify access to this link", err)
				return
			}
		}

		msg := clicks.Message{
			URLID:         u.ID,
			ShortCode:     u.ShortCode,
			Timestamp:     now,
			IPAddress:     c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
			Referrer:      c.Request.Referer(),
			CorrelationID: uuid.NewString(),
			Location:      location(c),
		}

		if authenticated {
			msg.UserID = &userID
		}

		// link previews and crawlers follow the link but are not visitors
		if botdefense.IsBot(c) {
			metrics.ClicksIngested.WithLabelValues("skipped_bot").Inc()
		} else {
			recordClick(d, msg)
		}

		metrics.Redirects.WithLabelValues("ok").Inc()
		c.Redirect(http.StatusFound, u.OriginalURL)
	}
}

// clicks are published in the background; losing one under overload is
// preferred over slowing the redirect down
func recordClick(d Deps, msg clicks.Message) {
	err := d.Tasks.Submit("publish-click", func(ctx context.Context) error {
		return d.Clicks.Publish(ctx, msg)
	})
	if err != nil {
		metrics.ClicksIngested.WithLabelValues("dropped").Inc()
		logger.Warn("click not recorded",
			"url_id", msg.URLID,
			"correlation_id", msg.CorrelationID,
			"reason", err.Error(),
		)
	}
}

func location(c *gin.Context) *clicks.Location {
	country := c.GetHeader(headerCountry)
	if country == "" || country == "XX" {
		return nil
	}

	return &clicks.Location{
		Country: country,
		City:    c.GetHeader(headerCity),
		Region:  c.GetHeader(headerRegion),
	}
}
