package urls

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/auth"
	"codeberg.org/tinyurl/server/internal/errors"
	"codeberg.org/tinyurl/server/internal/lock"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/shortcode"
	"codeberg.org/tinyurl/server/tinyurl/urls"
)

// CreateURL godoc
// @Summary Shorten a URL
// @Description Creates a short link owned by the authenticated user
// @Tags urls
// @Accept json
// @Produce json
// @Param request body CreateURLRequest true "URL data"
// @Success 201 {object} URLResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /api/v1/urls [post]
// @Security BearerAuth
func CreateURL(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c)
		if !ok {
			errors.Unauthorized(c, "")
			return
		}

		var req CreateURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
			errors.BadRequest(c, "expires_at must be in the future", nil)
			return
		}

		ctx := c.Request.Context()

		id, err := d.URLs.NextID(ctx)
		if err != nil {
			errors.InternalError(c, "failed to create url", err)
			return
		}

		u, err := d.URLs.Create(ctx, id, urls.CreateParams{
			ShortCode:   shortcode.Encode(id),
			OriginalURL: req.OriginalURL,
			Title:       req.Title,
			IsPrivate:   req.IsPrivate,
			CreatedBy:   userID,
			ExpiresAt:   req.ExpiresAt,
		})
		if err != nil {
			errors.InternalError(c, "failed to create url", err)
			return
		}

		assignOwner(ctx, d, u.ID, userID)

		c.JSON(http.StatusCreated, d.response(u))
	}
}

// the owner index is written in the background; when the queue can't take
// the task it is written inline so no URL is left without an owner
func assignOwner(ctx context.Context, d Deps, urlID, userID int64) {
	task := func(ctx context.Context) error {
		return d.Owners.Assign(ctx, urlID, userID)
	}

	err := d.Tasks.Submit("assign-owner", task)
	if err == nil {
		return
	}

	logger.Warn("task queue unavailable, assigning owner inline",
		"url_id", urlID,
		"user_id", userID,
		"reason", err.Error(),
	)

	if err := task(context.WithoutCancel(ctx)); err != nil {
		logger.ErrorErr(err, "failed to assign url owner", "url_id", urlID, "user_id", userID)
	}
}

// GetURL godoc
// @Summary Get a short link
// @Description Returns the short link. Private links are only visible to their owner.
// @Tags urls
// @Produce json
// @Param code path string true "Short code"
// @Success 200 {object} URLResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /api/v1/urls/{code} [get]
func GetURL(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		if !shortcode.Valid(code) {
			errors.NotFound(c, "url")
			return
		}

		u, err := d.URLs.FindByCode(c.Request.Context(), code)
		if stderrors.Is(err, urls.ErrNotFound) {
			errors.NotFound(c, "url")
			return
		}

		if err != nil {
			errors.InternalError(c, "failed to load url", err)
			return
		}

		if u.IsPrivate {
			userID, ok := auth.GetUserID(c)
			if !ok {
				errors.Unauthorized(c, "")
				return
			}

			if err := d.Ownership.Require(c.Request.Context(), u.ID, userID); err != nil {
				errors.Respond(c, "failed to verify ownership", err)
				return
			}
		}

		c.JSON(http.StatusOK, d.response(u))
	}
}

// UpdateURL godoc
// @Summary Update short link metadata
// @Description Owner-only. Changes are serialized per short code.
// @Tags urls
// @Accept json
// @Produce json
// @Param code path string true "Short code"
// @Param request body UpdateURLRequest true "Fields to change"
// @Success 200 {object} URLResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /api/v1/urls/{code} [put]
// @Security BearerAuth
func UpdateURL(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c)
		if !ok {
			errors.Unauthorized(c, "")
			return
		}

		code := c.Param("code")
		if !shortcode.Valid(code) {
			errors.NotFound(c, "url")
			return
		}

		var req UpdateURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		ctx := c.Request.Context()

		existing, err := d.URLs.FindByCode(ctx, code)
		if stderrors.Is(err, urls.ErrNotFound) {
			errors.NotFound(c, "url")
			return
		}

		if err != nil {
			errors.InternalError(c, "failed to load url", err)
			return
		}

		// checked before locking so the lock is never held across a bus round trip
		if err := d.Ownership.Require(ctx, existing.ID, userID); err != nil {
			errors.Respond(c, "failed to verify ownership", err)
			return
		}

		params := urls.UpdateParams{
			OriginalURL: req.OriginalURL,
			Title:       req.Title,
			IsPrivate:   req.IsPrivate,
			ExpiresAt:   req.ExpiresAt,
		}

		var updated *urls.URL

		err = d.Locker.WithLock(ctx, lock.URLKey(code), d.LockTTL, func(ctx context.Context) error {
			current, err := d.URLs.FindByCode(ctx, code)
			if err != nil {
				return err
			}

			params.Apply(current)

			updated, err = d.URLs.Update(ctx, current)
			return err
		})

		switch {
		case err == nil:
			c.JSON(http.StatusOK, d.response(updated))
		case stderrors.Is(err, urls.ErrNotFound):
			errors.NotFound(c, "url")
		default:
			errors.Respond(c, "failed to update url", err)
		}
	}
}

func (d Deps) response(u *urls.URL) URLResponse {
	return URLResponse{
		URL:      u,
		ShortURL: strings.TrimRight(d.BaseURL, "/") + "/" + u.ShortCode,
	}
}
