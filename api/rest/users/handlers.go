package users

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/auth"
	"codeberg.org/tinyurl/server/internal/errors"
	"codeberg.org/tinyurl/server/internal/lock"
	"codeberg.org/tinyurl/server/tinyurl/users"
)

// GetMe godoc
// @Summary Get the current user
// @Tags users
// @Produce json
// @Success 200 {object} users.User
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /api/v1/users/me [get]
// @Security BearerAuth
func GetMe(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c)
		if !ok {
			errors.Unauthorized(c, "user not authenticated")
			return
		}

		user, err := d.Users.FindByID(c.Request.Context(), userID)
		if stderrors.Is(err, users.ErrNotFound) {
			errors.NotFound(c, "user")
			return
		}

		if err != nil {
			errors.InternalError(c, "failed to load user", err)
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

// UpdateMe godoc
// @Summary Update the current user's profile
// @Description Concurrent updates of the same profile are serialized
// @Tags users
// @Accept json
// @Produce json
// @Param request body users.UpdateProfileRequest true "Profile data"
// @Success 200 {object} users.User
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /api/v1/users/me [put]
// @Security BearerAuth
func UpdateMe(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c)
		if !ok {
			errors.Unauthorized(c, "user not authenticated")
			return
		}

		var req users.UpdateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		var updated *users.User

		err := d.Locker.WithLock(c.Request.Context(), lock.UserKey(userID), d.LockTTL, func(ctx context.Context) error {
			current, err := d.Users.FindByID(ctx, userID)
			if err != nil {
				return err
			}

			name, avatar := current.Name, current.AvatarURL
			if req.Name != nil {
				name = *req.Name
			}
			if req.AvatarURL != nil {
				avatar = *req.AvatarURL
			}

			updated, err = d.Users.UpdateProfile(ctx, userID, name, avatar)
			return err
		})

		switch {
		case err == nil:
			c.JSON(http.StatusOK, updated)
		case stderrors.Is(err, users.ErrNotFound):
			errors.NotFound(c, "user")
		default:
			errors.Respond(c, "failed to update profile", err)
		}
	}
}
