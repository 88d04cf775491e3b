package users

import (
	"errors"
	"time"

	"codeberg.org/tinyurl/server/internal/storage"
)

var ErrNotFound = errors.New("user not found")

// handles user database operations
type Repository struct {
	db storage.DBTX
}

// an account that can own URLs
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// contains data for updating a user's profile; nil keeps the current value
type UpdateProfileRequest struct {
	Name      *string `json:"name"       binding:"omitempty,max=100"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,url"`
}
