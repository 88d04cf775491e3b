package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	// gin context keys set by the middlewares
	ctxUserID    = "user_id"
	ctxUserEmail = "user_email"

	// header carrying the admin API key
	AdminKeyHeader = "X-Admin-Key"

	tokenTTL = 7 * 24 * 60 * 60 // seconds
)

// represents JWT claims
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
