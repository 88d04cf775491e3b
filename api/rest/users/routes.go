package users

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/auth"
)

func RegisterRoutes(rg *gin.RouterGroup, d Deps) {
	users := rg.Group("/users")
	users.Use(auth.AuthMiddleware()) // all user routes require authentication

	users.GET("/me", GetMe(d))
	users.PUT("/me", UpdateMe(d))
}
