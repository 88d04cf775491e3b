package urls

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/auth"
)

func RegisterRoutes(rg *gin.RouterGroup, d Deps) {
	urls := rg.Group("/urls")

	urls.GET("/:code", auth.OptionalAuthMiddleware(), GetURL(d))
	urls.POST("", auth.AuthMiddleware(), CreateURL(d))
	urls.PUT("/:code", auth.AuthMiddleware(), UpdateURL(d))
}
