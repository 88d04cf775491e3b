package websocket

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/auth"
)

func RegisterRoutes(rg *gin.RouterGroup, d Deps) {
	rg.GET("/ws/clicks", auth.OptionalAuthMiddleware(), ClickFeedHandler(d))
}
