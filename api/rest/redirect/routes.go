package redirect

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/auth"
)

// registers GET /:code on the root router
func RegisterRoutes(r gin.IRoutes, d Deps) {
	handlers := []gin.HandlerFunc{}
	if d.RateLimit != nil {
		handlers = append(handlers, d.RateLimit)
	}

	handlers = append(handlers, auth.OptionalAuthMiddleware(), Redirect(d))

	r.GET("/:code", handlers...)
}
