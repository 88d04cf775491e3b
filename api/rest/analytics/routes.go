package analytics

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/auth"
)

func RegisterRoutes(rg *gin.RouterGroup, d Deps) {
	analytics := rg.Group("/analytics/urls/:id")
	analytics.Use(auth.AuthMiddleware())

	analytics.GET("/daily", GetDaily(d))
	analytics.GET("/summary", GetSummary(d))
	analytics.GET("/latest", GetLatest(d))
}
