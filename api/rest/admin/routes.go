package admin

import (
	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/auth"
)

func RegisterRoutes(rg *gin.RouterGroup, d Deps) {
	admin := rg.Group("/admin")
	admin.Use(auth.AdminKeyMiddleware(d.Key))

	admin.DELETE("/cache/analytics/url/:urlId", InvalidateURL(d))
	admin.DELETE("/cache/analytics/all", InvalidateAll(d))
	admin.POST("/cache/warmup", WarmUp(d))
	admin.GET("/cache/stats", CacheStats(d))
	admin.DELETE("/cache/ownership/:urlId/:userId", EvictOwnership(d))
	admin.POST("/aggregation/run", RunAggregation(d))
	admin.GET("/db/stats", TableStats(d))
}
