package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/logger"
)

const (
	serviceName  = "tinyurl"
	version      = "1.0.0"
	checkTimeout = 2 * time.Second
)

// Handler godoc
// @Summary Health check
// @Description Probes every registered dependency. Any failure reports 503.
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /health [get]
func Handler(checks map[string]Checker) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		resp := Response{
			Status:  "healthy",
			Service: serviceName,
			Version: version,
		}
		status := http.StatusOK

		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}

		for _, name := range names {
			if err := checks[name].Ping(ctx); err != nil {
				logger.WarnErr(err, "health check failed", "check", name)
				resp.Checks[name] = "down"
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}

		c.JSON(status, resp)
	}
}

// PingHandler godoc
// @Summary Ping
// @Tags health
// @Produce json
// @Success 200 {object} PingResponse
// @Router /api/v1/ping [get]
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Message: "pong"})
}
