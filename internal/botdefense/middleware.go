package botdefense

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
)

// gin context key holding the request's *BotSignals
const ctxSignals = "bot_signals"

// orchestrates all bot defense components
type Defense struct {
	config *Config
	store  *Store
}

// creates a new bot defense system
func New(config *Config, store *Store) *Defense {
	return &Defense{
		config: config,
		store:  store,
	}
}

// returns a Gin middleware that implements bot defense.
//
// Scanners hitting honeypots or probing paths are trapped and get 404s;
// trapped IPs are refused everywhere except exempt paths. Everything else
// passes, with its bot signals attached for IsBot.
func (d *Defense) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !d.config.Enabled {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		ip := c.ClientIP()
		path := c.Request.URL.Path

		// exempt paths bypass all checks
		if d.config.IsExemptPath(path) {
			c.Next()
			return
		}

		if d.config.IsHoneypotPath(path) {
			d.trap(c, ip, path, ReasonHoneypot)
			return
		}

		if IsSuspiciousPath(path) {
			d.trap(c, ip, path, ReasonSuspiciousPath)
			return
		}

		trapped, reason, err := d.store.IsTrapped(ctx, ip)
		if err != nil {
			logger.ErrorErr(err, "failed to check trapped status", "ip", ip)
		} else if trapped {
			logger.Debug("trapped IP request blocked", "ip", ip, "reason", reason)
			metrics.BotRequests.WithLabelValues("blocked").Inc()
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		signals := DetectBot(c.Request)
		c.Set(ctxSignals, signals)

		if signals.IsBot() {
			metrics.BotRequests.WithLabelValues("flagged").Inc()
			logger.Debug("bot-like request",
				"ip", ip,
				"path", path,
				"score", signals.Score,
				"pattern", signals.BotPatternMatch,
			)
		}

		c.Next()
	}
}

func (d *Defense) trap(c *gin.Context, ip, path string, reason TrapReason) {
	logger.Warn("bot trap triggered", "ip", ip, "path", path, "reason", reason)
	metrics.BotRequests.WithLabelValues(string(reason)).Inc()

	if err := d.store.TrapIP(c.Request.Context(), ip, reason); err != nil {
		logger.ErrorErr(err, "failed to trap IP", "ip", ip)
	}

	c.AbortWithStatus(http.StatusNotFound)
}

// reports whether the middleware flagged this request as automated.
// requests that never went through the middleware are not bots.
func IsBot(c *gin.Context) bool {
	v, ok := c.Get(ctxSignals)
	if !ok {
		return false
	}

	signals, ok := v.(*BotSignals)
	return ok && signals.IsBot()
}
