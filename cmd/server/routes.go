package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/api/rest/admin"
	apianalytics "codeberg.org/tinyurl/server/api/rest/analytics"
	"codeberg.org/tinyurl/server/api/rest/health"
	"codeberg.org/tinyurl/server/api/rest/redirect"
	apiurls "codeberg.org/tinyurl/server/api/rest/urls"
	apiusers "codeberg.org/tinyurl/server/api/rest/users"
	"codeberg.org/tinyurl/server/api/websocket"
	"codeberg.org/tinyurl/server/internal/botdefense"
	"codeberg.org/tinyurl/server/internal/metrics"
	"codeberg.org/tinyurl/server/internal/ratelimit"
)

// URLs preloaded by the admin warm-up endpoint
const warmUpLimit = 100

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, s *Server) error {
	cfg := s.config

	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	defenseConfig := botdefense.DefaultConfig()
	defenseConfig.Enabled = cfg.BotDefense.Enabled
	defenseConfig.TrapTTL = cfg.BotDefense.TrapTTL
	router.Use(botdefense.New(defenseConfig, botdefense.NewStore(s.redis, defenseConfig)).Middleware())

	router.GET("/health", health.Handler(map[string]health.Checker{
		"postgres": s.db,
		"redis":    health.CheckerFunc(func(ctx context.Context) error { return s.redis.Ping(ctx).Err() }),
	}))
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/api/v1")

	{
		v1.GET("/ping", health.PingHandler)

		apiurls.RegisterRoutes(v1, apiurls.Deps{
			URLs:      s.urlRepo,
			Owners:    s.ownerRepo,
			Ownership: s.verifier,
			Locker:    s.locker,
			Tasks:     s.tasks,
			BaseURL:   cfg.Server.BaseURL,
			LockTTL:   cfg.Timeouts.URLLockTTL,
		})

		apiusers.RegisterRoutes(v1, apiusers.Deps{
			Users:   s.userRepo,
			Locker:  s.locker,
			LockTTL: cfg.Timeouts.UserLockTTL,
		})

		apianalytics.RegisterRoutes(v1, apianalytics.Deps{
			Stats:     s.cache,
			Ownership: s.verifier,
		})

		admin.RegisterRoutes(v1, admin.Deps{
			Analytics:   s.cache,
			Ownership:   s.verifier,
			Aggregator:  s.scheduler,
			Tables:      s.db,
			Key:         cfg.Auth.AdminKey,
			WarmUpLimit: warmUpLimit,
		})

		websocket.RegisterRoutes(v1, websocket.Deps{
			Hub:            s.hub,
			Ownership:      s.verifier,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		})
	}

	limiter, err := ratelimit.NewRedisLimiter(s.redis, cfg.RateLimit.Redirect, "redirect")
	if err != nil {
		return fmt.Errorf("failed to create redirect rate limiter: %w", err)
	}

	// registered last, the catch-all code param must not shadow the static routes above
	redirect.RegisterRoutes(router, redirect.Deps{
		URLs:      s.urlRepo,
		Ownership: s.verifier,
		Clicks:    s.clicks,
		Tasks:     s.tasks,
		RateLimit: ratelimit.Middleware("redirect", limiter),
	})

	return nil
}
