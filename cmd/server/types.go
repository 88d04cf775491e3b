package main

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"codeberg.org/tinyurl/server/internal/analytics"
	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/internal/config"
	"codeberg.org/tinyurl/server/internal/lock"
	"codeberg.org/tinyurl/server/internal/ownership"
	"codeberg.org/tinyurl/server/internal/storage"
	"codeberg.org/tinyurl/server/internal/tasks"
	ws "codeberg.org/tinyurl/server/internal/websocket"
	"codeberg.org/tinyurl/server/tinyurl/clicks"
	"codeberg.org/tinyurl/server/tinyurl/owners"
	"codeberg.org/tinyurl/server/tinyurl/stats"
	"codeberg.org/tinyurl/server/tinyurl/urls"
	"codeberg.org/tinyurl/server/tinyurl/users"
)

// holds all dependencies and state for the API server
type Server struct {
	config *config.Config
	db     *storage.Client
	redis  *redis.Client
	bus    bus.Bus
	router *gin.Engine

	urlRepo   *urls.Repository
	userRepo  *users.Repository
	ownerRepo *owners.Repository
	clickRepo *clicks.Repository
	statsRepo *stats.Repository

	verifier  *ownership.Verifier
	responder *ownership.Responder

	source          *analytics.BusSource
	sourceResponder *analytics.SourceResponder
	cache           *analytics.CacheManager
	scheduler       *analytics.Scheduler

	locker *lock.Locker
	tasks  *tasks.Queue
	hub    *ws.Hub
	clicks *clicks.Publisher

	// set once Start has launched the background goroutines
	running bool
}
