package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"codeberg.org/tinyurl/server/internal/analytics"
	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/internal/config"
	"codeberg.org/tinyurl/server/internal/lock"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
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

// creates and configures a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := storage.NewClient(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.RunMigrations {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	rdb, err := newRedis(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}

	b, err := newBus(ctx, cfg.Bus)
	if err != nil {
		rdb.Close() //nolint:errcheck,gosec // best-effort cleanup on init failure
		db.Close()
		return nil, err
	}

	pool := db.Pool()

	s := &Server{
		config:    cfg,
		db:        db,
		redis:     rdb,
		bus:       b,
		urlRepo:   urls.NewRepository(pool),
		userRepo:  users.NewRepository(pool),
		ownerRepo: owners.NewRepository(pool),
		clickRepo: clicks.NewRepository(pool),
		statsRepo: stats.NewRepository(pool),
		hub:       ws.NewHub(),
		clicks:    clicks.NewPublisher(b, cfg.Bus.ClickEvents),
	}

	ownershipTopics := ownership.Topics{
		Requests:  cfg.Bus.OwnershipRequests,
		Responses: cfg.Bus.OwnershipResponses,
	}

	s.verifier = ownership.NewVerifier(b, ownershipTopics, ownership.VerifierOptions{
		Timeout:   cfg.Timeouts.Ownership,
		CacheTTL:  cfg.Cache.OwnershipTTL,
		CacheSize: cfg.Cache.OwnershipSize,
	})

	s.responder, err = ownership.NewResponder(s.ownerRepo, b, ownershipTopics, cfg.Cache.DedupeSize)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create ownership responder: %w", err)
	}

	analyticsTopics := analytics.Topics{
		Requests:  cfg.Bus.AnalyticsRequests,
		Responses: cfg.Bus.AnalyticsResponses,
	}

	s.source = analytics.NewBusSource(b, analyticsTopics, cfg.Timeouts.AnalyticsFetch)
	s.sourceResponder = analytics.NewSourceResponder(s.clickRepo, b, analyticsTopics)
	s.cache = analytics.NewCacheManager(rdb, s.statsRepo, cfg.Cache.AnalyticsTTL)

	pipeline := analytics.NewPipeline(s.source, s.statsRepo, s.cache, analytics.PipelineOptions{
		Workers:      cfg.Aggregation.Workers,
		FetchTimeout: cfg.Timeouts.AnalyticsFetch,
	})
	s.scheduler = analytics.NewScheduler(pipeline, cfg.Aggregation.Interval, cfg.Aggregation.RetryDelay)

	s.locker = lock.NewLocker(lock.NewRedisStore(rdb), lock.Options{
		AcquireTimeout: cfg.Timeouts.LockAcquire,
		Attempts:       cfg.Timeouts.LockAttempts,
	})

	s.tasks = tasks.NewQueue(tasks.Options{
		Workers:    cfg.Tasks.Workers,
		QueueSize:  cfg.Tasks.QueueSize,
		MaxRetries: cfg.Tasks.MaxRetries,
		RatePerSec: cfg.Tasks.RatePerSec,
	})

	metrics.RegisterPendingGauge("ownership", s.verifier.Pending)
	metrics.RegisterPendingGauge("analytics", s.source.Pending)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Logger(), gin.Recovery())

	if err := RegisterRoutes(s.router, s); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// starts the background machinery: bus consumers, hub, task workers, scheduler
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run()
	s.tasks.Start()

	ingest := bus.NewRouter()
	ingest.Handle(s.config.Bus.ClickEvents, clicks.IngestHandler(s.clickRepo))

	group := s.config.Bus.GroupID
	instance := s.config.Bus.InstanceID

	subs := []bus.Subscription{
		// replies first so no answer to our own queries is missed
		s.verifier.ReplySubscription(group, instance),
		s.source.ReplySubscription(group, instance),
		s.responder.Subscription(group),
		s.sourceResponder.Subscription(group),
		{
			Group:   group + "-click-ingest",
			Topics:  ingest.Topics(),
			Handler: ingest.Handler(),
		},
		s.hub.FeedSubscription(group, instance, s.config.Bus.ClickEvents),
	}

	for _, sub := range subs {
		if err := s.bus.Subscribe(ctx, sub); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", sub.Group, err)
		}
	}

	if s.config.Aggregation.Enabled {
		s.scheduler.Start()
	}

	s.running = true

	logger.Info("background services started",
		"subscriptions", len(subs),
		"aggregation", s.config.Aggregation.Enabled,
		"instance_id", instance,
	)

	return nil
}

// stops background work and releases connections, most dependent first
func (s *Server) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if s.hub != nil {
		s.hub.Shutdown()
		if s.running {
			s.hub.Wait()
		}
	}

	// pending click publishes still need the bus
	if s.tasks != nil {
		s.tasks.Stop()
	}

	if s.verifier != nil {
		s.verifier.Close()
	}

	if s.source != nil {
		s.source.Close()
	}

	if err := s.bus.Close(); err != nil {
		logger.ErrorErr(err, "failed to close bus")
	}

	s.redis.Close() //nolint:errcheck,gosec // best-effort cleanup on shutdown
	s.db.Close()
}

func newRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck,gosec // best-effort cleanup on init failure
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("connected to redis", "addr", opts.Addr)

	return client, nil
}

func newBus(ctx context.Context, cfg config.BusConfig) (bus.Bus, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory bus, messages are not shared between instances")
		return bus.NewMemoryBus(), nil
	default:
		b, err := bus.NewKafkaBus(ctx, bus.KafkaConfig{
			Brokers:  cfg.Brokers,
			ClientID: cfg.ClientID,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}
