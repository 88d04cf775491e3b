package config

import "time"

// root configuration, populated from the environment by Load
type Config struct {
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Bus         BusConfig
	Timeouts    TimeoutConfig
	Cache       CacheConfig
	Aggregation AggregationConfig
	Tasks       TaskConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	BotDefense  BotDefenseConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT"                    env-default:"8080"`
	BaseURL         string        `env:"BASE_URL"                env-default:"http://localhost:8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT"    env-default:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS"    env-default:"http://localhost:3000" env-separator:","`
}

type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_URL"                env-required:"true"`
	MaxConns        int32         `env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"30m"`
	MaxConnIdleTime time.Duration `env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"5m"`
	RunMigrations   bool          `env:"DATABASE_RUN_MIGRATIONS"     env-default:"true"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" env-required:"true"`
}

// message bus settings. Driver is "kafka" or "memory".
type BusConfig struct {
	Driver     string   `env:"BUS_DRIVER"       env-default:"kafka"`
	Brokers    []string `env:"KAFKA_BROKERS"    env-default:"localhost:9092" env-separator:","`
	ClientID   string   `env:"KAFKA_CLIENT_ID"  env-default:"tinyurl"`
	GroupID    string   `env:"KAFKA_GROUP_ID"   env-default:"tinyurl"`
	InstanceID string   `env:"INSTANCE_ID"`

	OwnershipRequests  string `env:"TOPIC_OWNERSHIP_REQUESTS"  env-default:"ownership.requests"`
	OwnershipResponses string `env:"TOPIC_OWNERSHIP_RESPONSES" env-default:"ownership.responses"`
	AnalyticsRequests  string `env:"TOPIC_ANALYTICS_REQUESTS"  env-default:"analytics.data.requests"`
	AnalyticsResponses string `env:"TOPIC_ANALYTICS_RESPONSES" env-default:"analytics.data.responses"`
	ClickEvents        string `env:"TOPIC_CLICK_EVENTS"        env-default:"click.events"`
}

type TimeoutConfig struct {
	Ownership      time.Duration `env:"OWNERSHIP_TIMEOUT"       env-default:"10s"`
	AnalyticsFetch time.Duration `env:"ANALYTICS_FETCH_TIMEOUT" env-default:"30s"`
	LockAcquire    time.Duration `env:"LOCK_ACQUIRE_TIMEOUT"    env-default:"1s"`
	LockAttempts   int           `env:"LOCK_ATTEMPTS"           env-default:"3"`
	URLLockTTL     time.Duration `env:"URL_LOCK_TTL"            env-default:"30s"`
	UserLockTTL    time.Duration `env:"USER_LOCK_TTL"           env-default:"10s"`
}

type CacheConfig struct {
	OwnershipTTL  time.Duration `env:"OWNERSHIP_CACHE_TTL"  env-default:"5m"`
	OwnershipSize int           `env:"OWNERSHIP_CACHE_SIZE" env-default:"10000"`
	AnalyticsTTL  time.Duration `env:"ANALYTICS_CACHE_TTL"  env-default:"10m"`
	DedupeSize    int           `env:"REPLY_DEDUPE_SIZE"    env-default:"50000"`
}

type AggregationConfig struct {
	Enabled  bool          `env:"AGGREGATION_ENABLED"  env-default:"true"`
	Interval time.Duration `env:"AGGREGATION_INTERVAL" env-default:"24h"`
	Workers  int           `env:"AGGREGATION_WORKERS"  env-default:"8"`

	// how soon a failed day is attempted again
	RetryDelay time.Duration `env:"AGGREGATION_RETRY_DELAY" env-default:"15m"`
}

type TaskConfig struct {
	Workers    int     `env:"TASK_WORKERS"     env-default:"4"`
	QueueSize  int     `env:"TASK_QUEUE_SIZE"  env-default:"1024"`
	MaxRetries uint64  `env:"TASK_MAX_RETRIES" env-default:"5"`
	RatePerSec float64 `env:"TASK_RATE"        env-default:"200"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"       env-required:"true"`
	AdminKey  string `env:"ADMIN_API_KEY"`
}

type RateLimitConfig struct {
	Redirect string `env:"RATE_LIMIT_REDIRECT" env-default:"300-M"`
}

type BotDefenseConfig struct {
	Enabled bool          `env:"BOT_DEFENSE_ENABLED" env-default:"true"`
	TrapTTL time.Duration `env:"BOT_TRAP_TTL"        env-default:"24h"`
}
