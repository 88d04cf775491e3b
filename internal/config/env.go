package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// loads configuration from .env (if present) and the process environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if cfg.Bus.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "local"
		}
		cfg.Bus.InstanceID = host
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// checks values cleanenv cannot express with tags
func (c *Config) Validate() error {
	switch c.Bus.Driver {
	case "kafka":
		if len(c.Bus.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when BUS_DRIVER=kafka")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown BUS_DRIVER %q", c.Bus.Driver)
	}

	if c.Timeouts.LockAttempts < 1 {
		return fmt.Errorf("LOCK_ATTEMPTS must be at least 1")
	}

	if c.Timeouts.Ownership <= 0 || c.Timeouts.AnalyticsFetch <= 0 {
		return fmt.Errorf("request/reply timeouts must be positive")
	}

	if c.Aggregation.Workers < 1 {
		return fmt.Errorf("AGGREGATION_WORKERS must be at least 1")
	}

	if c.Tasks.Workers < 1 || c.Tasks.QueueSize < 1 {
		return fmt.Errorf("TASK_WORKERS and TASK_QUEUE_SIZE must be at least 1")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
