package botdefense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const trapKeyPrefix = "botdefense:trap:"

// why an IP was trapped
type TrapReason string

const (
	ReasonHoneypot       TrapReason = "honeypot"
	ReasonSuspiciousPath TrapReason = "suspicious_path"
)

// trapped IPs in Redis, shared by every instance
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewStore(client redis.UniversalClient, config *Config) *Store {
	return &Store{client: client, ttl: config.TrapTTL}
}

// marks ip as trapped for the configured TTL
func (s *Store) TrapIP(ctx context.Context, ip string, reason TrapReason) error {
	if err := s.client.Set(ctx, trapKeyPrefix+ip, string(reason), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to trap %s: %w", ip, err)
	}

	return nil
}

// reports whether ip is trapped and why
func (s *Store) IsTrapped(ctx context.Context, ip string) (bool, TrapReason, error) {
	reason, err := s.client.Get(ctx, trapKeyPrefix+ip).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}

	if err != nil {
		return false, "", fmt.Errorf("failed to check trap for %s: %w", ip, err)
	}

	return true, TrapReason(reason), nil
}

// lifts a trap early
func (s *Store) Release(ctx context.Context, ip string) error {
	return s.client.Del(ctx, trapKeyPrefix+ip).Err()
}
