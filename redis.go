package vizsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists session payloads in Redis with per-key expiry.
type RedisStore struct {
	redis           redis.UniversalClient
	prefix          string
	ttl             time.Duration
	maxSessionBytes int
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Client          redis.UniversalClient
	KeyPrefix       string
	TTL             time.Duration // used when a session has no ExpiresAt
	MaxSessionBytes int
}

// NewRedisStore creates a RedisStore on an existing client. The store does
// not own the client; Close leaves it open.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "vizsession"
	}
	return &RedisStore{
		redis:           cfg.Client,
		prefix:          prefix,
		ttl:             cfg.TTL,
		maxSessionBytes: cfg.MaxSessionBytes,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	if s.maxSessionBytes > 0 && len(data) > s.maxSessionBytes {
		return nil, ErrSessionTooLarge
	}

	return decodeEnvelope(id, data)
}

func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	ttl := s.ttl
	if !session.ExpiresAt.IsZero() {
		ttl = time.Until(session.ExpiresAt)
		if ttl <= 0 {
			return nil // Already expired
		}
	}

	data, release, err := encodeEnvelope(session)
	if err != nil {
		return err
	}
	defer release()

	if s.maxSessionBytes > 0 && len(data) > s.maxSessionBytes {
		return ErrSessionTooLarge
	}

	if err := s.redis.Set(ctx, s.key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Cleanup is a no-op: Redis expires keys itself.
func (s *RedisStore) Cleanup(ctx context.Context) error {
	return nil
}

func (s *RedisStore) Close() error {
	return nil
}
