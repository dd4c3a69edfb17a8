package vizsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedStore persists session payloads in Memcached. Expiry is left to
// Memcached, so Cleanup does nothing.
type MemcachedStore struct {
	client          *memcache.Client
	ttl             time.Duration
	keyPrefix       string
	maxSessionBytes int
}

// MemcachedConfig holds configuration for the Memcached store.
type MemcachedConfig struct {
	Servers         []string
	TTL             time.Duration
	KeyPrefix       string
	MaxSessionBytes int
	Timeout         time.Duration // Timeout for Memcached operations. 0 means no timeout.
}

// NewMemcachedStore creates a new MemcachedStore with a 1s operation timeout.
func NewMemcachedStore(ttl time.Duration, servers ...string) *MemcachedStore {
	return NewMemcachedStoreWithConfig(MemcachedConfig{
		Servers: servers,
		TTL:     ttl,
		Timeout: 1 * time.Second,
	})
}

// NewMemcachedStoreWithConfig creates a new MemcachedStore with custom configuration.
func NewMemcachedStoreWithConfig(cfg MemcachedConfig) *MemcachedStore {
	client := memcache.New(cfg.Servers...)
	client.Timeout = cfg.Timeout

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "vizsession:"
	}

	return &MemcachedStore{
		client:          client,
		ttl:             cfg.TTL,
		keyPrefix:       prefix,
		maxSessionBytes: cfg.MaxSessionBytes,
	}
}

func (s *MemcachedStore) key(id string) string {
	return s.keyPrefix + id
}

// Get retrieves a session from Memcached.
func (s *MemcachedStore) Get(ctx context.Context, id string) (*Session, error) {
	item, err := s.client.Get(s.key(id))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from memcached: %w", err)
	}

	if s.maxSessionBytes > 0 && len(item.Value) > s.maxSessionBytes {
		return nil, ErrSessionTooLarge
	}

	session, err := decodeEnvelope(id, item.Value)
	if err != nil {
		return nil, err
	}

	// Memcached expiry is lazy; never hand out an expired session.
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	return session, nil
}

// Save stores a session in Memcached.
func (s *MemcachedStore) Save(ctx context.Context, session *Session) error {
	if !session.ExpiresAt.IsZero() && time.Until(session.ExpiresAt) <= 0 {
		return nil // Already expired
	}

	data, release, err := encodeEnvelope(session)
	if err != nil {
		return err
	}
	defer release()

	if s.maxSessionBytes > 0 && len(data) > s.maxSessionBytes {
		return ErrSessionTooLarge
	}

	err = s.client.Set(&memcache.Item{
		Key:        s.key(session.ID),
		Value:      data,
		Expiration: calculateMemcachedExpiration(time.Now(), session.ExpiresAt, s.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to save to memcached: %w", err)
	}
	return nil
}

// Cleanup is a no-op for Memcached as it handles expiration automatically.
func (s *MemcachedStore) Cleanup(ctx context.Context) error {
	return nil
}

// Close releases idle connections.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}

// calculateMemcachedExpiration calculates the expiration value for Memcached.
// Memcached treats values > 30 days (60*60*24*30 seconds) as absolute Unix timestamps.
// Values <= 30 days are treated as a delta from the current time.
func calculateMemcachedExpiration(now time.Time, expiresAt time.Time, ttl time.Duration) int32 {
	const maxDelta = 30 * 24 * 60 * 60 // 30 days in seconds

	var duration time.Duration
	if !expiresAt.IsZero() {
		duration = expiresAt.Sub(now)
	} else {
		duration = ttl
	}

	// A delta above 30 days would be read as a timestamp in 1970.
	if duration > maxDelta*time.Second {
		if !expiresAt.IsZero() {
			return int32(expiresAt.Unix())
		}
		return int32(now.Add(ttl).Unix())
	}

	if duration < 0 {
		return 0
	}
	return int32(duration.Seconds())
}
