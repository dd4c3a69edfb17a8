package vizsession

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Morditux/vizsession/internal/flight"
)

// Factory constructs the session for id. The request is only valid for the
// duration of the call and must not be retained.
type Factory func(ctx context.Context, id string, r *http.Request) (*Session, error)

// StoreFactory returns a Factory that restores the payload persisted in store
// and falls back to an empty session when none exists.
func StoreFactory(store Store, ttl time.Duration) Factory {
	return func(ctx context.Context, id string, _ *http.Request) (*Session, error) {
		s, err := store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil || s.ExpiresAt.Before(time.Now()) {
			return newSession(id, ttl), nil
		}
		s.ID = id
		if s.Values == nil {
			s.Values = make(map[string]any)
		}
		return s, nil
	}
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Factory Factory
	Logger  *zerolog.Logger
	Metrics *Metrics
}

// Registry maps session identifiers to live sessions and is the only place
// sessions are created. Sessions are never evicted.
type Registry struct {
	sessions flight.Group[string, *Session]
	factory  Factory
	log      zerolog.Logger
	metrics  *Metrics
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		factory: cfg.Factory,
		log:     zerolog.Nop(),
		metrics: cfg.Metrics,
	}
	if cfg.Logger != nil {
		r.log = *cfg.Logger
	}
	return r
}

// ResolveOrCreate returns the session for id, constructing it if needed.
//
// Concurrent calls for the same id run the Factory once and all receive the
// same *Session. If construction fails every waiting caller receives an error
// wrapping ErrSessionCreation and the next call retries. Cancelling ctx stops
// this caller from waiting but does not abort a construction other callers
// may be waiting on.
func (reg *Registry) ResolveOrCreate(ctx context.Context, id string, r *http.Request) (*Session, error) {
	if s, ok := reg.sessions.Load(id); ok {
		reg.metrics.resolved("hit")
		return s, nil
	}

	s, err := reg.sessions.Do(ctx, id, func(ctx context.Context) (*Session, error) {
		s, err := reg.factory(ctx, id, r)
		if err == nil && s == nil {
			err = fmt.Errorf("factory returned no session")
		}
		if err != nil {
			reg.metrics.resolved("error")
			reg.log.Error().Err(err).Msg("session creation failed")
			return nil, fmt.Errorf("%w: %w", ErrSessionCreation, err)
		}
		reg.metrics.resolved("created")
		reg.log.Debug().Time("created_at", s.CreatedAt).Msg("session created")
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup returns the live session for id without creating it.
func (reg *Registry) Lookup(id string) (*Session, bool) {
	return reg.sessions.Load(id)
}

// Len reports the number of live sessions.
func (reg *Registry) Len() int {
	return reg.sessions.Len()
}
