package vizsession

import (
	"context"
	"sync"
	"time"
)

// Session is the server-side state bound to one session identifier.
// A Session is created once by the Registry and shared by every request
// presenting the same identifier, so Values must be accessed through the
// locking accessors while requests are in flight.
type Session struct {
	ID        string
	Values    map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time

	mu      sync.Mutex
	encoded []byte // pre-encoded Values handed from Manager to Store during a save
}

func newSession(id string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Values:    make(map[string]any),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	s.Values[key] = value
}

// Delete removes key.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Values, key)
}

// Update runs fn with exclusive access to Values.
func (s *Session) Update(fn func(values map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	fn(s.Values)
}

// Clear wipes every value from the session.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.Values)
}

// Store persists session payloads. The Registry loads through Get when it
// first constructs a session; the Manager writes back through Save at the end
// of every request.
type Store interface {
	// Get retrieves a session by its ID. It returns nil, nil when no
	// unexpired session is stored.
	Get(ctx context.Context, id string) (*Session, error)
	// Save saves a session to the store.
	Save(ctx context.Context, s *Session) error
	// Cleanup removes expired sessions from the store.
	Cleanup(ctx context.Context) error
	// Close closes the store.
	Close() error
}
