package vizsession

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionIDParam is the request parameter carrying the session identifier.
const SessionIDParam = "bokeh-session-id"

// minSecretKeyLength is the shortest secret key accepted without a warning.
const minSecretKeyLength = 32

// Manager implements the per-request session lifecycle: OnRequestStart
// before a handler runs, OnRequestEnd after it, and OnSessionClear when the
// client logs out.
type Manager struct {
	server          ServerConfig
	secretKey       []byte
	store           Store
	registry        *Registry
	ttl             time.Duration
	cookie          string
	cookiePath      string
	cookieDomain    string
	cleanup         time.Duration
	saveTimeout     time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
	httpOnly        bool
	secure          *bool
	sameSite        http.SameSite
	maxSessionBytes int
	log             zerolog.Logger
	metrics         *Metrics
}

// NewManager validates cfg and starts the background cleanup of expired
// persisted sessions.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if err := cfg.Server.Validate(); err != nil {
		return nil, err
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.SaveTimeout == 0 {
		cfg.SaveTimeout = 5 * time.Second
	}
	if cfg.Factory == nil {
		cfg.Factory = StoreFactory(cfg.Store, cfg.TTL)
	}

	m := &Manager{
		server:          cfg.Server,
		secretKey:       []byte(cfg.Server.SecretKey),
		store:           cfg.Store,
		ttl:             cfg.TTL,
		cookie:          cfg.CookieName,
		cookiePath:      cfg.CookiePath,
		cookieDomain:    cfg.CookieDomain,
		cleanup:         cfg.CleanupInterval,
		saveTimeout:     cfg.SaveTimeout,
		stopChan:        make(chan struct{}),
		httpOnly:        true, // Default
		secure:          cfg.Secure,
		sameSite:        http.SameSiteLaxMode, // Default
		maxSessionBytes: cfg.MaxSessionBytes,
		log:             zerolog.Nop(),
		metrics:         cfg.Metrics,
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}

	if cfg.HttpOnly != nil {
		m.httpOnly = *cfg.HttpOnly
	}

	if cfg.SameSite != 0 {
		m.sameSite = cfg.SameSite
	}

	// Browsers reject SameSite=None cookies without the Secure attribute.
	if m.sameSite == http.SameSiteNoneMode {
		secure := true
		m.secure = &secure
	}

	if m.server.SignSessions && len(m.secretKey) < minSecretKeyLength {
		m.log.Warn().Int("length", len(m.secretKey)).Msg("session secret key is shorter than 32 bytes")
	}

	m.registry = NewRegistry(RegistryConfig{
		Factory: cfg.Factory,
		Logger:  &m.log,
		Metrics: cfg.Metrics,
	})

	go m.cleanupWorker()

	return m, nil
}

func (m *Manager) cleanupWorker() {
	ticker := time.NewTicker(m.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := m.store.Cleanup(ctx); err != nil {
				m.log.Warn().Err(err).Msg("failed to clean up expired sessions")
			}
			cancel()
		case <-m.stopChan:
			return
		}
	}
}

// Close stops the cleanup worker and closes the store.
func (m *Manager) Close() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stopChan)
		err = m.store.Close()
	})
	return err
}

// Registry returns the registry holding the manager's live sessions.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// OnRequestStart authenticates r and binds it to its session.
//
// Without a session id the request is either given a fresh one or rejected
// with ErrNoSessionID, depending on the server policy. A presented id that
// fails verification is rejected with ErrInvalidSignature. Rejections happen
// before any session is created.
func (m *Manager) OnRequestStart(r *http.Request) (*Handle, error) {
	h := &Handle{
		RequestID: uuid.NewString(),
		secure:    r.TLS != nil,
	}
	log := m.log.With().Str("request_id", h.RequestID).Logger()

	id := r.FormValue(SessionIDParam)
	switch {
	case id == "":
		if !m.server.GenerateSessionIDs {
			m.metrics.rejected("no_session_id")
			log.Warn().Str("reason", ErrNoSessionID.Reason).Msg("session rejected")
			return nil, ErrNoSessionID
		}
		generated, err := GenerateSessionID(m.secretKey, m.server.SignSessions)
		if err != nil {
			return nil, fmt.Errorf("failed to generate session id: %w", err)
		}
		id = generated
		h.Generated = true
	case !CheckSessionIDSignature(id, m.secretKey, m.server.SignSessions):
		m.metrics.rejected("invalid_signature")
		log.Warn().Str("reason", ErrInvalidSignature.Reason).Msg("session rejected")
		return nil, ErrInvalidSignature
	}

	s, err := m.registry.ResolveOrCreate(r.Context(), id, r)
	if err != nil {
		return nil, err
	}

	h.SessionID = id
	h.session = s
	return h, nil
}

// OnRequestEnd persists the session bound to h. Failures are logged and
// otherwise ignored: the in-memory session stays authoritative.
func (m *Manager) OnRequestEnd(ctx context.Context, h *Handle) {
	if h == nil || h.session == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.saveTimeout)
	defer cancel()

	if err := m.save(ctx, h.session); err != nil {
		m.metrics.persistFailed()
		m.log.Error().Err(err).Str("request_id", h.RequestID).Msg("failed to persist session")
	}
}

// OnSessionClear wipes the session payload and expires the client cookie.
// Only the first call per handle has an effect.
func (m *Manager) OnSessionClear(w http.ResponseWriter, h *Handle) {
	if h == nil || !h.cleared.CompareAndSwap(false, true) {
		return
	}

	if h.session != nil {
		h.session.Clear()
	}

	secure := h.secure
	if m.secure != nil {
		secure = *m.secure
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     m.cookiePath,
		Domain:   m.cookieDomain,
		MaxAge:   -1,
		HttpOnly: m.httpOnly,
		Secure:   secure,
		SameSite: m.sameSite,
	})
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	// Hold the session lock so concurrent Set/Delete calls from other
	// requests cannot race the encoding below.
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ExpiresAt = time.Now().Add(m.ttl)

	// Skip encoding empty sessions.
	if m.maxSessionBytes > 0 && len(s.Values) > 0 {
		buf := bufferPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer PutBuffer(buf)

		if err := gob.NewEncoder(buf).Encode(s.Values); err != nil {
			return err
		}

		if buf.Len() > m.maxSessionBytes {
			return ErrSessionTooLarge
		}

		// The store consumes encoded synchronously; it is cleared before buf
		// returns to the pool.
		s.encoded = buf.Bytes()
	}

	err := m.store.Save(ctx, s)
	s.encoded = nil
	return err
}
