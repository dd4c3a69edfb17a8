package vizsession

import (
	"context"
	"sync/atomic"
)

// Handle binds one request to its resolved session. It is created by
// Manager.OnRequestStart and must not be shared between requests.
type Handle struct {
	// RequestID correlates log lines of one request.
	RequestID string
	// SessionID is the identifier the session was resolved under.
	SessionID string
	// Generated is true when SessionID was minted for this request.
	Generated bool

	session *Session
	secure  bool // request arrived over TLS
	cleared atomic.Bool
}

// Session returns the session bound to the request.
func (h *Handle) Session() *Session {
	return h.session
}

// Cleared reports whether OnSessionClear ran for this handle.
func (h *Handle) Cleared() bool {
	return h.cleared.Load()
}

type handleKey struct{}

// NewContext returns a copy of ctx carrying h.
func NewContext(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// HandleFromContext returns the handle stored by Manager.Middleware.
func HandleFromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(*Handle)
	return h, ok
}
