package vizsession

import (
	"context"
	"errors"
	"net/http"
)

// Middleware runs the session lifecycle around next. Rejected requests are
// answered with 403 and the rejection reason; the handle is available to next
// through HandleFromContext. The session is persisted after next returns,
// including when next panics.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := m.OnRequestStart(r)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.Reason, authErr.StatusCode())
				return
			}
			m.log.Error().Err(err).Msg("failed to resolve session")
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}

		// Persist even if the client went away mid-request.
		defer m.OnRequestEnd(context.WithoutCancel(r.Context()), h)

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), h)))
	})
}
