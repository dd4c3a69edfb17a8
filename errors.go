package vizsession

import (
	"errors"
	"net/http"
)

// AuthError rejects a request before any application logic runs. Reason is
// safe to show to the client.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "session authentication rejected: " + e.Reason
}

// StatusCode is the HTTP status the transport should answer with.
func (e *AuthError) StatusCode() int {
	return http.StatusForbidden
}

var (
	// ErrNoSessionID is returned when a request carries no session id and
	// the server does not mint them.
	ErrNoSessionID = &AuthError{Reason: "no session id provided and generation disabled"}

	// ErrInvalidSignature is returned when a presented session id fails
	// signature verification or is malformed.
	ErrInvalidSignature = &AuthError{Reason: "invalid signature"}

	// ErrSessionCreation wraps failures of the session construction step.
	ErrSessionCreation = errors.New("session creation failed")

	// ErrSessionTooLarge is returned when the session data exceeds the configured MaxSessionBytes.
	ErrSessionTooLarge = errors.New("session data too large")

	// ErrSecretKeyRequired is returned when session signing is enabled
	// without a secret key.
	ErrSecretKeyRequired = errors.New("signing sessions requires a secret key")

	// ErrNoStore is returned by NewManager when Config.Store is nil.
	ErrNoStore = errors.New("session store is required")
)
