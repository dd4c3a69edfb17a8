package vizsession

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RejectsWith403(t *testing.T) {
	mgr := newTestManager(t, Config{
		Server: ServerConfig{GenerateSessionIDs: false, SignSessions: true, SecretKey: testSecret},
	})

	called := false
	handler := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	tests := []struct {
		name   string
		req    *http.Request
		reason string
	}{
		{"no session id", httptest.NewRequest(http.MethodGet, "/", nil), "no session id provided and generation disabled"},
		{"bad signature", requestWithID("abc123.forged"), "invalid signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, tt.req)

			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, tt.reason, strings.TrimSpace(w.Body.String()))
		})
	}
	assert.False(t, called, "rejected requests must not reach the handler")
}

func TestMiddleware_ExposesHandleAndPersists(t *testing.T) {
	store := &mockStore{}
	mgr := newTestManager(t, Config{
		Server: ServerConfig{GenerateSessionIDs: true, SignSessions: true, SecretKey: testSecret},
		Store:  store,
	})
	id := SignSessionID("abc123", []byte(testSecret))

	handler := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := HandleFromContext(r.Context())
		require.True(t, ok)
		h.Session().Set("seen", true)
		io.WriteString(w, h.SessionID)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithID(id))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, w.Body.String())
	saved, ok := store.lastSaved(id)
	require.True(t, ok)
	assert.Equal(t, true, saved["seen"])
}

func TestMiddleware_PersistsWhenHandlerPanics(t *testing.T) {
	store := &mockStore{}
	mgr := newTestManager(t, Config{Server: DefaultServerConfig(), Store: store})

	handler := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, _ := HandleFromContext(r.Context())
		h.Session().Set("partial", 1)
		panic("render failed")
	}))

	assert.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), requestWithID("p"))
	})
	assert.Equal(t, int32(1), store.saves.Load())
}

func TestMiddleware_CreationFailureIs500(t *testing.T) {
	mgr := newTestManager(t, Config{
		Server: DefaultServerConfig(),
		Store:  &mockStore{getErr: errors.New("store down")},
	})

	handler := mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithID("id"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "store down")
}

func TestHandleFromContext_Missing(t *testing.T) {
	_, ok := HandleFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
