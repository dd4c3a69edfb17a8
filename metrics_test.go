package vizsession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	mgr := newTestManager(t, Config{
		Server:  ServerConfig{GenerateSessionIDs: false, SignSessions: true, SecretKey: testSecret},
		Metrics: metrics,
	})
	id := SignSessionID("abc123", []byte(testSecret))

	_, err := mgr.OnRequestStart(requestWithID(id))
	require.NoError(t, err)
	_, err = mgr.OnRequestStart(requestWithID(id))
	require.NoError(t, err)
	_, err = mgr.OnRequestStart(requestWithID("abc123.bad"))
	require.Error(t, err)
	_, err = mgr.OnRequestStart(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutions.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutions.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections.WithLabelValues("invalid_signature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections.WithLabelValues("no_session_id")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.liveSessions))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.resolved("hit")
		m.rejected("invalid_signature")
		m.persistFailed()
	})

	mgr := newTestManager(t, Config{Server: DefaultServerConfig()})
	h, err := mgr.OnRequestStart(requestWithID("id"))
	require.NoError(t, err)
	assert.NotPanics(t, func() { mgr.OnRequestEnd(context.Background(), h) })
}

func TestNewMetrics_Unregistered(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(nil)
		NewMetrics(nil)
	})
}
