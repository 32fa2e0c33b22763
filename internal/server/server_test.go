package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devrev/shopcore/internal/config"
	"github.com/devrev/shopcore/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *engine.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Store.LatencyMin = 0
	cfg.Store.LatencyMax = 0
	if mutate != nil {
		mutate(cfg)
	}
	e, err := engine.New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	return NewServer(cfg, e, zap.NewNop()), e
}

func get(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Probes(t *testing.T) {
	s, e := newTestServer(t, nil)
	e.Health.RunChecks(context.Background())

	assert.Equal(t, http.StatusOK, get(s, "/health/live").Code)

	ready := get(s, "/health/ready")
	assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, ready.Code)
	assert.Contains(t, ready.Body.String(), `"checks"`)

	e.Health.SetReadiness(false)
	assert.Equal(t, http.StatusServiceUnavailable, get(s, "/health/ready").Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s, e := newTestServer(t, nil)
	_, err := e.Store.Count(context.Background(), "products")
	require.NoError(t, err)

	rec := get(s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "shopcore_operations_total"))
}

func TestServer_DashboardRoutesAndRequestID(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := get(s, "/v1/tables")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/tables", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.Equal(t, http.StatusNotFound, get(s, "/nowhere").Code)
}

func TestServer_RateLimited(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.RateLimiter.Enabled = true
		c.RateLimiter.RequestsPerSecond = 0.001
		c.RateLimiter.BurstSize = 1
	})

	assert.Equal(t, http.StatusOK, get(s, "/v1/stats").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(s, "/v1/stats").Code)
}
