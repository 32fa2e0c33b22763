package health

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devrev/shopcore/internal/model"
	"github.com/devrev/shopcore/internal/service"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSource struct {
	health model.SystemHealth
}

func (s *stubSource) GetSystemHealth(context.Context) model.SystemHealth { return s.health }

type stubIndexes struct {
	broken map[string]bool
}

func (s *stubIndexes) Tables() []service.TableInfo {
	return []service.TableInfo{{Name: "orders"}, {Name: "products"}}
}

func (s *stubIndexes) VerifyIndexes(table string) error {
	if s.broken[table] {
		return stderrors.New("index drift on " + table)
	}
	return nil
}

func healthWith(db, mem model.HealthStatus) model.SystemHealth {
	return model.SystemHealth{
		Overall:  model.WorstStatus(db, mem),
		Database: model.DatabaseHealth{Status: db},
		Memory:   model.MemoryHealth{Status: mem},
	}
}

func TestHealthChecker_RunChecks(t *testing.T) {
	tests := []struct {
		name   string
		db     model.HealthStatus
		mem    model.HealthStatus
		broken map[string]bool
		status model.HealthStatus
		ready  bool
	}{
		{"healthy", model.HealthStatusHealthy, model.HealthStatusHealthy, nil, model.HealthStatusHealthy, true},
		{"warning stays ready", model.HealthStatusWarning, model.HealthStatusHealthy, nil, model.HealthStatusWarning, true},
		{"critical memory", model.HealthStatusHealthy, model.HealthStatusCritical, nil, model.HealthStatusCritical, false},
		{"index drift", model.HealthStatusHealthy, model.HealthStatusHealthy, map[string]bool{"orders": true}, model.HealthStatusCritical, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubSource{health: healthWith(tt.db, tt.mem)}
			h := NewHealthChecker(&HealthCheckConfig{}, src, &stubIndexes{broken: tt.broken}, zap.NewNop())

			h.RunChecks(context.Background())

			assert.Equal(t, tt.status, h.Status())
			assert.Equal(t, tt.ready, h.IsReady())
			assert.True(t, h.IsLive())
			assert.False(t, h.LastCheck().IsZero())

			checks := h.GetChecks()
			require.Len(t, checks, 3)
			assert.Equal(t, tt.db, checks["database"].Status)
			assert.Equal(t, tt.mem, checks["memory"].Status)
		})
	}
}

func TestHealthChecker_Handlers(t *testing.T) {
	src := &stubSource{health: healthWith(model.HealthStatusHealthy, model.HealthStatusHealthy)}
	h := NewHealthChecker(&HealthCheckConfig{}, src, nil, zap.NewNop())
	h.RunChecks(context.Background())

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "healthy", body["status"])

	src.health = healthWith(model.HealthStatusCritical, model.HealthStatusHealthy)
	h.RunChecks(context.Background())

	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthChecker_SetReadinessForShutdown(t *testing.T) {
	src := &stubSource{health: healthWith(model.HealthStatusHealthy, model.HealthStatusHealthy)}
	h := NewHealthChecker(&HealthCheckConfig{}, src, nil, zap.NewNop())

	h.SetReadiness(false)

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthChecker_StartRunsImmediately(t *testing.T) {
	src := &stubSource{health: healthWith(model.HealthStatusWarning, model.HealthStatusHealthy)}
	h := NewHealthChecker(&HealthCheckConfig{Interval: time.Hour}, src, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()

	require.Eventually(t, func() bool { return !h.LastCheck().IsZero() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.HealthStatusWarning, h.Status())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("health checker did not stop")
	}
}
