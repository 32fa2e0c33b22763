package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordOperation("products.create", "success", 0.01)
	m.RecordOperation("products.create", "error", 0.02)
	m.RecordCacheHit()
	m.RecordCacheEviction("expired", 3)
	m.UpdateHealth("database", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("products.create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheEvictions.WithLabelValues("expired")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HealthStatus.WithLabelValues("database")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// a second registry must not collide
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation("x", "success", 1)
		m.RecordCacheMiss()
		m.RecordFetch("network")
		m.RecordTransaction("commit")
		m.UpdateAppliedStrategies(1)
		m.UpdateMemoryUsage(50)
	})
}
