package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shopcore"

// Metrics holds all Prometheus metrics of the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions *prometheus.CounterVec
	CacheEntries   prometheus.Gauge
	FetchesTotal   *prometheus.CounterVec

	// Transaction metrics
	TransactionsTotal  *prometheus.CounterVec
	TransactionsActive prometheus.Gauge

	// Change log metrics
	ChangesTotal *prometheus.CounterVec

	// Optimization metrics
	OptimizationsTotal *prometheus.CounterVec
	AppliedStrategies  prometheus.Gauge

	// Health metrics
	HealthStatus       *prometheus.GaugeVec
	MemoryUsagePercent prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of measured operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of measured operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		}),
		CacheEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total number of evicted cache entries",
			},
			[]string{"reason"},
		),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of entries currently held by the cache",
		}),
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "requests_total",
				Help:      "Total number of fetch requests by how they were served",
			},
			[]string{"source"},
		),

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tx",
				Name:      "transactions_total",
				Help:      "Total number of finished transactions",
			},
			[]string{"outcome"},
		),
		TransactionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "active",
			Help:      "Number of open transactions",
		}),

		ChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "changes_total",
				Help:      "Total number of record changes",
			},
			[]string{"table", "op"},
		),

		OptimizationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "optimizer",
				Name:      "runs_total",
				Help:      "Total number of strategy applications and rollbacks",
			},
			[]string{"strategy", "outcome"},
		),
		AppliedStrategies: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "applied_strategies",
			Help:      "Number of currently applied strategies",
		}),

		HealthStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "status",
				Help:      "Health status per component (0=healthy, 1=warning, 2=critical)",
			},
			[]string{"component"},
		),
		MemoryUsagePercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "memory_usage_percent",
			Help:      "Memory usage percentage reported by the memory probe",
		}),
	}
}

// RecordOperation records a measured operation
func (m *Metrics) RecordOperation(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// RecordCacheEviction records evicted entries
func (m *Metrics) RecordCacheEviction(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.WithLabelValues(reason).Add(float64(n))
}

// UpdateCacheEntries updates the cache size gauge
func (m *Metrics) UpdateCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// RecordFetch records how a fetch request was served
func (m *Metrics) RecordFetch(source string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(source).Inc()
}

// RecordTransaction records a finished transaction
func (m *Metrics) RecordTransaction(outcome string) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
}

// UpdateActiveTransactions updates the open transaction gauge
func (m *Metrics) UpdateActiveTransactions(n int) {
	if m == nil {
		return
	}
	m.TransactionsActive.Set(float64(n))
}

// RecordChange records a change log entry
func (m *Metrics) RecordChange(table, op string) {
	if m == nil {
		return
	}
	m.ChangesTotal.WithLabelValues(table, op).Inc()
}

// RecordOptimization records a strategy application or rollback
func (m *Metrics) RecordOptimization(strategy, outcome string) {
	if m == nil {
		return
	}
	m.OptimizationsTotal.WithLabelValues(strategy, outcome).Inc()
}

// UpdateAppliedStrategies updates the applied strategy gauge
func (m *Metrics) UpdateAppliedStrategies(n int) {
	if m == nil {
		return
	}
	m.AppliedStrategies.Set(float64(n))
}

// UpdateHealth updates the health gauges
func (m *Metrics) UpdateHealth(component string, rank int) {
	if m == nil {
		return
	}
	m.HealthStatus.WithLabelValues(component).Set(float64(rank))
}

// UpdateMemoryUsage updates the memory usage gauge
func (m *Metrics) UpdateMemoryUsage(percent float64) {
	if m == nil {
		return
	}
	m.MemoryUsagePercent.Set(percent)
}
