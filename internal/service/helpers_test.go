package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/devrev/shopcore/internal/errors"
	"github.com/devrev/shopcore/internal/metrics"
	"github.com/devrev/shopcore/internal/schema"
	"github.com/devrev/shopcore/internal/storage/changelog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedProbe reports a configurable memory reading
type fixedProbe struct {
	mu      sync.Mutex
	reading MemoryReading
}

func (p *fixedProbe) Name() string { return "fixed" }

func (p *fixedProbe) Read(context.Context) (MemoryReading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reading, nil
}

func (p *fixedProbe) setPercent(pct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	used := uint64(pct * 10)
	p.reading = MemoryReading{Used: used, Available: 1000 - used, Total: 1000}
}

// stubFaults fails the listed operations
type stubFaults struct {
	mu   sync.Mutex
	fail map[string]bool
	rate float64
}

func (f *stubFaults) Inject(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[op] {
		return errors.InjectedFault(op, 1)
	}
	return nil
}

func (f *stubFaults) SetRate(rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = rate
}

func (f *stubFaults) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

func (f *stubFaults) failOn(op string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = fail
}

type testEnv struct {
	store     *StoreService
	cache     *CacheService
	fetch     *FetchService
	tx        *TransactionService
	collector *MetricsService
	optimizer *OptimizationService
	probe     *fixedProbe
	latency   *SimulatedLatency
	faults    *stubFaults
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.NewMetrics(prometheus.NewRegistry())

	probe := &fixedProbe{}
	probe.setPercent(10)
	collector := NewMetricsService(&MetricsConfig{Window: time.Minute, Capacity: 1000}, probe, m, logger)
	cache := NewCacheService(&CacheConfig{DefaultTTL: time.Minute}, m, logger)
	fetch := NewFetchService(&FetchConfig{DefaultTTL: time.Minute, BatchLimit: 2}, cache, m, logger)
	latency := NewSimulatedLatency(0, 0)
	faults := &stubFaults{fail: make(map[string]bool)}

	store := NewStoreService(
		&StoreConfig{ReadCacheTTL: 30 * time.Second},
		cache, changelog.New(1000), collector, latency, faults, m, logger,
	)
	catalog, err := schema.DefaultCatalog()
	require.NoError(t, err)
	for _, sc := range catalog.Tables {
		require.NoError(t, store.RegisterTable(sc))
	}

	strategies := NewStrategyCatalog(
		StrategyTargets{Store: store, Cache: cache, Fetch: fetch, Metrics: collector},
		StrategyOptions{IndexThreshold: 3},
	)
	optimizer := NewOptimizationService(&OptimizationConfig{}, strategies, collector, m, logger)

	return &testEnv{
		store:     store,
		cache:     cache,
		fetch:     fetch,
		tx:        NewTransactionService(store, m, logger),
		collector: collector,
		optimizer: optimizer,
		probe:     probe,
		latency:   latency,
		faults:    faults,
	}
}

func product(overrides map[string]any) map[string]any {
	p := map[string]any{
		"name":     "Cover",
		"price":    100,
		"stock":    5,
		"category": "covers",
		"status":   "active",
		"sku":      "CVR-001",
	}
	for k, v := range overrides {
		p[k] = v
	}
	return p
}
