// Package engine wires the storefront data engine services together.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/devrev/shopcore/internal/config"
	"github.com/devrev/shopcore/internal/health"
	"github.com/devrev/shopcore/internal/metrics"
	"github.com/devrev/shopcore/internal/schema"
	"github.com/devrev/shopcore/internal/service"
	"github.com/devrev/shopcore/internal/storage/changelog"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine owns one instance of every service
type Engine struct {
	Store        *service.StoreService
	Cache        *service.CacheService
	Fetch        *service.FetchService
	Transactions *service.TransactionService
	Collector    *service.MetricsService
	Optimizer    *service.OptimizationService
	Health       *health.HealthChecker
	Registry     *prometheus.Registry

	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New builds the engine from configuration. A nil registry gets a fresh one.
func New(cfg *config.Config, logger *zap.Logger, registry *prometheus.Registry) (*Engine, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := metrics.NewMetrics(registry)

	// 1. Table catalog
	catalog, err := loadCatalog(cfg.Store.CatalogPath)
	if err != nil {
		return nil, err
	}

	// 2. Leaf services
	collector := service.NewMetricsService(&service.MetricsConfig{
		Window:   cfg.Metrics.Window,
		Capacity: cfg.Metrics.Capacity,
	}, service.NewMemoryProbe(cfg.Metrics.MemoryProbe), m, logger)

	cache := service.NewCacheService(&service.CacheConfig{
		DefaultTTL:      cfg.Cache.DefaultTTL,
		MaxEntries:      cfg.Cache.MaxEntries,
		CleanupInterval: cfg.Cache.CleanupInterval,
	}, m, logger)

	fetch := service.NewFetchService(&service.FetchConfig{
		DefaultTTL:  cfg.Fetch.DefaultTTL,
		Deduplicate: cfg.Fetch.Deduplicate,
		BatchLimit:  cfg.Fetch.BatchLimit,
	}, cache, m, logger)

	// 3. Store and transactions
	store := service.NewStoreService(
		&service.StoreConfig{
			ReadCache:    cfg.Store.ReadCache,
			ReadCacheTTL: cfg.Store.ReadCacheTTL,
		},
		cache,
		changelog.New(cfg.ChangeLog.Capacity),
		collector,
		service.NewSimulatedLatency(cfg.Store.LatencyMin, cfg.Store.LatencyMax),
		service.NewRandomFaults(cfg.Store.FaultRate),
		m,
		logger,
	)
	for _, sc := range catalog.Tables {
		if err := store.RegisterTable(sc); err != nil {
			return nil, fmt.Errorf("failed to register table %s: %w", sc.Name, err)
		}
	}
	txs := service.NewTransactionService(store, m, logger)

	// 4. Optimization
	strategies := service.NewStrategyCatalog(
		service.StrategyTargets{Store: store, Cache: cache, Fetch: fetch, Metrics: collector},
		service.StrategyOptions{
			IndexThreshold:  cfg.Optimization.IndexThreshold,
			CacheMaxEntries: cfg.Optimization.CacheMaxEntries,
		},
	)
	optimizer := service.NewOptimizationService(&service.OptimizationConfig{
		SettleInterval: cfg.Optimization.SettleInterval,
		AutoEnabled:    cfg.Optimization.AutoEnabled,
		AutoInterval:   cfg.Optimization.AutoInterval,
	}, strategies, collector, m, logger)

	checker := health.NewHealthChecker(&health.HealthCheckConfig{
		Interval: cfg.Health.Interval,
	}, collector, store, logger)

	logger.Info("Engine initialized",
		zap.Int("tables", len(catalog.Tables)),
		zap.Int("strategies", len(strategies)),
		zap.Bool("read_cache", cfg.Store.ReadCache),
		zap.Float64("fault_rate", cfg.Store.FaultRate))

	return &Engine{
		Store:        store,
		Cache:        cache,
		Fetch:        fetch,
		Transactions: txs,
		Collector:    collector,
		Optimizer:    optimizer,
		Health:       checker,
		Registry:     registry,
		logger:       logger,
	}, nil
}

func loadCatalog(path string) (*schema.Catalog, error) {
	if path == "" {
		return schema.DefaultCatalog()
	}
	catalog, err := schema.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load table catalog: %w", err)
	}
	return catalog, nil
}

// Start runs the background loops until ctx is cancelled or Close is called
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.started = true
	e.mu.Unlock()
	defer close(e.done)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Cache.Start(gctx) })
	g.Go(func() error { return e.Health.Start(gctx) })
	g.Go(func() error { return e.Optimizer.Start(gctx) })

	e.logger.Info("Engine background loops started")
	err := g.Wait()
	cancel()
	return err
}

// Close stops the background loops and waits for them to exit
func (e *Engine) Close() error {
	e.Health.SetReadiness(false)

	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.logger.Info("Engine stopped")
	return nil
}
