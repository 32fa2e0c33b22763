package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devrev/shopcore/internal/config"
	"github.com/devrev/shopcore/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Enabled = false
	cfg.Store.LatencyMin = 0
	cfg.Store.LatencyMax = 0
	cfg.Optimization.SettleInterval = 0
	cfg.Health.Interval = time.Hour
	return cfg
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testConfig(), zap.NewNop(), nil)
	require.NoError(t, err)
	return e
}

func cover() map[string]any {
	return map[string]any{
		"name":     "Cover",
		"price":    100,
		"stock":    5,
		"category": "covers",
		"status":   "active",
		"sku":      "CVR-001",
	}
}

func TestEngine_StorefrontFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	created, err := e.Store.Create(ctx, "products", cover())
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	found, err := e.Store.FindByID(ctx, "products", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, found)

	_, err = e.Store.Update(ctx, "products", created.ID, map[string]any{"stock": 0})
	require.NoError(t, err)

	active, err := e.Store.FindAll(ctx, "products", map[string]any{"status": "active"}, service.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, active, 1)

	outOfStock, err := e.Store.FindAll(ctx, "products", map[string]any{"stock": 0}, service.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, outOfStock, 1)
	assert.Equal(t, created.ID, outOfStock[0].ID)

	err = e.Transactions.Run(ctx, func(txCtx context.Context) error {
		_, err := e.Store.Delete(txCtx, "products", created.ID)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	restored, err := e.Store.FindByID(ctx, "products", created.ID)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, 0.0, restored.Fields["stock"])

	stats := e.Collector.GetPerformanceStats()
	assert.GreaterOrEqual(t, stats.SampleCount, 5)
}

func TestEngine_OptimizationRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.False(t, e.Store.ReadCaching())

	result, err := e.Optimizer.ApplyOptimization(ctx, service.StrategyQueryResultCaching)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	assert.True(t, e.Store.ReadCaching())

	ok, err := e.Optimizer.RollbackOptimization(ctx, service.StrategyQueryResultCaching)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, e.Store.ReadCaching())
}

func TestEngine_StartAndClose(t *testing.T) {
	e := newTestEngine(t)

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()

	require.Eventually(t, func() bool { return !e.Health.LastCheck().IsZero() }, time.Second, 5*time.Millisecond)
	assert.True(t, e.Health.IsLive())

	require.NoError(t, e.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	assert.False(t, e.Health.IsReady())
}

func TestEngine_MetricsRegistered(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Store.Count(context.Background(), "products")
	require.NoError(t, err)

	families, err := e.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shopcore_operations_total"])
}

func TestEngine_CustomCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  - name: coupons
    indexes: [code]
    rules:
      - {kind: required, field: code}
      - {kind: type, field: code, type: string}
`), 0o600))

	cfg := testConfig()
	cfg.Store.CatalogPath = path
	e, err := New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	tables := e.Store.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, "coupons", tables[0].Name)
	assert.Equal(t, []string{"code"}, tables[0].Indexes)

	_, err = e.Store.Create(context.Background(), "coupons", map[string]any{})
	assert.Error(t, err)
}
