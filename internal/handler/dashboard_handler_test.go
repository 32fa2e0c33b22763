package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devrev/shopcore/internal/config"
	"github.com/devrev/shopcore/internal/engine"
	"github.com/devrev/shopcore/internal/model"
	"github.com/devrev/shopcore/internal/service"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*mux.Router, *engine.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Store.LatencyMin = 0
	cfg.Store.LatencyMax = 0
	cfg.Optimization.SettleInterval = 0

	e, err := engine.New(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	h := NewHandlers(e.Store, e.Cache, e.Transactions, e.Collector, e.Optimizer, zap.NewNop())
	router := mux.NewRouter()
	h.Register(router.PathPrefix("/v1").Subrouter())
	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	return router, e
}

func do(t *testing.T, router http.Handler, method, target string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func seedProduct(t *testing.T, e *engine.Engine) *model.Record {
	t.Helper()
	rec, err := e.Store.Create(context.Background(), "products", map[string]any{
		"name":     "Cover",
		"price":    100,
		"stock":    5,
		"category": "covers",
		"status":   "active",
	})
	require.NoError(t, err)
	return rec
}

func TestHandlers_HealthReportAndStats(t *testing.T) {
	router, e := newTestRouter(t)
	seedProduct(t, e)

	var health model.SystemHealth
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/health", &health))
	assert.NotEmpty(t, health.Overall)

	var report model.Report
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/report", &report))
	assert.LessOrEqual(t, report.Score, 100)

	var stats model.PerformanceStats
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/stats", &stats))
	assert.Equal(t, 1, stats.SampleCount)
}

func TestHandlers_StrategiesLifecycle(t *testing.T) {
	router, e := newTestRouter(t)

	var list struct {
		Strategies []model.StrategyInfo `json:"strategies"`
	}
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/strategies?category=cache", &list))
	require.NotEmpty(t, list.Strategies)
	for _, s := range list.Strategies {
		assert.Equal(t, model.CategoryCache, s.Category)
	}

	var result model.OptimizationResult
	code := do(t, router, http.MethodPost, "/v1/strategies/"+service.StrategyQueryResultCaching+"/apply", &result)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, result.Success)
	assert.True(t, e.Store.ReadCaching())

	var rollback struct {
		RolledBack bool `json:"rolled_back"`
	}
	code = do(t, router, http.MethodPost, "/v1/strategies/"+service.StrategyQueryResultCaching+"/rollback", &rollback)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, rollback.RolledBack)
	assert.False(t, e.Store.ReadCaching())

	code = do(t, router, http.MethodPost, "/v1/strategies/"+service.StrategyQueryResultCaching+"/rollback", &rollback)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, rollback.RolledBack)
}

func TestHandlers_RollbackOfIdleStrategy(t *testing.T) {
	router, e := newTestRouter(t)

	var rollback struct {
		ID         string `json:"id"`
		RolledBack bool   `json:"rolled_back"`
		State      string `json:"state"`
	}
	code := do(t, router, http.MethodPost, "/v1/strategies/"+service.StrategyDisableFaultInjection+"/rollback", &rollback)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, service.StrategyDisableFaultInjection, rollback.ID)
	assert.False(t, rollback.RolledBack)
	assert.Equal(t, service.StrategyStateIdle, rollback.State)
	assert.Empty(t, e.Optimizer.Applied())

	var result model.OptimizationResult
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/v1/strategies/"+service.StrategyDisableFaultInjection+"/apply", &result))
	require.True(t, result.Success, result.Error)

	code = do(t, router, http.MethodPost, "/v1/strategies/"+service.StrategyDisableFaultInjection+"/rollback", &rollback)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, rollback.RolledBack)
	assert.Equal(t, service.StrategyStateIdle, rollback.State)
}

func TestHandlers_UnknownStrategy(t *testing.T) {
	router, _ := newTestRouter(t)

	var resp ErrorResponse
	code := do(t, router, http.MethodPost, "/v1/strategies/nope/apply", &resp)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "STRATEGY_NOT_FOUND", string(resp.ErrorCode))
}

func TestHandlers_OptimizeAndRecommendations(t *testing.T) {
	router, _ := newTestRouter(t)

	var optimize struct {
		Results []model.OptimizationResult `json:"results"`
	}
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/v1/optimize", &optimize))

	var recs struct {
		Recommendations []model.Recommendation `json:"recommendations"`
	}
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/recommendations", &recs))
}

func TestHandlers_Changes(t *testing.T) {
	router, e := newTestRouter(t)
	rec := seedProduct(t, e)
	seedProduct(t, e)

	var resp struct {
		Changes []model.Change `json:"changes"`
		LastSeq uint64         `json:"last_seq"`
	}
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/changes?table=products&record="+rec.ID, &resp))
	require.Len(t, resp.Changes, 1)
	assert.Equal(t, model.ChangeOpCreate, resp.Changes[0].Op)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/changes?limit=1", &resp))
	require.Len(t, resp.Changes, 1)
	first := resp.Changes[0].Seq
	assert.Equal(t, first+1, resp.LastSeq)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, fmt.Sprintf("/v1/changes?since=%d&limit=1", first), &resp))
	require.Len(t, resp.Changes, 1)
	assert.Equal(t, first+1, resp.Changes[0].Seq)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/v1/changes?since=-4", nil))
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/v1/changes?limit=x", nil))
}

func TestHandlers_TablesAndVerify(t *testing.T) {
	router, e := newTestRouter(t)
	seedProduct(t, e)

	var tables struct {
		Tables []service.TableInfo `json:"tables"`
	}
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/tables", &tables))
	require.NotEmpty(t, tables.Tables)

	var verify struct {
		Consistent bool `json:"consistent"`
	}
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/tables/products/verify", &verify))
	assert.True(t, verify.Consistent)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/v1/tables/ghosts/verify", nil))
}

func TestHandlers_CacheAndTransactions(t *testing.T) {
	router, e := newTestRouter(t)
	e.Cache.Set("k", "v", time.Minute)
	e.Transactions.Begin()

	var stats service.CacheStats
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/cache", &stats))
	assert.Equal(t, 1, stats.Entries)

	var txs struct {
		Active []service.TransactionInfo `json:"active"`
	}
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/transactions", &txs))
	assert.Len(t, txs.Active, 1)
}

func TestHandlers_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	var resp ErrorResponse
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/v1/nothing", &resp))
	assert.Equal(t, "endpoint not found", resp.Message)
}
