// Package handler provides HTTP request handlers for the operational dashboard.
package handler

import (
	"net/http"
	"strconv"

	"github.com/devrev/shopcore/internal/errors"
	"github.com/devrev/shopcore/internal/middleware"
	"github.com/devrev/shopcore/internal/model"
	"github.com/devrev/shopcore/internal/service"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode errors.ErrorCode       `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// Handlers serves the dashboard API on top of the engine services.
type Handlers struct {
	store     *service.StoreService
	cache     *service.CacheService
	txs       *service.TransactionService
	collector *service.MetricsService
	optimizer *service.OptimizationService
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	store *service.StoreService,
	cache *service.CacheService,
	txs *service.TransactionService,
	collector *service.MetricsService,
	optimizer *service.OptimizationService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		store:     store,
		cache:     cache,
		txs:       txs,
		collector: collector,
		optimizer: optimizer,
		logger:    logger,
	}
}

// Register mounts every dashboard route under r.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.SystemHealth).Methods(http.MethodGet)
	r.HandleFunc("/report", h.Report).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	r.HandleFunc("/strategies", h.ListStrategies).Methods(http.MethodGet)
	r.HandleFunc("/strategies/{id}/apply", h.ApplyStrategy).Methods(http.MethodPost)
	r.HandleFunc("/strategies/{id}/rollback", h.RollbackStrategy).Methods(http.MethodPost)
	r.HandleFunc("/optimize", h.AutoOptimize).Methods(http.MethodPost)
	r.HandleFunc("/recommendations", h.Recommendations).Methods(http.MethodGet)
	r.HandleFunc("/changes", h.Changes).Methods(http.MethodGet)
	r.HandleFunc("/tables", h.Tables).Methods(http.MethodGet)
	r.HandleFunc("/tables/{table}/verify", h.VerifyTable).Methods(http.MethodGet)
	r.HandleFunc("/cache", h.CacheStats).Methods(http.MethodGet)
	r.HandleFunc("/transactions", h.Transactions).Methods(http.MethodGet)
}

// SystemHealth handles GET /v1/health.
func (h *Handlers) SystemHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.collector.GetSystemHealth(r.Context()))
}

// Report handles GET /v1/report.
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.collector.GenerateOptimizationReport(r.Context()))
}

// Stats handles GET /v1/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.collector.GetPerformanceStats())
}

// ListStrategies handles GET /v1/strategies?category=&priority=.
func (h *Handlers) ListStrategies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	strategies := h.optimizer.GetStrategies(
		model.Category(q.Get("category")),
		model.Priority(q.Get("priority")),
	)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": strategies,
		"applied":    h.optimizer.Applied(),
	})
}

// ApplyStrategy handles POST /v1/strategies/{id}/apply.
func (h *Handlers) ApplyStrategy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, err := h.optimizer.ApplyOptimization(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, result)
}

// RollbackStrategy handles POST /v1/strategies/{id}/rollback.
func (h *Handlers) RollbackStrategy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rolledBack, err := h.optimizer.RollbackOptimization(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	state, _ := h.optimizer.State(id)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          id,
		"rolled_back": rolledBack,
		"state":       state,
	})
}

// AutoOptimize handles POST /v1/optimize.
func (h *Handlers) AutoOptimize(w http.ResponseWriter, r *http.Request) {
	results := h.optimizer.AutoOptimize(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// Recommendations handles GET /v1/recommendations.
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": h.optimizer.GenerateRecommendations(r.Context()),
	})
}

// Changes handles GET /v1/changes?table=&record=&tx=&since=&limit=.
func (h *Handlers) Changes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := model.ChangeQuery{
		Table:    q.Get("table"),
		RecordID: q.Get("record"),
		TxID:     q.Get("tx"),
	}

	if v := q.Get("since"); v != "" {
		since, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			h.writeError(w, r, errors.InvalidArgument("since must be a non-negative integer", err))
			return
		}
		query.SinceSeq = since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			h.writeError(w, r, errors.InvalidArgument("limit must be a non-negative integer", err))
			return
		}
		query.Limit = limit
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"changes":  h.store.Changes(query),
		"last_seq": h.store.LastChangeSeq(),
	})
}

// Tables handles GET /v1/tables.
func (h *Handlers) Tables(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tables":      h.store.Tables(),
		"candidates":  h.store.IndexCandidates(0),
		"read_cached": h.store.ReadCaching(),
	})
}

// VerifyTable handles GET /v1/tables/{table}/verify.
func (h *Handlers) VerifyTable(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	if err := h.store.VerifyIndexes(table); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"table":      table,
		"consistent": true,
	})
}

// CacheStats handles GET /v1/cache.
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

// Transactions handles GET /v1/transactions.
func (h *Handlers) Transactions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active": h.txs.Active(),
	})
}

// NotFound writes the error body used for unknown routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorResponse(w, r, http.StatusNotFound, ErrorResponse{
		ErrorCode: errors.ErrCodeInvalidArgument,
		Message:   "endpoint not found",
	})
}

// MethodNotAllowed writes the error body used for unsupported methods.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorResponse(w, r, http.StatusMethodNotAllowed, ErrorResponse{
		ErrorCode: errors.ErrCodeInvalidArgument,
		Message:   "method not allowed",
	})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		ErrorCode: errors.GetCode(err),
		Message:   err.Error(),
	}
	if ee, ok := errors.AsEngineError(err); ok && len(ee.Details) > 0 {
		resp.Details = ee.Details
	}
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Dashboard request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Error(err))
	}
	h.writeErrorResponse(w, r, status, resp)
}

func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	resp.Status = "error"
	resp.RequestID = middleware.RequestIDFrom(r.Context())
	h.writeJSON(w, status, resp)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
