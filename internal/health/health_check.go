package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/devrev/shopcore/internal/model"
	"github.com/devrev/shopcore/internal/service"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// SystemHealthSource produces the classified system view
type SystemHealthSource interface {
	GetSystemHealth(ctx context.Context) model.SystemHealth
}

// IndexVerifier lists tables and checks their secondary indexes
type IndexVerifier interface {
	Tables() []service.TableInfo
	VerifyIndexes(table string) error
}

// HealthCheckConfig holds health checker configuration
type HealthCheckConfig struct {
	Interval time.Duration
}

// HealthChecker periodically evaluates the engine and backs the HTTP probes
type HealthChecker struct {
	interval time.Duration
	source   SystemHealthSource
	indexes  IndexVerifier
	logger   *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	status      model.HealthStatus
	checks      map[string]CheckResult
	livenessOK  bool
	readinessOK bool
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Name      string             `json:"name"`
	Status    model.HealthStatus `json:"status"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(cfg *HealthCheckConfig, source SystemHealthSource, indexes IndexVerifier, logger *zap.Logger) *HealthChecker {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthChecker{
		interval:    interval,
		source:      source,
		indexes:     indexes,
		logger:      logger,
		status:      model.HealthStatusHealthy,
		checks:      make(map[string]CheckResult),
		livenessOK:  true,
		readinessOK: true,
	}
}

// Start runs checks until ctx is cancelled
func (h *HealthChecker) Start(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.RunChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Stopping health checker")
			return nil
		case <-ticker.C:
			h.RunChecks(ctx)
		}
	}
}

// RunChecks evaluates every check once and updates liveness and readiness
func (h *HealthChecker) RunChecks(ctx context.Context) {
	now := time.Now()
	health := h.source.GetSystemHealth(ctx)

	results := []CheckResult{
		{
			Name:      "database",
			Status:    health.Database.Status,
			Message:   databaseMessage(health.Database),
			Timestamp: now,
		},
		{
			Name:      "memory",
			Status:    health.Memory.Status,
			Message:   memoryMessage(health.Memory),
			Timestamp: now,
		},
	}
	if h.indexes != nil {
		results = append(results, h.checkIndexes(now))
	}

	statuses := make([]model.HealthStatus, 0, len(results))
	for _, r := range results {
		statuses = append(statuses, r.Status)
	}
	overall := model.WorstStatus(statuses...)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = now
	for _, r := range results {
		h.checks[r.Name] = r
	}
	h.status = overall
	h.livenessOK = true
	h.readinessOK = overall != model.HealthStatusCritical

	h.logger.Debug("Health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("liveness", h.livenessOK),
		zap.Bool("readiness", h.readinessOK))
}

func (h *HealthChecker) checkIndexes(now time.Time) CheckResult {
	result := CheckResult{
		Name:      "indexes",
		Status:    model.HealthStatusHealthy,
		Message:   "All indexes consistent",
		Timestamp: now,
	}
	for _, t := range h.indexes.Tables() {
		if err := h.indexes.VerifyIndexes(t.Name); err != nil {
			h.logger.Error("Index verification failed", zap.String("table", t.Name), zap.Error(err))
			result.Status = model.HealthStatusCritical
			result.Message = err.Error()
			return result
		}
	}
	return result
}

func databaseMessage(db model.DatabaseHealth) string {
	switch db.Status {
	case model.HealthStatusCritical:
		return "Response time or error rate above critical threshold"
	case model.HealthStatusWarning:
		return "Response time or error rate elevated"
	default:
		return "Data path responsive"
	}
}

func memoryMessage(m model.MemoryHealth) string {
	switch m.Status {
	case model.HealthStatusCritical:
		return "Memory usage critical"
	case model.HealthStatusWarning:
		return "Memory usage elevated"
	default:
		return "Memory usage acceptable"
	}
}

// IsLive returns whether the engine is live (liveness probe)
func (h *HealthChecker) IsLive() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.livenessOK
}

// IsReady returns whether the engine is ready (readiness probe)
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// Status returns the overall status of the last run
func (h *HealthChecker) Status() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// LastCheck returns when checks last ran
func (h *HealthChecker) LastCheck() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastCheck
}

// GetChecks returns a copy of all check results
func (h *HealthChecker) GetChecks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	return checks
}

// SetReadiness manually sets readiness status (for graceful shutdown)
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessOK = ready
}

// LivenessHandler handles HTTP liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	live := h.livenessOK
	status := h.status
	h.mu.RUnlock()

	writeProbe(w, live, map[string]interface{}{
		"healthy": live,
		"status":  status,
	})
}

// ReadinessHandler handles HTTP readiness probe requests
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.readinessOK
	status := h.status
	h.mu.RUnlock()

	writeProbe(w, ready, map[string]interface{}{
		"ready":  ready,
		"status": status,
		"checks": h.GetChecks(),
	})
}

func writeProbe(w http.ResponseWriter, ok bool, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(body)
}
