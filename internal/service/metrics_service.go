package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/devrev/shopcore/internal/metrics"
	"github.com/devrev/shopcore/internal/model"
	"github.com/devrev/shopcore/internal/storage/ringbuffer"
	"go.uber.org/zap"
)

// Health thresholds
const (
	responseTimeWarningMs  = 500.0
	responseTimeCriticalMs = 1000.0
	errorRateWarning       = 5.0
	errorRateCritical      = 10.0
	memoryWarning          = 70.0
	memoryCritical         = 90.0
)

// MetricsConfig holds metrics collector configuration
type MetricsConfig struct {
	Window   time.Duration
	Capacity int
}

// MetricsService samples operations into a bounded ring and derives
// windowed aggregates, health and reports from the raw samples
type MetricsService struct {
	config  *MetricsConfig
	samples *ringbuffer.Ring[model.Sample]
	probe   MemoryProbe
	metrics *metrics.Metrics
	logger  *zap.Logger
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMetricsService creates a new metrics collector
func NewMetricsService(cfg *MetricsConfig, probe MemoryProbe, m *metrics.Metrics, logger *zap.Logger) *MetricsService {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if probe == nil {
		probe = RuntimeMemoryProbe{}
	}
	return &MetricsService{
		config:  cfg,
		samples: ringbuffer.New[model.Sample](cfg.Capacity),
		probe:   probe,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// MeasureOperation runs fn and records exactly one sample for it. The
// error of fn is returned unchanged. A panic in fn is recorded as a failed
// sample and keeps propagating.
func (s *MetricsService) MeasureOperation(ctx context.Context, name string, fn func() error) (err error) {
	if s == nil {
		return fn()
	}

	start := s.now()
	completed := false
	defer func() {
		sample := model.Sample{
			Operation: name,
			Duration:  s.now().Sub(start),
			Status:    model.OperationStatusSuccess,
			Timestamp: start,
		}
		switch {
		case !completed:
			sample.Status = model.OperationStatusError
			sample.Error = "panic"
		case err != nil:
			sample.Status = model.OperationStatusError
			sample.Error = err.Error()
		}
		s.Record(sample)
	}()

	err = fn()
	completed = true
	return err
}

// Measure is the value-returning form of MeasureOperation
func Measure[T any](ctx context.Context, s *MetricsService, name string, fn func() (T, error)) (T, error) {
	var out T
	err := s.MeasureOperation(ctx, name, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// Record appends a sample. Missing timestamps and memory figures are
// filled in.
func (s *MetricsService) Record(sample model.Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}
	if sample.MemoryUsage == 0 {
		sample.MemoryUsage = heapBytes()
	}
	if sample.Status == "" {
		sample.Status = model.OperationStatusSuccess
	}

	s.mu.Lock()
	s.samples.Push(sample)
	s.mu.Unlock()

	s.metrics.RecordOperation(sample.Operation, string(sample.Status), sample.Duration.Seconds())
}

// Aggregate summarizes the samples of operation inside the window. An
// empty operation aggregates every sample.
func (s *MetricsService) Aggregate(operation string) model.Aggregate {
	samples := s.window()
	if operation != "" {
		filtered := samples[:0]
		for _, sm := range samples {
			if sm.Operation == operation {
				filtered = append(filtered, sm)
			}
		}
		samples = filtered
	}
	return s.aggregate(samples)
}

func (s *MetricsService) aggregate(samples []model.Sample) model.Aggregate {
	if len(samples) == 0 {
		return model.Aggregate{}
	}
	var total time.Duration
	errorCount := 0
	for _, sm := range samples {
		total += sm.Duration
		if sm.Status == model.OperationStatusError {
			errorCount++
		}
	}
	n := float64(len(samples))
	return model.Aggregate{
		Count:      len(samples),
		AvgTime:    milliseconds(total) / n,
		ErrorRate:  float64(errorCount) / n * 100,
		Throughput: n / s.config.Window.Minutes(),
	}
}

// window returns a copy of the samples inside the trailing window
func (s *MetricsService) window() []model.Sample {
	cutoff := s.now().Add(-s.config.Window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Sample, 0, s.samples.Len())
	s.samples.Each(func(sm model.Sample) bool {
		if !sm.Timestamp.Before(cutoff) {
			out = append(out, sm)
		}
		return true
	})
	return out
}

// readMemory reads the probe, logging and zeroing on failure
func (s *MetricsService) readMemory(ctx context.Context) MemoryReading {
	reading, err := s.probe.Read(ctx)
	if err != nil {
		s.logger.Warn("Failed to read memory usage",
			zap.String("probe", s.probe.Name()),
			zap.Error(err))
		return MemoryReading{}
	}
	return reading
}

// GetSystemHealth classifies the database and memory sub-scores
func (s *MetricsService) GetSystemHealth(ctx context.Context) model.SystemHealth {
	agg := s.Aggregate("")
	reading := s.readMemory(ctx)

	db := model.DatabaseHealth{
		ResponseTime: agg.AvgTime,
		ErrorRate:    agg.ErrorRate,
		Throughput:   agg.Throughput,
		Status:       classifyDatabase(agg.AvgTime, agg.ErrorRate),
	}
	memory := model.MemoryHealth{
		Used:       reading.Used,
		Available:  reading.Available,
		Percentage: reading.Percentage(),
	}
	memory.Status = classifyMemory(memory.Percentage)

	health := model.SystemHealth{
		Overall:         model.WorstStatus(db.Status, memory.Status),
		Database:        db,
		Memory:          memory,
		Recommendations: recommendations(db, memory),
		Timestamp:       s.now(),
	}

	s.metrics.UpdateHealth("database", db.Status.Rank())
	s.metrics.UpdateHealth("memory", memory.Status.Rank())
	s.metrics.UpdateHealth("overall", health.Overall.Rank())
	s.metrics.UpdateMemoryUsage(memory.Percentage)

	return health
}

func classifyDatabase(responseTime, errorRate float64) model.HealthStatus {
	switch {
	case responseTime > responseTimeCriticalMs || errorRate > errorRateCritical:
		return model.HealthStatusCritical
	case responseTime > responseTimeWarningMs || errorRate > errorRateWarning:
		return model.HealthStatusWarning
	}
	return model.HealthStatusHealthy
}

func classifyMemory(percentage float64) model.HealthStatus {
	switch {
	case percentage > memoryCritical:
		return model.HealthStatusCritical
	case percentage > memoryWarning:
		return model.HealthStatusWarning
	}
	return model.HealthStatusHealthy
}

type rankedMessage struct {
	status  model.HealthStatus
	message string
}

// recommendations returns plain-language advice, most severe first
func recommendations(db model.DatabaseHealth, memory model.MemoryHealth) []string {
	var ranked []rankedMessage
	add := func(status model.HealthStatus, format string, args ...any) {
		ranked = append(ranked, rankedMessage{status, fmt.Sprintf(format, args...)})
	}

	switch {
	case db.ResponseTime > responseTimeCriticalMs:
		add(model.HealthStatusCritical, "Response time is %.0fms: enable query result caching and remove simulated latency", db.ResponseTime)
	case db.ResponseTime > responseTimeWarningMs:
		add(model.HealthStatusWarning, "Response time is %.0fms: consider caching frequent queries or indexing filtered fields", db.ResponseTime)
	}
	switch {
	case db.ErrorRate > errorRateCritical:
		add(model.HealthStatusCritical, "Error rate is %.1f%%: investigate failing operations and disable fault injection", db.ErrorRate)
	case db.ErrorRate > errorRateWarning:
		add(model.HealthStatusWarning, "Error rate is %.1f%%: review recent failures", db.ErrorRate)
	}
	switch {
	case memory.Percentage > memoryCritical:
		add(model.HealthStatusCritical, "Memory usage is %.1f%%: bound the cache and trim metric retention", memory.Percentage)
	case memory.Percentage > memoryWarning:
		add(model.HealthStatusWarning, "Memory usage is %.1f%%: purge expired cache entries", memory.Percentage)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].status.Rank() > ranked[j].status.Rank()
	})
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.message)
	}
	return out
}

// GenerateOptimizationReport maps the health sub-scores to issues, candidate
// optimizations and a score in [0, 100]
func (s *MetricsService) GenerateOptimizationReport(ctx context.Context) model.Report {
	health := s.GetSystemHealth(ctx)
	db, memory := health.Database, health.Memory

	var issues []model.Issue
	var candidates []model.CandidateOptimization

	if db.ResponseTime > responseTimeWarningMs {
		severity := model.SeverityHigh
		if db.ResponseTime > responseTimeCriticalMs {
			severity = model.SeverityCritical
		}
		issues = append(issues, model.Issue{
			Severity:       severity,
			Category:       "performance",
			Description:    fmt.Sprintf("Average response time is %.0fms", db.ResponseTime),
			Recommendation: "Cache query results and index frequently filtered fields",
			Impact:         "Slow page loads and checkout",
		})
		candidates = append(candidates,
			model.CandidateOptimization{
				Type:                 "caching",
				Description:          "Serve repeated reads from the result cache",
				EstimatedImprovement: "40-60% lower response time",
				Implementation:       "Apply the query-result-caching strategy",
			},
			model.CandidateOptimization{
				Type:                 "indexing",
				Description:          "Index fields filtered without an index",
				EstimatedImprovement: "20-40% lower response time on filtered reads",
				Implementation:       "Apply the adaptive-indexing strategy",
			},
		)
	}

	if db.ErrorRate > errorRateWarning {
		severity := model.SeverityHigh
		if db.ErrorRate > errorRateCritical {
			severity = model.SeverityCritical
		}
		issues = append(issues, model.Issue{
			Severity:       severity,
			Category:       "reliability",
			Description:    fmt.Sprintf("Error rate is %.1f%%", db.ErrorRate),
			Recommendation: "Inspect failing operations in the change log and metrics",
			Impact:         "Failed reads and writes surface to shoppers",
		})
		candidates = append(candidates, model.CandidateOptimization{
			Type:                 "reliability",
			Description:          "Stop injecting artificial faults",
			EstimatedImprovement: "Error rate back to the organic baseline",
			Implementation:       "Apply the disable-fault-injection strategy",
		})
	}

	if memory.Percentage > memoryWarning {
		severity := model.SeverityMedium
		if memory.Percentage > memoryCritical {
			severity = model.SeverityCritical
		}
		issues = append(issues, model.Issue{
			Severity:       severity,
			Category:       "memory",
			Description:    fmt.Sprintf("Memory usage is %.1f%%", memory.Percentage),
			Recommendation: "Bound the cache and shorten metric retention",
			Impact:         "Risk of allocation failures and GC pauses",
		})
		candidates = append(candidates, model.CandidateOptimization{
			Type:                 "memory",
			Description:          "Cap cache entries and drop expired data",
			EstimatedImprovement: "10-30% lower memory usage",
			Implementation:       "Apply the bounded-cache and purge-expired-cache strategies",
		})
	}

	return model.Report{
		Score:         score(issues),
		Issues:        issues,
		Optimizations: candidates,
		Health:        health,
		GeneratedAt:   s.now(),
	}
}

func score(issues []model.Issue) int {
	total := 100
	for _, issue := range issues {
		total -= issue.Severity.Penalty()
	}
	if total < 0 {
		return 0
	}
	return total
}

// GetPerformanceStats returns the overall aggregate and a per-operation
// breakdown of the window
func (s *MetricsService) GetPerformanceStats() model.PerformanceStats {
	samples := s.window()

	byOp := make(map[string][]model.Sample)
	for _, sm := range samples {
		byOp[sm.Operation] = append(byOp[sm.Operation], sm)
	}

	ops := make([]model.OperationStats, 0, len(byOp))
	for name, group := range byOp {
		agg := s.aggregate(group)
		durations := make([]float64, len(group))
		for i, sm := range group {
			durations[i] = milliseconds(sm.Duration)
		}
		sort.Float64s(durations)
		ops = append(ops, model.OperationStats{
			Operation:  name,
			Count:      agg.Count,
			AvgTime:    agg.AvgTime,
			MinTime:    durations[0],
			MaxTime:    durations[len(durations)-1],
			P95Time:    percentile(durations, 95),
			ErrorRate:  agg.ErrorRate,
			Throughput: agg.Throughput,
		})
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Operation < ops[j].Operation })

	s.mu.RLock()
	capacity := s.samples.Capacity()
	s.mu.RUnlock()

	return model.PerformanceStats{
		Window:      s.config.Window,
		Overall:     s.aggregate(samples),
		Operations:  ops,
		SampleCount: len(samples),
		Capacity:    capacity,
	}
}

// percentile uses the nearest-rank method on sorted values
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Snapshot captures the figures compared around a strategy application
func (s *MetricsService) Snapshot(ctx context.Context) model.MetricsSnapshot {
	agg := s.Aggregate("")
	return model.MetricsSnapshot{
		ResponseTime: agg.AvgTime,
		MemoryUsage:  s.readMemory(ctx).Percentage(),
		ErrorRate:    agg.ErrorRate,
		Throughput:   agg.Throughput,
		TakenAt:      s.now(),
	}
}

// SetCapacity resizes the sample ring keeping the newest samples
func (s *MetricsService) SetCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples.SetCapacity(n)
}

// Capacity returns the sample ring capacity
func (s *MetricsService) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples.Capacity()
}

// Reset drops every sample
func (s *MetricsService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples.Reset()
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
