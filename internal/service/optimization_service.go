package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devrev/shopcore/internal/errors"
	"github.com/devrev/shopcore/internal/metrics"
	"github.com/devrev/shopcore/internal/model"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Strategy lifecycle states
const (
	StrategyStateIdle     = "idle"
	StrategyStateApplying = "applying"
	StrategyStateApplied  = "applied"
	StrategyStateFailed   = "failed"
)

const (
	eventApply    = "apply"
	eventSucceed  = "succeed"
	eventFail     = "fail"
	eventRollback = "rollback"
)

// Auto-optimization triggers
const (
	autoResponseTimeMs = 500.0
	autoMemoryPercent  = 70.0
	autoThroughput     = 10.0
	autoErrorRate      = 5.0
)

// OptimizationConfig holds optimization engine configuration
type OptimizationConfig struct {
	SettleInterval time.Duration
	AutoEnabled    bool
	AutoInterval   time.Duration
}

// strategyState serializes apply and rollback of one strategy
type strategyState struct {
	strategy Strategy
	mu       sync.Mutex
	machine  *fsm.FSM
}

// OptimizationService applies, validates and rolls back strategies
type OptimizationService struct {
	config    *OptimizationConfig
	states    map[string]*strategyState
	collector *MetricsService
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu      sync.RWMutex
	applied map[string]*model.OptimizationResult

	sleep func(time.Duration)
	now   func() time.Time
}

// NewOptimizationService creates an engine over the given strategies
func NewOptimizationService(cfg *OptimizationConfig, strategies []Strategy, collector *MetricsService, m *metrics.Metrics, logger *zap.Logger) *OptimizationService {
	s := &OptimizationService{
		config:    cfg,
		states:    make(map[string]*strategyState, len(strategies)),
		collector: collector,
		metrics:   m,
		logger:    logger,
		applied:   make(map[string]*model.OptimizationResult),
		sleep:     time.Sleep,
		now:       time.Now,
	}
	for _, st := range strategies {
		s.states[st.Info().ID] = &strategyState{
			strategy: st,
			machine:  s.newMachine(st.Info().ID),
		}
	}
	return s
}

func (s *OptimizationService) newMachine(id string) *fsm.FSM {
	return fsm.NewFSM(
		StrategyStateIdle,
		fsm.Events{
			{Name: eventApply, Src: []string{StrategyStateIdle, StrategyStateFailed}, Dst: StrategyStateApplying},
			{Name: eventSucceed, Src: []string{StrategyStateApplying}, Dst: StrategyStateApplied},
			{Name: eventFail, Src: []string{StrategyStateApplying}, Dst: StrategyStateFailed},
			{Name: eventRollback, Src: []string{StrategyStateApplied}, Dst: StrategyStateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.Debug("Strategy state changed",
					zap.String("strategy", id),
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
			},
		},
	)
}

// GetStrategies lists the catalog filtered by category and priority (empty
// matches any), most urgent first and by id within a priority
func (s *OptimizationService) GetStrategies(category model.Category, priority model.Priority) []model.StrategyInfo {
	out := make([]model.StrategyInfo, 0, len(s.states))
	for _, st := range s.states {
		info := st.strategy.Info()
		if category != "" && info.Category != category {
			continue
		}
		if priority != "" && info.Priority != priority {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// State returns the lifecycle state of a strategy
func (s *OptimizationService) State(id string) (string, error) {
	st, ok := s.states[id]
	if !ok {
		return "", errors.StrategyNotFound(id)
	}
	return st.machine.Current(), nil
}

// ApplyOptimization snapshots metrics, applies the strategy, waits for the
// settle interval and validates. A failed apply or validation is rolled
// back best-effort and reported in the result. Applying an applied
// strategy returns its stored result.
func (s *OptimizationService) ApplyOptimization(ctx context.Context, id string) (*model.OptimizationResult, error) {
	st, ok := s.states[id]
	if !ok {
		return nil, errors.StrategyNotFound(id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if stored, ok := s.appliedResult(id); ok {
		return stored, nil
	}

	if err := st.machine.Event(ctx, eventApply); err != nil {
		return nil, errors.InternalError(fmt.Sprintf("cannot apply strategy %s", id), err)
	}

	// 1. Snapshot and apply
	before := s.collector.Snapshot(ctx)
	result := &model.OptimizationResult{
		Strategy:  st.strategy.Info(),
		Before:    &before,
		AppliedAt: s.now(),
	}
	err := guard(func() error { return st.strategy.Apply(ctx) })

	// 2. Let the change settle, then validate
	if err == nil {
		if s.config.SettleInterval > 0 {
			s.sleep(s.config.SettleInterval)
		}
		err = guard(func() error {
			if !st.strategy.Validate(ctx) {
				return fmt.Errorf("strategy %s did not validate", id)
			}
			return nil
		})
	}

	if err != nil {
		result.Error = err.Error()
		if rbErr := guard(func() error { return st.strategy.Rollback(ctx) }); rbErr != nil {
			s.logger.Warn("Failed to roll back unsuccessful strategy",
				zap.String("strategy", id),
				zap.Error(rbErr))
		}
		_ = st.machine.Event(ctx, eventFail)
		s.metrics.RecordOptimization(id, "failed")
		s.logger.Warn("Optimization failed",
			zap.String("strategy", id),
			zap.Error(err))
		return result, nil
	}

	// 3. Measure the effect and keep the result
	after := s.collector.Snapshot(ctx)
	improvement := computeImprovement(before, after)
	result.After = &after
	result.Improvement = &improvement
	result.Success = true

	s.mu.Lock()
	s.applied[id] = result
	appliedCount := len(s.applied)
	s.mu.Unlock()

	_ = st.machine.Event(ctx, eventSucceed)
	s.metrics.RecordOptimization(id, "applied")
	s.metrics.UpdateAppliedStrategies(appliedCount)
	s.logger.Info("Applied optimization",
		zap.String("strategy", id),
		zap.Float64("response_time_improvement", improvement.ResponseTime),
		zap.Float64("error_rate_improvement", improvement.ErrorRate))

	out := *result
	return &out, nil
}

// RollbackOptimization reverts an applied strategy. It returns false when
// the strategy is not applied. A failed rollback keeps the strategy applied.
func (s *OptimizationService) RollbackOptimization(ctx context.Context, id string) (bool, error) {
	st, ok := s.states[id]
	if !ok {
		return false, errors.StrategyNotFound(id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := s.appliedResult(id); !ok {
		s.logger.Debug("Strategy not applied", zap.String("strategy", id))
		return false, nil
	}

	if err := guard(func() error { return st.strategy.Rollback(ctx) }); err != nil {
		s.metrics.RecordOptimization(id, "rollback_failed")
		s.logger.Error("Failed to roll back strategy",
			zap.String("strategy", id),
			zap.Error(err))
		return false, errors.RollbackFailed(id, err)
	}

	s.mu.Lock()
	delete(s.applied, id)
	appliedCount := len(s.applied)
	s.mu.Unlock()

	_ = st.machine.Event(ctx, eventRollback)
	s.metrics.RecordOptimization(id, "rolled_back")
	s.metrics.UpdateAppliedStrategies(appliedCount)
	s.logger.Info("Rolled back optimization", zap.String("strategy", id))
	return true, nil
}

func (s *OptimizationService) appliedResult(id string) (*model.OptimizationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.applied[id]
	if !ok {
		return nil, false
	}
	out := *result
	return &out, true
}

// Applied returns the results of the applied strategies ordered by id
func (s *OptimizationService) Applied() []model.OptimizationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.OptimizationResult, 0, len(s.applied))
	for _, result := range s.applied {
		out = append(out, *result)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy.ID < out[j].Strategy.ID })
	return out
}

// trigger is a health condition that selects a strategy category
type trigger struct {
	category model.Category
	reason   string
}

func triggers(health model.SystemHealth) []trigger {
	var out []trigger
	if rt := health.Database.ResponseTime; rt > autoResponseTimeMs {
		reason := fmt.Sprintf("response time %.0fms exceeds %.0fms", rt, autoResponseTimeMs)
		out = append(out,
			trigger{model.CategoryCache, reason},
			trigger{model.CategoryQuery, reason})
	}
	if pct := health.Memory.Percentage; pct > autoMemoryPercent {
		out = append(out, trigger{model.CategoryMemory,
			fmt.Sprintf("memory usage %.1f%% exceeds %.0f%%", pct, autoMemoryPercent)})
	}
	if tp := health.Database.Throughput; tp < autoThroughput {
		out = append(out, trigger{model.CategoryNetwork,
			fmt.Sprintf("throughput %.1f ops/min is below %.0f", tp, autoThroughput)})
	}
	if er := health.Database.ErrorRate; er > autoErrorRate {
		out = append(out, trigger{model.CategoryReliability,
			fmt.Sprintf("error rate %.1f%% exceeds %.0f%%", er, autoErrorRate)})
	}
	return out
}

// AutoOptimize applies every strategy selected by the current health. A
// failing strategy does not stop the others; every result is returned.
func (s *OptimizationService) AutoOptimize(ctx context.Context) []model.OptimizationResult {
	health := s.collector.GetSystemHealth(ctx)

	var results []model.OptimizationResult
	seen := make(map[string]bool)
	for _, t := range triggers(health) {
		for _, info := range s.GetStrategies(t.category, "") {
			if seen[info.ID] {
				continue
			}
			seen[info.ID] = true

			result, err := s.ApplyOptimization(ctx, info.ID)
			if err != nil {
				results = append(results, model.OptimizationResult{
					Strategy:  info,
					Error:     err.Error(),
					AppliedAt: s.now(),
				})
				continue
			}
			results = append(results, *result)
		}
	}

	s.logger.Info("Auto optimization finished",
		zap.String("health", string(health.Overall)),
		zap.Int("strategies", len(results)))
	return results
}

// GenerateRecommendations lists strategies the current health calls for
// that are not applied yet
func (s *OptimizationService) GenerateRecommendations(ctx context.Context) []model.Recommendation {
	health := s.collector.GetSystemHealth(ctx)

	var out []model.Recommendation
	seen := make(map[string]bool)
	for _, t := range triggers(health) {
		for _, info := range s.GetStrategies(t.category, "") {
			if seen[info.ID] {
				continue
			}
			seen[info.ID] = true
			if _, applied := s.appliedResult(info.ID); applied {
				continue
			}
			out = append(out, model.Recommendation{Strategy: info, Reason: t.reason})
		}
	}
	return out
}

// Start runs AutoOptimize every AutoInterval until ctx is done
func (s *OptimizationService) Start(ctx context.Context) error {
	if !s.config.AutoEnabled || s.config.AutoInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.config.AutoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.AutoOptimize(ctx)
		}
	}
}

// computeImprovement expresses the change between snapshots in percent,
// positive meaning better
func computeImprovement(before, after model.MetricsSnapshot) model.Improvement {
	return model.Improvement{
		ResponseTime: percentDecrease(before.ResponseTime, after.ResponseTime),
		MemoryUsage:  percentDecrease(before.MemoryUsage, after.MemoryUsage),
		ErrorRate:    percentDecrease(before.ErrorRate, after.ErrorRate),
		Throughput:   percentIncrease(before.Throughput, after.Throughput),
	}
}

func percentDecrease(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return (before - after) / before * 100
}

func percentIncrease(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return (after - before) / before * 100
}

// guard converts a panic in fn into an error
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
