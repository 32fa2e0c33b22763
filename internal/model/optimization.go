package model

import "time"

// Category groups strategies by the subsystem they act on
type Category string

const (
	CategoryCache       Category = "cache"
	CategoryQuery       Category = "query"
	CategoryMemory      Category = "memory"
	CategoryNetwork     Category = "network"
	CategoryReliability Category = "reliability"
)

// Priority of a strategy
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities, higher is more urgent
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// StrategyInfo describes a catalog entry
type StrategyInfo struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Category        Category `json:"category"`
	Priority        Priority `json:"priority"`
	EstimatedImpact string   `json:"estimated_impact"`
}

// MetricsSnapshot captures the figures compared before and after a strategy
type MetricsSnapshot struct {
	ResponseTime float64   `json:"response_time_ms"`
	MemoryUsage  float64   `json:"memory_usage"`
	ErrorRate    float64   `json:"error_rate"`
	Throughput   float64   `json:"throughput"`
	TakenAt      time.Time `json:"taken_at"`
}

// Improvement holds percentage changes between two snapshots. Positive
// values are improvements for every field.
type Improvement struct {
	ResponseTime float64 `json:"response_time"`
	MemoryUsage  float64 `json:"memory_usage"`
	ErrorRate    float64 `json:"error_rate"`
	Throughput   float64 `json:"throughput"`
}

// OptimizationResult is the outcome of applying a strategy
type OptimizationResult struct {
	Strategy    StrategyInfo     `json:"strategy"`
	Before      *MetricsSnapshot `json:"before_metrics,omitempty"`
	After       *MetricsSnapshot `json:"after_metrics,omitempty"`
	Improvement *Improvement     `json:"improvement,omitempty"`
	Success     bool             `json:"success"`
	Error       string           `json:"error,omitempty"`
	AppliedAt   time.Time        `json:"applied_at"`
}

// Recommendation proposes a strategy that is not yet applied
type Recommendation struct {
	Strategy StrategyInfo `json:"strategy"`
	Reason   string       `json:"reason"`
}
