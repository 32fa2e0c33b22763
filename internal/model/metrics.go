package model

import "time"

// OperationStatus is the outcome of a measured operation
type OperationStatus string

const (
	OperationStatusSuccess OperationStatus = "success"
	OperationStatusError   OperationStatus = "error"
)

// Sample is one measured operation
type Sample struct {
	Operation   string          `json:"operation"`
	Duration    time.Duration   `json:"duration"`
	Status      OperationStatus `json:"status"`
	MemoryUsage uint64          `json:"memory_usage"`
	Timestamp   time.Time       `json:"timestamp"`
	Error       string          `json:"error,omitempty"`
}

// Aggregate summarizes samples over a trailing window.
// AvgTime is in milliseconds, ErrorRate in percent and Throughput in
// operations per minute.
type Aggregate struct {
	Count      int     `json:"count"`
	AvgTime    float64 `json:"avg_time_ms"`
	ErrorRate  float64 `json:"error_rate"`
	Throughput float64 `json:"throughput"`
}

// OperationStats is the per-operation breakdown of PerformanceStats
type OperationStats struct {
	Operation  string  `json:"operation"`
	Count      int     `json:"count"`
	AvgTime    float64 `json:"avg_time_ms"`
	MinTime    float64 `json:"min_time_ms"`
	MaxTime    float64 `json:"max_time_ms"`
	P95Time    float64 `json:"p95_time_ms"`
	ErrorRate  float64 `json:"error_rate"`
	Throughput float64 `json:"throughput"`
}

// PerformanceStats is the raw performance view for the dashboard
type PerformanceStats struct {
	Window      time.Duration    `json:"window"`
	Overall     Aggregate        `json:"overall"`
	Operations  []OperationStats `json:"operations"`
	SampleCount int              `json:"sample_count"`
	Capacity    int              `json:"capacity"`
}

// Severity grades a report issue
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Penalty is the score deduction for an issue of this severity
func (s Severity) Penalty() int {
	switch s {
	case SeverityCritical:
		return 25
	case SeverityHigh:
		return 15
	case SeverityMedium:
		return 10
	case SeverityLow:
		return 5
	default:
		return 0
	}
}

// Issue is a diagnosed problem
type Issue struct {
	Severity       Severity `json:"severity"`
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	Impact         string   `json:"impact"`
}

// CandidateOptimization is a suggested mitigation in a report
type CandidateOptimization struct {
	Type                 string `json:"type"`
	Description          string `json:"description"`
	EstimatedImprovement string `json:"estimated_improvement"`
	Implementation       string `json:"implementation"`
}

// Report is the output of GenerateOptimizationReport
type Report struct {
	Score         int                     `json:"score"`
	Issues        []Issue                 `json:"issues"`
	Optimizations []CandidateOptimization `json:"optimizations"`
	Health        SystemHealth            `json:"health"`
	GeneratedAt   time.Time               `json:"generated_at"`
}
