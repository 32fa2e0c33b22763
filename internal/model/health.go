package model

import "time"

// HealthStatus classifies a component or the whole system
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusWarning  HealthStatus = "warning"
	HealthStatusCritical HealthStatus = "critical"
)

// Rank orders statuses from best (0) to worst (2)
func (s HealthStatus) Rank() int {
	switch s {
	case HealthStatusCritical:
		return 2
	case HealthStatusWarning:
		return 1
	default:
		return 0
	}
}

// WorstStatus returns the most severe of the given statuses
func WorstStatus(statuses ...HealthStatus) HealthStatus {
	worst := HealthStatusHealthy
	for _, s := range statuses {
		if s.Rank() > worst.Rank() {
			worst = s
		}
	}
	return worst
}

// DatabaseHealth is the data path sub-score
type DatabaseHealth struct {
	ResponseTime float64      `json:"response_time_ms"`
	ErrorRate    float64      `json:"error_rate"`
	Throughput   float64      `json:"throughput"`
	Status       HealthStatus `json:"status"`
}

// MemoryHealth is the memory sub-score
type MemoryHealth struct {
	Used       uint64       `json:"used"`
	Available  uint64       `json:"available"`
	Percentage float64      `json:"percentage"`
	Status     HealthStatus `json:"status"`
}

// SystemHealth is the classified view returned to the dashboard
type SystemHealth struct {
	Overall         HealthStatus   `json:"overall"`
	Database        DatabaseHealth `json:"database"`
	Memory          MemoryHealth   `json:"memory"`
	Recommendations []string       `json:"recommendations"`
	Timestamp       time.Time      `json:"timestamp"`
}
