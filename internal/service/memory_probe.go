package service

import (
	"context"
	"math"
	"runtime/metrics"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryReading is one observation of a memory probe
type MemoryReading struct {
	Used      uint64
	Available uint64
	Total     uint64
}

// Percentage returns Used as a percentage of Total
func (r MemoryReading) Percentage() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Used) / float64(r.Total) * 100
}

// MemoryProbe reports memory usage for the health classification
type MemoryProbe interface {
	Name() string
	Read(ctx context.Context) (MemoryReading, error)
}

// NewMemoryProbe returns the probe registered under name. Unknown names
// fall back to the runtime probe.
func NewMemoryProbe(name string) MemoryProbe {
	if name == "system" {
		return SystemMemoryProbe{}
	}
	return RuntimeMemoryProbe{}
}

const (
	heapObjectsMetric = "/memory/classes/heap/objects:bytes"
	totalMemoryMetric = "/memory/classes/total:bytes"
	memoryLimitMetric = "/gc/gomemlimit:bytes"
)

// RuntimeMemoryProbe measures the Go heap against the soft memory limit,
// or against host memory when no limit is set. A steady heap fills most of
// the memory mapped by the runtime, so that is only the last resort.
type RuntimeMemoryProbe struct{}

func (RuntimeMemoryProbe) Name() string { return "runtime" }

func (RuntimeMemoryProbe) Read(ctx context.Context) (MemoryReading, error) {
	samples := []metrics.Sample{
		{Name: heapObjectsMetric},
		{Name: totalMemoryMetric},
		{Name: memoryLimitMetric},
	}
	metrics.Read(samples)

	var host uint64
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		host = vm.Total
	}
	return runtimeReading(uint64Value(samples[0]), uint64Value(samples[1]), uint64Value(samples[2]), host), nil
}

// runtimeReading picks the denominator for the heap: the memory limit when
// set, else host memory, else what the runtime mapped
func runtimeReading(heap, mapped, limit, host uint64) MemoryReading {
	total := mapped
	switch {
	case limit > 0 && limit != math.MaxInt64:
		total = limit
	case host > 0:
		total = host
	}
	if total < heap {
		total = heap
	}
	return MemoryReading{Used: heap, Available: total - heap, Total: total}
}

// SystemMemoryProbe reports host memory
type SystemMemoryProbe struct{}

func (SystemMemoryProbe) Name() string { return "system" }

func (SystemMemoryProbe) Read(ctx context.Context) (MemoryReading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryReading{}, err
	}
	return MemoryReading{Used: vm.Used, Available: vm.Available, Total: vm.Total}, nil
}

// heapBytes is the per-sample memory figure
func heapBytes() uint64 {
	s := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(s)
	return uint64Value(s[0])
}

func uint64Value(s metrics.Sample) uint64 {
	if s.Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return s.Value.Uint64()
}
