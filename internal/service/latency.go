package service

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devrev/shopcore/internal/errors"
)

// Delayer simulates IO latency on the store data path
type Delayer interface {
	Delay(op string)
	SetEnabled(enabled bool)
	Enabled() bool
}

// FaultInjector decides whether an operation fails artificially
type FaultInjector interface {
	Inject(op string) error
	SetRate(rate float64)
	Rate() float64
}

// SimulatedLatency sleeps for a random duration in [Min, Max] while enabled.
// Sleeping ignores context cancellation.
type SimulatedLatency struct {
	Min     time.Duration
	Max     time.Duration
	enabled atomic.Bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedLatency creates a latency simulator. A zero Max disables it.
func NewSimulatedLatency(min, max time.Duration) *SimulatedLatency {
	if max < min {
		max = min
	}
	l := &SimulatedLatency{
		Min: min,
		Max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	l.enabled.Store(max > 0)
	return l
}

// Delay sleeps for the simulated latency
func (l *SimulatedLatency) Delay(string) {
	if !l.enabled.Load() {
		return
	}
	d := l.Min
	if span := l.Max - l.Min; span > 0 {
		l.mu.Lock()
		d += time.Duration(l.rng.Int63n(int64(span) + 1))
		l.mu.Unlock()
	}
	if d > 0 {
		time.Sleep(d)
	}
}

// SetEnabled toggles the simulation
func (l *SimulatedLatency) SetEnabled(enabled bool) { l.enabled.Store(enabled) }

// Enabled reports whether latency is simulated
func (l *SimulatedLatency) Enabled() bool { return l.enabled.Load() }

// RandomFaults fails operations with a fixed probability
type RandomFaults struct {
	mu   sync.Mutex
	rate float64
	rng  *rand.Rand
}

// NewRandomFaults creates a fault injector failing with probability rate
func NewRandomFaults(rate float64) *RandomFaults {
	f := &RandomFaults{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	f.SetRate(rate)
	return f
}

// Inject returns an INJECTED_FAULT error with the configured probability
func (f *RandomFaults) Inject(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rate <= 0 || f.rng.Float64() >= f.rate {
		return nil
	}
	return errors.InjectedFault(op, f.rate)
}

// SetRate sets the failure probability, clamped to [0, 1]
func (f *RandomFaults) SetRate(rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case rate < 0:
		rate = 0
	case rate > 1:
		rate = 1
	}
	f.rate = rate
}

// Rate returns the failure probability
func (f *RandomFaults) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}
