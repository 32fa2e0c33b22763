package service

import (
	"testing"
	"time"

	"github.com/devrev/shopcore/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestSimulatedLatency(t *testing.T) {
	l := NewSimulatedLatency(2*time.Millisecond, 4*time.Millisecond)
	assert.True(t, l.Enabled())

	start := time.Now()
	l.Delay("products.findAll")
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)

	l.SetEnabled(false)
	assert.False(t, l.Enabled())

	assert.False(t, NewSimulatedLatency(0, 0).Enabled())
}

func TestRandomFaults(t *testing.T) {
	f := NewRandomFaults(1)
	err := f.Inject("orders.create")
	assert.Equal(t, errors.ErrCodeInjectedFault, errors.GetCode(err))

	f.SetRate(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, f.Inject("orders.create"))
	}

	f.SetRate(7)
	assert.Equal(t, 1.0, f.Rate())
	f.SetRate(-1)
	assert.Equal(t, 0.0, f.Rate())
}
