// Package changelog keeps a bounded, sequenced history of record mutations
package changelog

import (
	"sync"
	"time"

	"github.com/devrev/shopcore/internal/model"
	"github.com/devrev/shopcore/internal/storage/ringbuffer"
)

// DefaultCapacity is used when no capacity is configured
const DefaultCapacity = 10000

// Log is an append-only change log safe for concurrent use. Sequence
// numbers grow monotonically and survive eviction.
type Log struct {
	mu   sync.RWMutex
	seq  uint64
	ring *ringbuffer.Ring[model.Change]
	now  func() time.Time
}

// New creates a log keeping at most capacity entries
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{ring: ringbuffer.New[model.Change](capacity), now: time.Now}
}

// Append assigns the next sequence number and timestamp to c and stores it
func (l *Log) Append(c model.Change) model.Change {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	c.Seq = l.seq
	if c.At.IsZero() {
		c.At = l.now()
	}
	l.ring.Push(c)
	return c
}

// Query returns matching entries oldest first. A positive limit stops after
// the first limit matches, so callers page by passing the last returned seq
// as SinceSeq.
func (l *Log) Query(q model.ChangeQuery) []model.Change {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []model.Change
	l.ring.Each(func(c model.Change) bool {
		if q.Matches(c) {
			out = append(out, c)
		}
		return q.Limit <= 0 || len(out) < q.Limit
	})
	return out
}

// LastSeq returns the sequence number of the most recent entry
func (l *Log) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Len returns the number of retained entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Len()
}

// Capacity returns the maximum number of retained entries
func (l *Log) Capacity() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Capacity()
}

// SetCapacity resizes the log, keeping the newest entries
func (l *Log) SetCapacity(capacity int) {
	if capacity <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring.SetCapacity(capacity)
}
