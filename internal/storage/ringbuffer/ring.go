// Package ringbuffer provides a fixed-capacity FIFO that overwrites its
// oldest element when full.
package ringbuffer

// Ring is a bounded buffer. It is not safe for concurrent use.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// New creates a ring holding at most capacity elements. A capacity below
// one is raised to one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the ring is full.
// It reports whether an element was evicted.
func (r *Ring[T]) Push(v T) bool {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// Len returns the number of stored elements
func (r *Ring[T]) Len() int { return r.size }

// Capacity returns the maximum number of stored elements
func (r *Ring[T]) Capacity() int { return len(r.buf) }

// Snapshot returns the elements oldest first
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Each calls fn for every element oldest first until fn returns false
func (r *Ring[T]) Each(fn func(T) bool) {
	for i := 0; i < r.size; i++ {
		if !fn(r.buf[(r.start+i)%len(r.buf)]) {
			return
		}
	}
}

// SetCapacity resizes the ring, keeping the newest elements
func (r *Ring[T]) SetCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	items := r.Snapshot()
	if len(items) > capacity {
		items = items[len(items)-capacity:]
	}
	r.buf = make([]T, capacity)
	copy(r.buf, items)
	r.start = 0
	r.size = len(items)
}

// Reset drops every element
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start, r.size = 0, 0
}
