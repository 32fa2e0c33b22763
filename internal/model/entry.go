package model

import "time"

// CacheEntry represents an entry in the cache
type CacheEntry struct {
	Key       string
	Data      any
	Timestamp time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is no longer visible at now.
// A non-positive TTL expires immediately.
func (e *CacheEntry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return true
	}
	return now.Sub(e.Timestamp) > e.TTL
}
