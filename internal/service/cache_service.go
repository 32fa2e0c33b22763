package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/devrev/shopcore/internal/metrics"
	"github.com/devrev/shopcore/internal/model"
	"go.uber.org/zap"
)

// Subscriber receives data published on a topic
type Subscriber func(data any)

type subscription struct {
	id uint64
	fn Subscriber
}

// CacheService implements a TTL cache with topic subscriptions
type CacheService struct {
	config      *CacheConfig
	cache       map[string]*model.CacheEntry
	subscribers map[string][]subscription
	logger      *zap.Logger
	metrics     *metrics.Metrics
	mu          sync.RWMutex
	subMu       sync.Mutex
	nextSubID   uint64
	maxEntries  int
	hits        uint64
	misses      uint64
	evictions   uint64
	now         func() time.Time
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	DefaultTTL      time.Duration
	MaxEntries      int
	CleanupInterval time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(cfg *CacheConfig, m *metrics.Metrics, logger *zap.Logger) *CacheService {
	return &CacheService{
		config:      cfg,
		cache:       make(map[string]*model.CacheEntry),
		subscribers: make(map[string][]subscription),
		logger:      logger,
		metrics:     m,
		maxEntries:  cfg.MaxEntries,
		now:         time.Now,
	}
}

// Get returns the data stored under key. Expired entries are removed and
// reported as misses.
func (s *CacheService) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.cache[key]
	if !found {
		s.misses++
		s.metrics.RecordCacheMiss()
		return nil, false
	}
	if entry.Expired(s.now()) {
		delete(s.cache, key)
		s.misses++
		s.evictions++
		s.metrics.RecordCacheMiss()
		s.metrics.RecordCacheEviction("expired", 1)
		s.metrics.UpdateCacheEntries(len(s.cache))
		return nil, false
	}

	s.hits++
	s.metrics.RecordCacheHit()
	return entry.Data, true
}

// Set stores data under key for ttl. A non-positive ttl stores an entry
// that is already expired.
func (s *CacheService) Set(key string, data any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = &model.CacheEntry{
		Key:       key,
		Data:      data,
		Timestamp: s.now(),
		TTL:       ttl,
	}
	s.enforceBound(key)
	s.metrics.UpdateCacheEntries(len(s.cache))
}

// enforceBound evicts the oldest entries other than keep until the cache
// fits maxEntries. Caller must hold mu.
func (s *CacheService) enforceBound(keep string) {
	if s.maxEntries <= 0 {
		return
	}
	evicted := 0
	for len(s.cache) > s.maxEntries {
		var oldestKey string
		var oldest time.Time
		for key, entry := range s.cache {
			if key == keep {
				continue
			}
			if oldestKey == "" || entry.Timestamp.Before(oldest) {
				oldestKey = key
				oldest = entry.Timestamp
			}
		}
		if oldestKey == "" {
			break
		}
		delete(s.cache, oldestKey)
		evicted++
	}
	if evicted > 0 {
		s.evictions += uint64(evicted)
		s.metrics.RecordCacheEviction("capacity", evicted)
		s.logger.Debug("Evicted cache entries",
			zap.Int("count", evicted),
			zap.Int("max_entries", s.maxEntries))
	}
}

// Delete removes key and reports whether it was present
func (s *CacheService) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.cache[key]; !found {
		return false
	}
	delete(s.cache, key)
	s.metrics.UpdateCacheEntries(len(s.cache))
	return true
}

// DeletePrefix removes every key starting with prefix
func (s *CacheService) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.cache {
		if strings.HasPrefix(key, prefix) {
			delete(s.cache, key)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.UpdateCacheEntries(len(s.cache))
	}
	return removed
}

// PurgeExpired removes every expired entry
func (s *CacheService) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.cache {
		if entry.Expired(now) {
			delete(s.cache, key)
			removed++
		}
	}
	if removed > 0 {
		s.evictions += uint64(removed)
		s.metrics.RecordCacheEviction("expired", removed)
		s.metrics.UpdateCacheEntries(len(s.cache))
	}
	return removed
}

// Len returns the number of stored entries, expired ones included
func (s *CacheService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// SetMaxEntries bounds the cache. Zero or less removes the bound. Entries
// beyond a new bound are evicted oldest first.
func (s *CacheService) SetMaxEntries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		n = 0
	}
	s.maxEntries = n
	s.enforceBound("")
	s.metrics.UpdateCacheEntries(len(s.cache))
}

// MaxEntries returns the current bound, zero when unbounded
func (s *CacheService) MaxEntries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxEntries
}

// DefaultTTL is the ttl used by Notify
func (s *CacheService) DefaultTTL() time.Duration {
	return s.config.DefaultTTL
}

// Subscribe registers fn on topic key. The returned function removes only
// this subscription and may be called more than once.
func (s *CacheService) Subscribe(key string, fn Subscriber) func() {
	s.subMu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[key] = append(s.subscribers[key], subscription{id: id, fn: fn})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(key, id) })
	}
}

func (s *CacheService) unsubscribe(key string, id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs := s.subscribers[key]
	for i, sub := range subs {
		if sub.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(s.subscribers, key)
		return
	}
	s.subscribers[key] = subs
}

// Subscribers returns the number of subscriptions on key
func (s *CacheService) Subscribers(key string) int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subscribers[key])
}

// Topics returns the number of topics with at least one subscriber
func (s *CacheService) Topics() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subscribers)
}

// Notify stores data under key with the default ttl and then calls every
// subscriber of key in subscription order
func (s *CacheService) Notify(key string, data any) {
	s.Set(key, data, s.config.DefaultTTL)

	s.subMu.Lock()
	subs := make([]subscription, len(s.subscribers[key]))
	copy(subs, s.subscribers[key])
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(data)
	}
}

// Start purges expired entries every CleanupInterval until ctx is done
func (s *CacheService) Start(ctx context.Context) error {
	if s.config.CleanupInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.PurgeExpired(); n > 0 {
				s.logger.Debug("Purged expired cache entries", zap.Int("count", n))
			}
		}
	}
}

// Stats returns cache statistics
func (s *CacheService) Stats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := CacheStats{
		Entries:    len(s.cache),
		MaxEntries: s.maxEntries,
		Hits:       s.hits,
		Misses:     s.misses,
		Evictions:  s.evictions,
	}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total) * 100
	}
	return stats
}

// CacheStats holds cache statistics
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	HitRate    float64 `json:"hit_rate"`
}
