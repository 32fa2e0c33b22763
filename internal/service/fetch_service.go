package service

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/devrev/shopcore/internal/metrics"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Request describes a call made through the FetchService
type Request struct {
	Method   string         `json:"method"`
	Endpoint string         `json:"endpoint"`
	Params   map[string]any `json:"params,omitempty"`
	// TTL overrides the default response ttl for reads
	TTL time.Duration `json:"-"`
}

// IsRead reports whether the request is cacheable. An empty method reads.
func (r Request) IsRead() bool {
	switch strings.ToUpper(r.Method) {
	case "", http.MethodGet, http.MethodHead:
		return true
	}
	return false
}

// Key identifies identical read requests
func (r Request) Key() string {
	h := xxhash.New()
	_, _ = h.WriteString(strings.ToUpper(r.Method))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(r.Endpoint)
	_, _ = h.WriteString("\x00")
	if len(r.Params) > 0 {
		if data, err := json.Marshal(r.Params); err == nil {
			_, _ = h.Write(data)
		}
	}
	return endpointPrefix(r.Endpoint) + strconv.FormatUint(h.Sum64(), 16)
}

func endpointPrefix(endpoint string) string {
	return "fetch:" + endpoint + "|"
}

// FetchFunc performs the underlying request
type FetchFunc func(ctx context.Context, req Request) (any, error)

// FetchConfig holds fetch configuration
type FetchConfig struct {
	DefaultTTL  time.Duration
	Deduplicate bool
	BatchLimit  int
}

// FetchService layers response caching, in-flight de-duplication and
// batching over an arbitrary FetchFunc
type FetchService struct {
	config     *FetchConfig
	cache      *CacheService
	group      singleflight.Group
	dedup      atomic.Bool
	batchLimit atomic.Int64
	calls      atomic.Int64
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewFetchService creates a new fetch service backed by cache
func NewFetchService(cfg *FetchConfig, cache *CacheService, m *metrics.Metrics, logger *zap.Logger) *FetchService {
	s := &FetchService{
		config:  cfg,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
	s.dedup.Store(cfg.Deduplicate)
	s.SetBatchLimit(cfg.BatchLimit)
	return s
}

// Fetch serves reads from the cache when possible. With de-duplication
// enabled, concurrent identical reads share one underlying call whose
// in-flight entry is dropped once it settles. Writes always call fetch
// and invalidate the cached reads of their endpoint on success.
func (s *FetchService) Fetch(ctx context.Context, req Request, fetch FetchFunc) (any, error) {
	if !req.IsRead() {
		result, err := s.call(ctx, req, fetch)
		if err != nil {
			return nil, err
		}
		if n := s.cache.DeletePrefix(endpointPrefix(req.Endpoint)); n > 0 {
			s.logger.Debug("Invalidated cached responses",
				zap.String("endpoint", req.Endpoint),
				zap.Int("count", n))
		}
		return result, nil
	}

	key := req.Key()
	if data, ok := s.cache.Get(key); ok {
		s.metrics.RecordFetch("cache")
		return data, nil
	}

	if !s.dedup.Load() {
		return s.load(ctx, key, req, fetch)
	}

	result, err, shared := s.group.Do(key, func() (any, error) {
		// a call that settled between the cache check and Do already
		// populated the cache
		if data, ok := s.cache.Get(key); ok {
			return data, nil
		}
		return s.load(context.WithoutCancel(ctx), key, req, fetch)
	})
	if shared {
		s.metrics.RecordFetch("shared")
	}
	return result, err
}

func (s *FetchService) load(ctx context.Context, key string, req Request, fetch FetchFunc) (any, error) {
	result, err := s.call(ctx, req, fetch)
	if err != nil {
		return nil, err
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	s.cache.Set(key, result, ttl)
	return result, nil
}

func (s *FetchService) call(ctx context.Context, req Request, fetch FetchFunc) (any, error) {
	s.calls.Add(1)
	s.metrics.RecordFetch("network")
	return fetch(ctx, req)
}

// Batch fetches every request with bounded parallelism and returns the
// results in request order. The first error cancels the remaining calls.
func (s *FetchService) Batch(ctx context.Context, reqs []Request, fetch FetchFunc) ([]any, error) {
	results := make([]any, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.BatchLimit())

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			result, err := s.Fetch(gctx, req, fetch)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// SetDeduplication toggles in-flight de-duplication
func (s *FetchService) SetDeduplication(enabled bool) { s.dedup.Store(enabled) }

// Deduplication reports whether de-duplication is enabled
func (s *FetchService) Deduplication() bool { return s.dedup.Load() }

// SetBatchLimit sets the batch parallelism, at least one
func (s *FetchService) SetBatchLimit(n int) {
	if n < 1 {
		n = 1
	}
	s.batchLimit.Store(int64(n))
}

// BatchLimit returns the batch parallelism
func (s *FetchService) BatchLimit() int { return int(s.batchLimit.Load()) }

// Calls returns the number of underlying fetch calls made
func (s *FetchService) Calls() int64 { return s.calls.Load() }
