package service

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/shopcore/internal/model"
)

// Strategy is an optimization with a reversible effect on the engine
type Strategy interface {
	Info() model.StrategyInfo
	// Apply changes engine behavior and remembers what it replaced
	Apply(ctx context.Context) error
	// Validate reports whether the applied effect is in place
	Validate(ctx context.Context) bool
	// Rollback restores what Apply replaced
	Rollback(ctx context.Context) error
}

// Strategy ids of the built-in catalog
const (
	StrategyDisableSimulatedLatency = "disable-simulated-latency"
	StrategyQueryResultCaching      = "query-result-caching"
	StrategyAdaptiveIndexing        = "adaptive-indexing"
	StrategyExtendCacheTTL          = "extend-cache-ttl"
	StrategyBoundedCache            = "bounded-cache"
	StrategyTrimMetricRetention     = "trim-metric-retention"
	StrategyPurgeExpiredCache       = "purge-expired-cache"
	StrategyRequestDeduplication    = "request-deduplication"
	StrategyParallelBatching        = "parallel-batching"
	StrategyDisableFaultInjection   = "disable-fault-injection"
)

// StrategyTargets are the services strategies act on
type StrategyTargets struct {
	Store   *StoreService
	Cache   *CacheService
	Fetch   *FetchService
	Metrics *MetricsService
}

// StrategyOptions tune the built-in strategies
type StrategyOptions struct {
	IndexThreshold  int
	CacheMaxEntries int
	MinRetention    int
	TTLMultiplier   int
	MinBatchLimit   int
}

func (o *StrategyOptions) setDefaults() {
	if o.IndexThreshold <= 0 {
		o.IndexThreshold = 10
	}
	if o.CacheMaxEntries <= 0 {
		o.CacheMaxEntries = 1000
	}
	if o.MinRetention <= 0 {
		o.MinRetention = 100
	}
	if o.TTLMultiplier <= 1 {
		o.TTLMultiplier = 4
	}
	if o.MinBatchLimit <= 0 {
		o.MinBatchLimit = 8
	}
}

// NewStrategyCatalog builds the built-in strategies
func NewStrategyCatalog(t StrategyTargets, opts StrategyOptions) []Strategy {
	opts.setDefaults()
	return []Strategy{
		&latencyStrategy{store: t.Store},
		&readCacheStrategy{store: t.Store},
		&indexingStrategy{store: t.Store, threshold: opts.IndexThreshold},
		&cacheTTLStrategy{store: t.Store, multiplier: opts.TTLMultiplier},
		&boundedCacheStrategy{cache: t.Cache, limit: opts.CacheMaxEntries},
		&retentionStrategy{collector: t.Metrics, store: t.Store, min: opts.MinRetention},
		&purgeStrategy{cache: t.Cache},
		&dedupStrategy{fetch: t.Fetch},
		&batchingStrategy{fetch: t.Fetch, min: opts.MinBatchLimit},
		&faultStrategy{store: t.Store},
	}
}

type latencyStrategy struct {
	store *StoreService
	prev  bool
}

func (s *latencyStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyDisableSimulatedLatency,
		Name:            "Disable simulated latency",
		Description:     "Turn off the artificial IO delay on the store data path",
		Category:        model.CategoryQuery,
		Priority:        model.PriorityCritical,
		EstimatedImpact: "Removes simulated IO time from every store operation",
	}
}

func (s *latencyStrategy) Apply(context.Context) error {
	s.prev = s.store.Latency().Enabled()
	s.store.Latency().SetEnabled(false)
	return nil
}

func (s *latencyStrategy) Validate(context.Context) bool { return !s.store.Latency().Enabled() }

func (s *latencyStrategy) Rollback(context.Context) error {
	s.store.Latency().SetEnabled(s.prev)
	return nil
}

type readCacheStrategy struct {
	store *StoreService
	prev  bool
}

func (s *readCacheStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyQueryResultCaching,
		Name:            "Query result caching",
		Description:     "Serve repeated FindByID and FindAll calls from the cache",
		Category:        model.CategoryCache,
		Priority:        model.PriorityHigh,
		EstimatedImpact: "40-60% lower read latency for repeated queries",
	}
}

func (s *readCacheStrategy) Apply(context.Context) error {
	s.prev = s.store.ReadCaching()
	s.store.SetReadCaching(true)
	return nil
}

func (s *readCacheStrategy) Validate(context.Context) bool { return s.store.ReadCaching() }

func (s *readCacheStrategy) Rollback(context.Context) error {
	s.store.SetReadCaching(s.prev)
	return nil
}

type indexingStrategy struct {
	store     *StoreService
	threshold int
	added     []IndexCandidate
}

func (s *indexingStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyAdaptiveIndexing,
		Name:            "Adaptive indexing",
		Description:     "Index fields that filters keep hitting without an index",
		Category:        model.CategoryQuery,
		Priority:        model.PriorityHigh,
		EstimatedImpact: "Filtered reads stop scanning whole tables",
	}
}

func (s *indexingStrategy) Apply(context.Context) error {
	s.added = nil
	candidates := s.store.IndexCandidates(s.threshold)
	if len(candidates) == 0 {
		return fmt.Errorf("no field was filtered %d times without an index", s.threshold)
	}
	for _, c := range candidates {
		added, err := s.store.AddIndex(c.Table, c.Field)
		if err != nil {
			return err
		}
		if added {
			s.added = append(s.added, c)
		}
	}
	return nil
}

func (s *indexingStrategy) Validate(context.Context) bool {
	if len(s.added) == 0 {
		return false
	}
	indexed := make(map[string]bool)
	for _, t := range s.store.Tables() {
		for _, f := range t.Indexes {
			indexed[t.Name+"."+f] = true
		}
	}
	for _, c := range s.added {
		if !indexed[c.Table+"."+c.Field] {
			return false
		}
	}
	return true
}

func (s *indexingStrategy) Rollback(context.Context) error {
	var firstErr error
	for _, c := range s.added {
		if _, err := s.store.DropIndex(c.Table, c.Field); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.added = nil
	return firstErr
}

type cacheTTLStrategy struct {
	store      *StoreService
	multiplier int
	prev       time.Duration
}

func (s *cacheTTLStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyExtendCacheTTL,
		Name:            "Extend cache TTL",
		Description:     fmt.Sprintf("Keep cached reads %d times longer", s.multiplier),
		Category:        model.CategoryCache,
		Priority:        model.PriorityMedium,
		EstimatedImpact: "Higher cache hit rate on slowly changing tables",
	}
}

func (s *cacheTTLStrategy) Apply(context.Context) error {
	s.prev = s.store.ReadCacheTTL()
	if s.prev <= 0 {
		return fmt.Errorf("read cache ttl is %s", s.prev)
	}
	s.store.SetReadCacheTTL(s.prev * time.Duration(s.multiplier))
	return nil
}

func (s *cacheTTLStrategy) Validate(context.Context) bool { return s.store.ReadCacheTTL() > s.prev }

func (s *cacheTTLStrategy) Rollback(context.Context) error {
	if s.prev > 0 {
		s.store.SetReadCacheTTL(s.prev)
	}
	return nil
}

type boundedCacheStrategy struct {
	cache *CacheService
	limit int
	prev  int
}

func (s *boundedCacheStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyBoundedCache,
		Name:            "Bounded cache",
		Description:     fmt.Sprintf("Cap the cache at %d entries, evicting the oldest", s.limit),
		Category:        model.CategoryMemory,
		Priority:        model.PriorityHigh,
		EstimatedImpact: "Cache memory stops growing with traffic",
	}
}

func (s *boundedCacheStrategy) Apply(context.Context) error {
	s.prev = s.cache.MaxEntries()
	limit := s.limit
	if s.prev > 0 && s.prev < limit {
		limit = s.prev
	}
	s.cache.SetMaxEntries(limit)
	return nil
}

func (s *boundedCacheStrategy) Validate(context.Context) bool {
	bound := s.cache.MaxEntries()
	return bound > 0 && s.cache.Len() <= bound
}

func (s *boundedCacheStrategy) Rollback(context.Context) error {
	s.cache.SetMaxEntries(s.prev)
	return nil
}

type retentionStrategy struct {
	collector   *MetricsService
	store       *StoreService
	min         int
	prev        int
	target      int
	prevChanges int
	changes     int
}

func (s *retentionStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyTrimMetricRetention,
		Name:            "Trim metric retention",
		Description:     "Keep a quarter of the metric samples and of the change history",
		Category:        model.CategoryMemory,
		Priority:        model.PriorityMedium,
		EstimatedImpact: "Smaller sample buffer and change log",
	}
}

func quarter(n, floor int) int {
	if n/4 < floor {
		return floor
	}
	return n / 4
}

func (s *retentionStrategy) Apply(context.Context) error {
	s.prev = s.collector.Capacity()
	s.target = quarter(s.prev, s.min)
	if s.target >= s.prev {
		return fmt.Errorf("sample capacity %d is already at the minimum", s.prev)
	}
	s.collector.SetCapacity(s.target)

	s.prevChanges = s.store.ChangeRetention()
	s.changes = quarter(s.prevChanges, s.min)
	if s.changes < s.prevChanges {
		s.store.SetChangeRetention(s.changes)
	} else {
		s.changes = s.prevChanges
	}
	return nil
}

func (s *retentionStrategy) Validate(context.Context) bool {
	return s.collector.Capacity() == s.target && s.store.ChangeRetention() == s.changes
}

func (s *retentionStrategy) Rollback(context.Context) error {
	if s.prev > 0 {
		s.collector.SetCapacity(s.prev)
	}
	if s.prevChanges > 0 {
		s.store.SetChangeRetention(s.prevChanges)
	}
	return nil
}

type purgeStrategy struct {
	cache  *CacheService
	purged int
}

func (s *purgeStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyPurgeExpiredCache,
		Name:            "Purge expired cache entries",
		Description:     "Drop expired entries that were never read again",
		Category:        model.CategoryMemory,
		Priority:        model.PriorityLow,
		EstimatedImpact: "Frees memory held by dead entries",
	}
}

func (s *purgeStrategy) Apply(context.Context) error {
	s.purged = s.cache.PurgeExpired()
	return nil
}

func (s *purgeStrategy) Validate(context.Context) bool { return true }

// Rollback is a no-op: purged entries were already invisible
func (s *purgeStrategy) Rollback(context.Context) error { return nil }

type dedupStrategy struct {
	fetch *FetchService
	prev  bool
}

func (s *dedupStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyRequestDeduplication,
		Name:            "Request de-duplication",
		Description:     "Collapse concurrent identical reads into one call",
		Category:        model.CategoryNetwork,
		Priority:        model.PriorityHigh,
		EstimatedImpact: "Fewer upstream calls under bursty traffic",
	}
}

func (s *dedupStrategy) Apply(context.Context) error {
	s.prev = s.fetch.Deduplication()
	s.fetch.SetDeduplication(true)
	return nil
}

func (s *dedupStrategy) Validate(context.Context) bool { return s.fetch.Deduplication() }

func (s *dedupStrategy) Rollback(context.Context) error {
	s.fetch.SetDeduplication(s.prev)
	return nil
}

type batchingStrategy struct {
	fetch *FetchService
	min   int
	prev  int
}

func (s *batchingStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyParallelBatching,
		Name:            "Parallel batching",
		Description:     "Run more batched requests concurrently",
		Category:        model.CategoryNetwork,
		Priority:        model.PriorityMedium,
		EstimatedImpact: "Shorter wall time for batched page loads",
	}
}

func (s *batchingStrategy) Apply(context.Context) error {
	s.prev = s.fetch.BatchLimit()
	limit := s.prev * 2
	if limit < s.min {
		limit = s.min
	}
	s.fetch.SetBatchLimit(limit)
	return nil
}

func (s *batchingStrategy) Validate(context.Context) bool { return s.fetch.BatchLimit() > s.prev }

func (s *batchingStrategy) Rollback(context.Context) error {
	s.fetch.SetBatchLimit(s.prev)
	return nil
}

type faultStrategy struct {
	store *StoreService
	prev  float64
}

func (s *faultStrategy) Info() model.StrategyInfo {
	return model.StrategyInfo{
		ID:              StrategyDisableFaultInjection,
		Name:            "Disable fault injection",
		Description:     "Stop failing store operations on purpose",
		Category:        model.CategoryReliability,
		Priority:        model.PriorityCritical,
		EstimatedImpact: "Error rate drops to the organic baseline",
	}
}

func (s *faultStrategy) Apply(context.Context) error {
	s.prev = s.store.Faults().Rate()
	s.store.Faults().SetRate(0)
	return nil
}

func (s *faultStrategy) Validate(context.Context) bool { return s.store.Faults().Rate() == 0 }

func (s *faultStrategy) Rollback(context.Context) error {
	s.store.Faults().SetRate(s.prev)
	return nil
}
