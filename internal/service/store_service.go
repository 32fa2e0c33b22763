package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/devrev/shopcore/internal/errors"
	"github.com/devrev/shopcore/internal/metrics"
	"github.com/devrev/shopcore/internal/model"
	"github.com/devrev/shopcore/internal/schema"
	"github.com/devrev/shopcore/internal/storage/changelog"
	"github.com/devrev/shopcore/internal/storage/table"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sort directions accepted by QueryOptions
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// QueryOptions controls ordering and pagination of FindAll. A zero Limit
// returns every match.
type QueryOptions struct {
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	OrderBy        string `json:"order_by,omitempty"`
	OrderDirection string `json:"order_direction,omitempty"`
}

func (o QueryOptions) validate() error {
	if o.Limit < 0 || o.Offset < 0 {
		return errors.InvalidArgument("limit and offset must not be negative", nil)
	}
	switch strings.ToLower(o.OrderDirection) {
	case "", OrderAsc, OrderDesc:
		return nil
	}
	return errors.InvalidArgument(fmt.Sprintf("unknown order direction %q", o.OrderDirection), nil)
}

// StoreConfig holds store configuration
type StoreConfig struct {
	ReadCache    bool
	ReadCacheTTL time.Duration
}

// TableInfo describes a registered table
type TableInfo struct {
	Name    string   `json:"name"`
	Records int      `json:"records"`
	Indexes []string `json:"indexes"`
}

// IndexCandidate is a non-indexed field that filters keep hitting
type IndexCandidate struct {
	Table string `json:"table"`
	Field string `json:"field"`
	Uses  int    `json:"uses"`
}

// tableState guards one table. Mutations hold mu for writing across the
// record change, index update, cache invalidation and change log append.
type tableState struct {
	mu         sync.RWMutex
	table      *table.Table
	generation uint64

	usageMu sync.Mutex
	usage   map[string]int
}

// StoreService is the record store with schema validation, secondary
// indexes, read caching and change capture
type StoreService struct {
	config    *StoreConfig
	tables    map[string]*tableState
	mu        sync.RWMutex
	cache     *CacheService
	changes   *changelog.Log
	collector *MetricsService
	delayer   Delayer
	faults    FaultInjector
	metrics   *metrics.Metrics
	logger    *zap.Logger

	readCache    atomic.Bool
	readCacheTTL atomic.Int64

	newID func() string
	now   func() time.Time
}

// NewStoreService creates a new store service
func NewStoreService(
	cfg *StoreConfig,
	cache *CacheService,
	changes *changelog.Log,
	collector *MetricsService,
	delayer Delayer,
	faults FaultInjector,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StoreService {
	if delayer == nil {
		delayer = NewSimulatedLatency(0, 0)
	}
	if faults == nil {
		faults = NewRandomFaults(0)
	}
	s := &StoreService{
		config:    cfg,
		tables:    make(map[string]*tableState),
		cache:     cache,
		changes:   changes,
		collector: collector,
		delayer:   delayer,
		faults:    faults,
		metrics:   m,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	s.readCache.Store(cfg.ReadCache)
	s.SetReadCacheTTL(cfg.ReadCacheTTL)
	return s
}

// RegisterTable creates a table and the indexes its schema declares
func (s *StoreService) RegisterTable(sc *schema.Schema) error {
	if sc == nil || sc.Name == "" {
		return errors.InvalidArgument("table schema requires a name", nil)
	}
	if err := sc.Compile(); err != nil {
		return errors.InvalidArgument(fmt.Sprintf("invalid schema for table %s", sc.Name), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[sc.Name]; exists {
		return errors.TableExists(sc.Name)
	}
	s.tables[sc.Name] = &tableState{
		table: table.New(sc),
		usage: make(map[string]int),
	}

	s.logger.Info("Registered table",
		zap.String("table", sc.Name),
		zap.Strings("indexes", sc.Indexes))
	return nil
}

func (s *StoreService) table(name string) (*tableState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.tables[name]
	if !ok {
		return nil, errors.TableNotFound(name)
	}
	return ts, nil
}

// Create validates data against the table schema and inserts a new record.
// Every violated rule is reported in a single VALIDATION_FAILED error.
// Reserved fields in data are ignored.
func (s *StoreService) Create(ctx context.Context, tableName string, data map[string]any) (*model.Record, error) {
	op := tableName + ".create"
	return Measure(ctx, s.collector, op, func() (*model.Record, error) {
		ts, err := s.table(tableName)
		if err != nil {
			return nil, err
		}

		fields := userFields(data)
		if violations := ts.table.Schema.Validate(fields); len(violations) > 0 {
			return nil, errors.ValidationFailed(tableName, violations.Messages(), violations)
		}

		s.delayer.Delay(op)
		if err := s.faults.Inject(op); err != nil {
			return nil, err
		}

		now := s.now()
		rec := &model.Record{ID: s.newID(), CreatedAt: now, UpdatedAt: now, Fields: fields}

		ts.mu.Lock()
		defer ts.mu.Unlock()

		if err := journal(ctx, tableName, rec.ID, nil); err != nil {
			return nil, err
		}
		ts.table.Put(rec.Clone())
		s.afterWrite(ctx, ts, model.ChangeOpCreate, nil, rec)

		return rec, nil
	})
}

// FindByID returns a copy of the record, or nil when it does not exist
func (s *StoreService) FindByID(ctx context.Context, tableName, id string) (*model.Record, error) {
	op := tableName + ".findById"
	return Measure(ctx, s.collector, op, func() (*model.Record, error) {
		ts, err := s.table(tableName)
		if err != nil {
			return nil, err
		}

		s.delayer.Delay(op)
		if err := s.faults.Inject(op); err != nil {
			return nil, err
		}

		ts.mu.RLock()
		defer ts.mu.RUnlock()

		caching := s.readCache.Load()
		key := s.readCacheKey(tableName, ts.generation, "id", id)
		if caching {
			if data, ok := s.cache.Get(key); ok {
				if rec, ok := data.(*model.Record); ok {
					return rec.Clone(), nil
				}
			}
		}

		stored, _ := ts.table.Get(id)
		if caching {
			s.cache.Set(key, stored.Clone(), s.ReadCacheTTL())
		}
		return stored.Clone(), nil
	})
}

// FindAll filters by field equality, then orders, then paginates. Filters
// on indexed fields are served from the index.
func (s *StoreService) FindAll(ctx context.Context, tableName string, filter map[string]any, opts QueryOptions) ([]*model.Record, error) {
	op := tableName + ".findAll"
	return Measure(ctx, s.collector, op, func() ([]*model.Record, error) {
		ts, err := s.table(tableName)
		if err != nil {
			return nil, err
		}
		if err := opts.validate(); err != nil {
			return nil, err
		}
		filter = schema.NormalizeFields(filter)

		s.delayer.Delay(op)
		if err := s.faults.Inject(op); err != nil {
			return nil, err
		}

		ts.mu.RLock()
		defer ts.mu.RUnlock()

		s.trackUsage(ts, filter)

		caching := s.readCache.Load()
		var key string
		if caching {
			key = s.readCacheKey(tableName, ts.generation, "all", struct {
				Filter  map[string]any `json:"filter"`
				Options QueryOptions   `json:"options"`
			}{filter, opts})
			if data, ok := s.cache.Get(key); ok {
				if recs, ok := data.([]*model.Record); ok {
					return cloneAll(recs), nil
				}
			}
		}

		matches, _ := ts.table.Select(filter)
		orderRecords(matches, opts)
		page := paginate(matches, opts)

		out := cloneAll(page)
		if caching {
			s.cache.Set(key, cloneAll(page), s.ReadCacheTTL())
		}
		return out, nil
	})
}

// Update validates the supplied fields only and merges them into the
// record. It returns nil when the record does not exist.
func (s *StoreService) Update(ctx context.Context, tableName, id string, partial map[string]any) (*model.Record, error) {
	op := tableName + ".update"
	return Measure(ctx, s.collector, op, func() (*model.Record, error) {
		ts, err := s.table(tableName)
		if err != nil {
			return nil, err
		}

		s.delayer.Delay(op)
		if err := s.faults.Inject(op); err != nil {
			return nil, err
		}

		ts.mu.Lock()
		defer ts.mu.Unlock()

		// An absent record wins over invalid fields
		old, ok := ts.table.Get(id)
		if !ok {
			return nil, nil
		}
		fields := userFields(partial)
		if violations := ts.table.Schema.ValidatePartial(fields); len(violations) > 0 {
			return nil, errors.ValidationFailed(tableName, violations.Messages(), violations)
		}
		if err := journal(ctx, tableName, id, old); err != nil {
			return nil, err
		}

		merged := old.Clone()
		for k, v := range fields {
			merged.Fields[k] = v
		}
		merged.UpdatedAt = s.now()
		if merged.UpdatedAt.Before(merged.CreatedAt) {
			merged.UpdatedAt = merged.CreatedAt
		}

		ts.table.Put(merged.Clone())
		s.afterWrite(ctx, ts, model.ChangeOpUpdate, old, merged)

		return merged, nil
	})
}

// Delete removes a record. Deleting an absent record returns false.
func (s *StoreService) Delete(ctx context.Context, tableName, id string) (bool, error) {
	op := tableName + ".delete"
	return Measure(ctx, s.collector, op, func() (bool, error) {
		ts, err := s.table(tableName)
		if err != nil {
			return false, err
		}

		s.delayer.Delay(op)
		if err := s.faults.Inject(op); err != nil {
			return false, err
		}

		ts.mu.Lock()
		defer ts.mu.Unlock()

		old, ok := ts.table.Get(id)
		if !ok {
			return false, nil
		}
		if err := journal(ctx, tableName, id, old); err != nil {
			return false, err
		}

		ts.table.Remove(id)
		s.afterWrite(ctx, ts, model.ChangeOpDelete, old, nil)
		return true, nil
	})
}

// restore puts prior back under id, or removes the record when prior is
// nil. It bypasses latency and fault injection.
func (s *StoreService) restore(ctx context.Context, tableName, id string, prior *model.Record, tx string) error {
	ts, err := s.table(tableName)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	current, exists := ts.table.Get(id)
	if prior == nil {
		if !exists {
			return nil
		}
		ts.table.Remove(id)
	} else {
		ts.table.Put(prior.Clone())
	}

	s.bumpGeneration(ts)
	change := s.changes.Append(model.Change{
		Table:    tableName,
		RecordID: id,
		Op:       model.ChangeOpRestore,
		Before:   current.Clone(),
		After:    prior.Clone(),
		TxID:     tx,
	})
	s.metrics.RecordChange(tableName, string(change.Op))
	return nil
}

// afterWrite invalidates the table's cached reads and appends the change.
// Caller must hold ts.mu for writing.
func (s *StoreService) afterWrite(ctx context.Context, ts *tableState, op model.ChangeOp, before, after *model.Record) {
	s.bumpGeneration(ts)

	id := ""
	if after != nil {
		id = after.ID
	} else if before != nil {
		id = before.ID
	}
	s.changes.Append(model.Change{
		Table:    ts.table.Name,
		RecordID: id,
		Op:       op,
		Before:   before.Clone(),
		After:    after.Clone(),
		TxID:     txID(ctx),
	})
	s.metrics.RecordChange(ts.table.Name, string(op))
}

// bumpGeneration retires every cached read of the table. Caller must hold
// ts.mu for writing.
func (s *StoreService) bumpGeneration(ts *tableState) {
	ts.generation++
	s.cache.DeletePrefix(tableCachePrefix(ts.table.Name))
}

func tableCachePrefix(table string) string {
	return "store:" + table + ":"
}

func (s *StoreService) readCacheKey(table string, generation uint64, kind string, args any) string {
	h := xxhash.New()
	_, _ = h.WriteString(kind)
	if data, err := json.Marshal(args); err == nil {
		_, _ = h.Write(data)
	}
	return tableCachePrefix(table) + strconv.FormatUint(generation, 10) + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// trackUsage counts filters on fields without an index
func (s *StoreService) trackUsage(ts *tableState, filter map[string]any) {
	ts.usageMu.Lock()
	defer ts.usageMu.Unlock()

	for field := range filter {
		if !ts.table.HasIndex(field) {
			ts.usage[field]++
		}
	}
}

// Count returns the number of records in a table
func (s *StoreService) Count(ctx context.Context, tableName string) (int, error) {
	return Measure(ctx, s.collector, tableName+".count", func() (int, error) {
		ts, err := s.table(tableName)
		if err != nil {
			return 0, err
		}
		ts.mu.RLock()
		defer ts.mu.RUnlock()
		return ts.table.Len(), nil
	})
}

// Tables describes every registered table ordered by name
func (s *StoreService) Tables() []TableInfo {
	s.mu.RLock()
	states := make([]*tableState, 0, len(s.tables))
	for _, ts := range s.tables {
		states = append(states, ts)
	}
	s.mu.RUnlock()

	out := make([]TableInfo, 0, len(states))
	for _, ts := range states {
		ts.mu.RLock()
		out = append(out, TableInfo{
			Name:    ts.table.Name,
			Records: ts.table.Len(),
			Indexes: ts.table.IndexedFields(),
		})
		ts.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// VerifyIndexes recomputes every index of the table and reports drift
func (s *StoreService) VerifyIndexes(tableName string) error {
	ts, err := s.table(tableName)
	if err != nil {
		return err
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	if err := ts.table.Verify(); err != nil {
		return errors.InternalError("index verification failed", err).WithDetail("table", tableName)
	}
	return nil
}

// Changes queries the change log
func (s *StoreService) Changes(q model.ChangeQuery) []model.Change {
	return s.changes.Query(q)
}

// LastChangeSeq returns the sequence number of the newest change
func (s *StoreService) LastChangeSeq() uint64 {
	return s.changes.LastSeq()
}

// ChangeRetention returns how many changes the log keeps
func (s *StoreService) ChangeRetention() int {
	return s.changes.Capacity()
}

// SetChangeRetention resizes the change log, dropping the oldest entries
func (s *StoreService) SetChangeRetention(n int) {
	s.changes.SetCapacity(n)
}

// AddIndex builds an index on field. It returns false if one exists.
func (s *StoreService) AddIndex(tableName, field string) (bool, error) {
	ts, err := s.table(tableName)
	if err != nil {
		return false, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.table.AddIndex(field) {
		return false, nil
	}
	ts.usageMu.Lock()
	delete(ts.usage, field)
	ts.usageMu.Unlock()

	s.logger.Info("Added index", zap.String("table", tableName), zap.String("field", field))
	return true, nil
}

// DropIndex removes the index on field. It returns false if none exists.
func (s *StoreService) DropIndex(tableName, field string) (bool, error) {
	ts, err := s.table(tableName)
	if err != nil {
		return false, err
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.table.DropIndex(field) {
		return false, nil
	}
	s.logger.Info("Dropped index", zap.String("table", tableName), zap.String("field", field))
	return true, nil
}

// IndexCandidates returns non-indexed fields filtered at least threshold
// times, most used first
func (s *StoreService) IndexCandidates(threshold int) []IndexCandidate {
	s.mu.RLock()
	states := make([]*tableState, 0, len(s.tables))
	for _, ts := range s.tables {
		states = append(states, ts)
	}
	s.mu.RUnlock()

	var out []IndexCandidate
	for _, ts := range states {
		ts.mu.RLock()
		ts.usageMu.Lock()
		for field, uses := range ts.usage {
			if uses >= threshold && !ts.table.HasIndex(field) {
				out = append(out, IndexCandidate{Table: ts.table.Name, Field: field, Uses: uses})
			}
		}
		ts.usageMu.Unlock()
		ts.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Uses != out[j].Uses {
			return out[i].Uses > out[j].Uses
		}
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// SetReadCaching toggles caching of FindByID and FindAll results
func (s *StoreService) SetReadCaching(enabled bool) {
	s.readCache.Store(enabled)
	if !enabled {
		s.cache.DeletePrefix("store:")
	}
}

// ReadCaching reports whether reads are cached
func (s *StoreService) ReadCaching() bool { return s.readCache.Load() }

// SetReadCacheTTL sets the ttl of cached reads
func (s *StoreService) SetReadCacheTTL(ttl time.Duration) { s.readCacheTTL.Store(int64(ttl)) }

// ReadCacheTTL returns the ttl of cached reads
func (s *StoreService) ReadCacheTTL() time.Duration { return time.Duration(s.readCacheTTL.Load()) }

// Latency returns the latency port of the data path
func (s *StoreService) Latency() Delayer { return s.delayer }

// Faults returns the fault injection port of the data path
func (s *StoreService) Faults() FaultInjector { return s.faults }

// userFields normalizes data and drops store-managed fields
func userFields(data map[string]any) map[string]any {
	fields := schema.NormalizeFields(data)
	for k := range fields {
		if model.IsReservedField(k) {
			delete(fields, k)
		}
	}
	return fields
}

func orderRecords(recs []*model.Record, opts QueryOptions) {
	if opts.OrderBy == "" {
		return
	}
	desc := strings.EqualFold(opts.OrderDirection, OrderDesc)
	sort.SliceStable(recs, func(i, j int) bool {
		a, _ := recs[i].Value(opts.OrderBy)
		b, _ := recs[j].Value(opts.OrderBy)
		c := schema.Compare(a, b)
		if c == 0 {
			return recs[i].ID < recs[j].ID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func paginate(recs []*model.Record, opts QueryOptions) []*model.Record {
	if opts.Offset >= len(recs) {
		return nil
	}
	recs = recs[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(recs) {
		recs = recs[:opts.Limit]
	}
	return recs
}

func cloneAll(recs []*model.Record) []*model.Record {
	out := make([]*model.Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
