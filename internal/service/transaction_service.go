package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devrev/shopcore/internal/errors"
	"github.com/devrev/shopcore/internal/metrics"
	"github.com/devrev/shopcore/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type txContextKey struct{}

type journalKey struct {
	table string
	id    string
}

// journalEntry holds the pre-transaction value of one record. A nil prior
// is a tombstone: the record did not exist.
type journalEntry struct {
	journalKey
	prior *model.Record
}

// transaction is the rollback log of one open transaction
type transaction struct {
	id        string
	startedAt time.Time

	mu      sync.Mutex
	entries []journalEntry
	seen    map[journalKey]struct{}
	closed  bool
}

// record journals prior under (table, id). The first value recorded per
// key is kept.
func (tx *transaction) record(table, id string, prior *model.Record) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return errors.InvalidArgument(fmt.Sprintf("transaction %s is no longer active", tx.id), nil)
	}
	key := journalKey{table: table, id: id}
	if _, ok := tx.seen[key]; ok {
		return nil
	}
	tx.seen[key] = struct{}{}
	tx.entries = append(tx.entries, journalEntry{journalKey: key, prior: prior.Clone()})
	return nil
}

// close marks the transaction finished and returns its entries
func (tx *transaction) close() []journalEntry {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.closed = true
	return tx.entries
}

// journal records a pre-image when ctx carries a transaction
func journal(ctx context.Context, table, id string, prior *model.Record) error {
	tx, ok := ctx.Value(txContextKey{}).(*transaction)
	if !ok {
		return nil
	}
	return tx.record(table, id, prior)
}

// txID returns the id of the transaction carried by ctx
func txID(ctx context.Context) string {
	if tx, ok := ctx.Value(txContextKey{}).(*transaction); ok {
		return tx.id
	}
	return ""
}

// TransactionInfo describes an open transaction
type TransactionInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Entries   int       `json:"entries"`
}

// TransactionService coordinates rollback logs over store mutations
type TransactionService struct {
	store   *StoreService
	txs     map[string]*transaction
	metrics *metrics.Metrics
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewTransactionService creates a new transaction coordinator
func NewTransactionService(store *StoreService, m *metrics.Metrics, logger *zap.Logger) *TransactionService {
	return &TransactionService{
		store:   store,
		txs:     make(map[string]*transaction),
		metrics: m,
		logger:  logger,
	}
}

// Begin opens a transaction with an empty rollback log
func (s *TransactionService) Begin() string {
	tx := &transaction{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		seen:      make(map[journalKey]struct{}),
	}

	s.mu.Lock()
	s.txs[tx.id] = tx
	active := len(s.txs)
	s.mu.Unlock()

	s.metrics.UpdateActiveTransactions(active)
	return tx.id
}

// WithTransaction returns a context under which store mutations are
// journaled into transaction id. For an unknown id it returns ctx unchanged
// and false.
func (s *TransactionService) WithTransaction(ctx context.Context, id string) (context.Context, bool) {
	s.mu.Lock()
	tx, ok := s.txs[id]
	s.mu.Unlock()
	if !ok {
		return ctx, false
	}
	return context.WithValue(ctx, txContextKey{}, tx), true
}

// take removes transaction id from the open set
func (s *TransactionService) take(id string) (*transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if ok {
		delete(s.txs, id)
	}
	s.metrics.UpdateActiveTransactions(len(s.txs))
	return tx, ok
}

// Commit discards the rollback log. It returns false for unknown ids.
func (s *TransactionService) Commit(id string) bool {
	tx, ok := s.take(id)
	if !ok {
		return false
	}
	tx.close()
	s.metrics.RecordTransaction("commit")
	return true
}

// Rollback restores every journaled record to its pre-transaction value,
// newest journal entry first. It returns false for unknown ids. Restores
// bypass simulated latency and fault injection.
func (s *TransactionService) Rollback(ctx context.Context, id string) (bool, error) {
	tx, ok := s.take(id)
	if !ok {
		return false, nil
	}
	entries := tx.close()

	var failed []string
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := s.store.restore(ctx, e.table, e.id, e.prior, tx.id); err != nil {
			s.logger.Error("Failed to restore record",
				zap.String("tx_id", tx.id),
				zap.String("table", e.table),
				zap.String("record_id", e.id),
				zap.Error(err))
			failed = append(failed, e.table+"/"+e.id)
		}
	}

	if len(failed) > 0 {
		s.metrics.RecordTransaction("rollback_failed")
		return true, errors.RollbackFailed(tx.id, fmt.Errorf("%d records not restored", len(failed))).
			WithDetail("records", failed)
	}

	s.metrics.RecordTransaction("rollback")
	s.logger.Debug("Rolled back transaction",
		zap.String("tx_id", tx.id),
		zap.Int("entries", len(entries)))
	return true, nil
}

// Run executes fn inside a new transaction, committing on success and
// rolling back on error. The error of fn is returned unchanged.
func (s *TransactionService) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	id := s.Begin()
	txCtx, _ := s.WithTransaction(ctx, id)
	if err := fn(txCtx); err != nil {
		if _, rbErr := s.Rollback(ctx, id); rbErr != nil {
			s.logger.Error("Failed to roll back transaction",
				zap.String("tx_id", id),
				zap.Error(rbErr))
		}
		return err
	}
	s.Commit(id)
	return nil
}

// Active returns the open transactions ordered by start time
func (s *TransactionService) Active() []TransactionInfo {
	s.mu.Lock()
	txs := make([]*transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		txs = append(txs, tx)
	}
	s.mu.Unlock()

	out := make([]TransactionInfo, 0, len(txs))
	for _, tx := range txs {
		tx.mu.Lock()
		out = append(out, TransactionInfo{ID: tx.id, StartedAt: tx.startedAt, Entries: len(tx.entries)})
		tx.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
