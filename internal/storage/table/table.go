// Package table holds the records of one entity type together with their
// secondary indexes. A Table is not safe for concurrent use; the store
// service serializes writers per table.
package table

import (
	"fmt"
	"sort"

	"github.com/devrev/shopcore/internal/model"
	"github.com/devrev/shopcore/internal/schema"
	"github.com/devrev/shopcore/internal/storage/index"
)

// Table is a keyed record collection with secondary indexes
type Table struct {
	Name    string
	Schema  *schema.Schema
	records map[string]*model.Record
	indexes map[string]*index.Index
}

// New creates an empty table with the indexes declared by s
func New(s *schema.Schema) *Table {
	t := &Table{
		Name:    s.Name,
		Schema:  s,
		records: make(map[string]*model.Record),
		indexes: make(map[string]*index.Index),
	}
	for _, field := range s.Indexes {
		t.indexes[field] = index.NewIndex(field)
	}
	return t
}

// Get returns the stored record. Callers must not mutate it.
func (t *Table) Get(id string) (*model.Record, bool) {
	rec, ok := t.records[id]
	return rec, ok
}

// Put inserts or replaces a record. Index entries are only touched for
// fields whose value changed. The table takes ownership of rec.
func (t *Table) Put(rec *model.Record) {
	old, exists := t.records[rec.ID]
	for field, idx := range t.indexes {
		newKey, newOK := fieldKey(rec, field)
		if exists {
			oldKey, oldOK := fieldKey(old, field)
			if oldOK && newOK && oldKey == newKey {
				continue
			}
			if oldOK {
				idx.Remove(oldKey, rec.ID)
			}
		}
		if newOK {
			idx.Add(newKey, rec.ID)
		}
	}
	t.records[rec.ID] = rec
}

// Remove deletes a record and its index entries
func (t *Table) Remove(id string) (*model.Record, bool) {
	rec, ok := t.records[id]
	if !ok {
		return nil, false
	}
	for field, idx := range t.indexes {
		if key, ok := fieldKey(rec, field); ok {
			idx.Remove(key, id)
		}
	}
	delete(t.records, id)
	return rec, true
}

// Len returns the number of records
func (t *Table) Len() int {
	return len(t.records)
}

// Scan returns every record ordered by creation time then id
func (t *Table) Scan() []*model.Record {
	out := make([]*model.Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec)
	}
	sortByCreation(out)
	return out
}

// Select returns the records matching every equality predicate in filter,
// ordered by creation time then id. The smallest index bucket among the
// indexed filter fields drives the candidate set; remaining predicates
// are checked against each candidate. The second return value reports
// whether an index was used.
func (t *Table) Select(filter map[string]any) ([]*model.Record, bool) {
	if len(filter) == 0 {
		return t.Scan(), false
	}

	var candidates []string
	indexed := false
	for field, value := range filter {
		idx, ok := t.indexes[field]
		if !ok || value == nil {
			continue
		}
		ids := idx.Lookup(schema.IndexKey(value))
		if !indexed || len(ids) < len(candidates) {
			candidates = ids
			indexed = true
		}
	}

	var out []*model.Record
	if indexed {
		for _, id := range candidates {
			if rec := t.records[id]; rec != nil && Matches(rec, filter) {
				out = append(out, rec)
			}
		}
	} else {
		for _, rec := range t.records {
			if Matches(rec, filter) {
				out = append(out, rec)
			}
		}
	}
	sortByCreation(out)
	return out, indexed
}

// Matches reports whether rec satisfies every equality predicate. A nil
// filter value matches absent and nil fields.
func Matches(rec *model.Record, filter map[string]any) bool {
	for field, want := range filter {
		got, ok := rec.Value(field)
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || !schema.Equal(got, want) {
			return false
		}
	}
	return true
}

// HasIndex reports whether field is indexed
func (t *Table) HasIndex(field string) bool {
	_, ok := t.indexes[field]
	return ok
}

// IndexedFields returns the sorted indexed field names
func (t *Table) IndexedFields() []string {
	out := make([]string, 0, len(t.indexes))
	for field := range t.indexes {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// AddIndex builds an index on field from the current records. It returns
// false if the field was already indexed.
func (t *Table) AddIndex(field string) bool {
	if _, ok := t.indexes[field]; ok {
		return false
	}
	idx := index.NewIndex(field)
	for id, rec := range t.records {
		if key, ok := fieldKey(rec, field); ok {
			idx.Add(key, id)
		}
	}
	t.indexes[field] = idx
	return true
}

// DropIndex removes the index on field
func (t *Table) DropIndex(field string) bool {
	if _, ok := t.indexes[field]; !ok {
		return false
	}
	delete(t.indexes, field)
	return true
}

// Verify recomputes every index from the records and reports the first
// divergence
func (t *Table) Verify() error {
	for _, field := range t.IndexedFields() {
		idx := t.indexes[field]
		expected := index.NewIndex(field)
		for id, rec := range t.records {
			if key, ok := fieldKey(rec, field); ok {
				expected.Add(key, id)
			}
		}
		if expected.Len() != idx.Len() {
			return fmt.Errorf("index %s.%s has %d keys, expected %d", t.Name, field, idx.Len(), expected.Len())
		}
		want := expected.Snapshot()
		for _, key := range expected.Keys() {
			if got := len(idx.Lookup(key)); got != len(want[key]) {
				return fmt.Errorf("index %s.%s[%s] has %d ids, expected %d", t.Name, field, key, got, len(want[key]))
			}
			for _, id := range want[key] {
				if !idx.Contains(key, id) {
					return fmt.Errorf("index %s.%s[%s] is missing %s", t.Name, field, key, id)
				}
			}
		}
	}
	return nil
}

// fieldKey returns the index key of a record field. Absent and nil values
// are not indexed.
func fieldKey(rec *model.Record, field string) (string, bool) {
	v, ok := rec.Value(field)
	if !ok || v == nil {
		return "", false
	}
	return schema.IndexKey(v), true
}

func sortByCreation(recs []*model.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
