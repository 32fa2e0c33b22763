// Package index implements per-field secondary indexes. Indexes are not
// safe for concurrent use; the owning table serializes access.
package index

import (
	"sort"
)

// Index maps canonical value keys of one field to the set of record IDs
// holding that value
type Index struct {
	Field   string
	entries map[string]map[string]struct{}
}

// NewIndex creates an empty index on field
func NewIndex(field string) *Index {
	return &Index{
		Field:   field,
		entries: make(map[string]map[string]struct{}),
	}
}

// Add records that id holds the value rendered as key
func (idx *Index) Add(key, id string) {
	ids, ok := idx.entries[key]
	if !ok {
		ids = make(map[string]struct{})
		idx.entries[key] = ids
	}
	ids[id] = struct{}{}
}

// Remove deletes id from key. Empty buckets are dropped so that the index
// never keeps keys without ids.
func (idx *Index) Remove(key, id string) {
	ids, ok := idx.entries[key]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(idx.entries, key)
	}
}

// Lookup returns the sorted ids stored under key
func (idx *Index) Lookup(key string) []string {
	ids := idx.entries[key]
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether id is stored under key
func (idx *Index) Contains(key, id string) bool {
	_, ok := idx.entries[key][id]
	return ok
}

// Keys returns the sorted distinct keys
func (idx *Index) Keys() []string {
	out := make([]string, 0, len(idx.entries))
	for k := range idx.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct keys
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Snapshot copies the index content
func (idx *Index) Snapshot() map[string][]string {
	out := make(map[string][]string, len(idx.entries))
	for k := range idx.entries {
		out[k] = idx.Lookup(k)
	}
	return out
}
