package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_AddRemove(t *testing.T) {
	idx := NewIndex("category")

	idx.Add("s:covers", "b")
	idx.Add("s:covers", "a")
	idx.Add("s:cases", "c")

	assert.Equal(t, []string{"a", "b"}, idx.Lookup("s:covers"))
	assert.Equal(t, []string{"s:cases", "s:covers"}, idx.Keys())
	assert.True(t, idx.Contains("s:cases", "c"))
	assert.Equal(t, 2, idx.Len())

	idx.Remove("s:cases", "c")
	assert.Empty(t, idx.Lookup("s:cases"))
	assert.Equal(t, 1, idx.Len(), "empty buckets are dropped")

	// removing unknown entries is a no-op
	idx.Remove("s:missing", "a")
	idx.Remove("s:covers", "zzz")
	assert.Equal(t, map[string][]string{"s:covers": {"a", "b"}}, idx.Snapshot())
}

func TestIndex_AddIsIdempotent(t *testing.T) {
	idx := NewIndex("status")

	idx.Add("s:active", "a")
	idx.Add("s:active", "a")

	assert.Equal(t, []string{"a"}, idx.Lookup("s:active"))
}
