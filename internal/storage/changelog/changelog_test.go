package changelog

import (
	"testing"

	"github.com/devrev/shopcore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndQuery(t *testing.T) {
	log := New(10)

	first := log.Append(model.Change{Table: "products", RecordID: "p1", Op: model.ChangeOpCreate})
	log.Append(model.Change{Table: "users", RecordID: "u1", Op: model.ChangeOpCreate, TxID: "tx-1"})
	log.Append(model.Change{Table: "products", RecordID: "p1", Op: model.ChangeOpUpdate, TxID: "tx-1"})

	assert.Equal(t, uint64(1), first.Seq)
	assert.False(t, first.At.IsZero())
	assert.Equal(t, uint64(3), log.LastSeq())

	products := log.Query(model.ChangeQuery{Table: "products"})
	require.Len(t, products, 2)
	assert.Equal(t, model.ChangeOpUpdate, products[1].Op)

	tx := log.Query(model.ChangeQuery{TxID: "tx-1"})
	assert.Len(t, tx, 2)

	since := log.Query(model.ChangeQuery{SinceSeq: 2})
	require.Len(t, since, 1)
	assert.Equal(t, uint64(3), since[0].Seq)

	limited := log.Query(model.ChangeQuery{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, uint64(1), limited[0].Seq)
}

func TestLog_QueryPagesFromCursor(t *testing.T) {
	log := New(10)
	for i := 0; i < 5; i++ {
		log.Append(model.Change{Table: "orders", Op: model.ChangeOpCreate})
	}

	var seen []uint64
	var cursor uint64
	for {
		page := log.Query(model.ChangeQuery{SinceSeq: cursor, Limit: 2})
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 2)
		for _, c := range page {
			seen = append(seen, c.Seq)
		}
		cursor = page[len(page)-1].Seq
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)
}

func TestLog_CapacityKeepsSequence(t *testing.T) {
	log := New(2)
	for i := 0; i < 5; i++ {
		log.Append(model.Change{Table: "orders", Op: model.ChangeOpCreate})
	}

	assert.Equal(t, 2, log.Len())
	entries := log.Query(model.ChangeQuery{})
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(4), entries[0].Seq)
	assert.Equal(t, uint64(5), entries[1].Seq)

	log.SetCapacity(1)
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, uint64(5), log.LastSeq())
}
