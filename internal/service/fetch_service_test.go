package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetch(dedup bool) *FetchService {
	cache := NewCacheService(&CacheConfig{DefaultTTL: time.Minute}, nil, zap.NewNop())
	return NewFetchService(&FetchConfig{DefaultTTL: time.Minute, Deduplicate: dedup, BatchLimit: 2}, cache, nil, zap.NewNop())
}

func TestFetchService_DeduplicatesConcurrentReads(t *testing.T) {
	svc := newTestFetch(true)
	release := make(chan struct{})
	var underlying atomic.Int32

	fetch := func(ctx context.Context, req Request) (any, error) {
		underlying.Add(1)
		<-release
		return fmt.Sprintf("products page %v", req.Params["page"]), nil
	}

	const callers = 10
	results := make([]any, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Fetch(context.Background(), Request{Endpoint: "/api/products", Params: map[string]any{"page": 1}}, fetch)
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	require.Eventually(t, func() bool { return underlying.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), underlying.Load())
	for _, res := range results {
		assert.Equal(t, "products page 1", res)
	}
}

func TestFetchService_FailedFetchIsNotCached(t *testing.T) {
	svc := newTestFetch(true)
	boom := stderrors.New("upstream down")
	var calls int

	fetch := func(context.Context, Request) (any, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return "ok", nil
	}

	req := Request{Method: "GET", Endpoint: "/api/orders"}
	_, err := svc.Fetch(context.Background(), req, fetch)
	assert.ErrorIs(t, err, boom)

	res, err := svc.Fetch(context.Background(), req, fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	res, err = svc.Fetch(context.Background(), req, fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 2, calls)
}

func TestFetchService_WritesBypassAndInvalidate(t *testing.T) {
	svc := newTestFetch(false)
	var calls atomic.Int32
	fetch := func(_ context.Context, req Request) (any, error) {
		return calls.Add(1), nil
	}

	list := Request{Endpoint: "/api/products", Params: map[string]any{"category": "covers"}}
	first, err := svc.Fetch(context.Background(), list, fetch)
	require.NoError(t, err)
	cached, err := svc.Fetch(context.Background(), list, fetch)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	_, err = svc.Fetch(context.Background(), Request{Method: "POST", Endpoint: "/api/products"}, fetch)
	require.NoError(t, err)

	fresh, err := svc.Fetch(context.Background(), list, fetch)
	require.NoError(t, err)
	assert.NotEqual(t, first, fresh)
	assert.Equal(t, int64(3), svc.Calls())
}

func TestFetchService_RequestKey(t *testing.T) {
	a := Request{Endpoint: "/api/products", Params: map[string]any{"a": 1, "b": "x"}}
	b := Request{Method: "get", Endpoint: "/api/products", Params: map[string]any{"b": "x", "a": 1}}
	c := Request{Endpoint: "/api/products", Params: map[string]any{"a": 2, "b": "x"}}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.True(t, a.IsRead())
	assert.False(t, Request{Method: "DELETE"}.IsRead())
}

func TestFetchService_BatchKeepsOrder(t *testing.T) {
	svc := newTestFetch(false)
	var inFlight, peak atomic.Int32

	fetch := func(_ context.Context, req Request) (any, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return req.Endpoint, nil
	}

	reqs := make([]Request, 6)
	for i := range reqs {
		reqs[i] = Request{Endpoint: fmt.Sprintf("/api/items/%d", i)}
	}

	results, err := svc.Batch(context.Background(), reqs, fetch)
	require.NoError(t, err)
	for i, res := range results {
		assert.Equal(t, reqs[i].Endpoint, res)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))

	svc.SetBatchLimit(0)
	assert.Equal(t, 1, svc.BatchLimit())
}

func TestFetchService_BatchReturnsFirstError(t *testing.T) {
	svc := newTestFetch(false)
	boom := stderrors.New("boom")

	fetch := func(_ context.Context, req Request) (any, error) {
		if req.Endpoint == "/bad" {
			return nil, boom
		}
		return "ok", nil
	}

	_, err := svc.Batch(context.Background(), []Request{{Endpoint: "/good"}, {Endpoint: "/bad"}}, fetch)
	assert.ErrorIs(t, err, boom)
}
