package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, ttl), mr
}

func TestCachedFetcherServesFromRedis(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	var calls atomic.Int32
	upstream := FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		calls.Add(1)
		return pageOf(t, page, size, 30), nil
	})
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	fetcher := NewCachedFetcher(upstream, cache, metrics, nil)
	ctx := context.Background()

	first, err := fetcher.Fetch(ctx, 1, 10)
	require.NoError(t, err)
	second, err := fetcher.Fetch(ctx, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, mr.Exists("auditview:page:1:10:v1"))
	assert.Equal(t, first.TotalElements, second.TotalElements)
	require.Len(t, second.Items, 10)
	assert.Equal(t, first.Items[0].ID, second.Items[0].ID)
	assert.Equal(t, "c10", second.Items[0].Channel)
	assert.Equal(t, 1.0, counterValue(t, reg, "auditview_cache_hits_total", ""))
	assert.Equal(t, 1.0, counterValue(t, reg, "auditview_cache_miss_total", ""))
}

func TestCachedFetcherInvalidate(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	var calls atomic.Int32
	fetcher := NewCachedFetcher(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		calls.Add(1)
		return pageOf(t, page, size, 5), nil
	}), cache, nil, nil)
	ctx := context.Background()

	_, err := fetcher.Fetch(ctx, 0, 20)
	require.NoError(t, err)
	require.NoError(t, fetcher.Invalidate(ctx))
	_, err = fetcher.Fetch(ctx, 0, 20)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, mr.Exists("auditview:page:0:20:v2"))
}

func TestCachedFetcherEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, time.Second)
	var calls atomic.Int32
	fetcher := NewCachedFetcher(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		calls.Add(1)
		return pageOf(t, page, size, 5), nil
	}), cache, nil, nil)
	ctx := context.Background()

	_, err := fetcher.Fetch(ctx, 0, 20)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = fetcher.Fetch(ctx, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedFetcherDoesNotCacheErrors(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	var calls atomic.Int32
	fetcher := NewCachedFetcher(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		calls.Add(1)
		return nil, &HTTPError{StatusCode: 503}
	}), cache, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := fetcher.Fetch(context.Background(), 0, 20)
		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedFetcherFallsBackWhenRedisIsDown(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	mr.Close()

	var mu sync.Mutex
	var ops []string
	fetcher := NewCachedFetcher(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		return pageOf(t, page, size, 5), nil
	}), cache, nil, func(op string, err error) {
		mu.Lock()
		defer mu.Unlock()
		ops = append(ops, op)
	})

	page, err := fetcher.Fetch(context.Background(), 0, 20)
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, ops, "cache version")
}

func TestCachedFetcherCollapsesConcurrentFetches(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fetcher := NewCachedFetcher(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		calls.Add(1)
		<-release
		return pageOf(t, page, size, 5), nil
	}), nil, nil, nil)

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fetcher.Fetch(context.Background(), 0, 20)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedFetcherHonoursCallerCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fetcher := NewCachedFetcher(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		<-release
		return pageOf(t, page, size, 5), nil
	}), nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := fetcher.Fetch(ctx, 0, 20)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCachedFetcherCancelsUpstreamWhenAllCallersLeave(t *testing.T) {
	started := make(chan struct{}, 1)
	upstreamDone := make(chan error, 1)
	fetcher := NewCachedFetcher(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		started <- struct{}{}
		<-ctx.Done()
		upstreamDone <- ctx.Err()
		return nil, ctx.Err()
	}), nil, nil, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	secondCtx, cancelSecond := context.WithCancel(context.Background())
	defer cancelSecond()

	results := make(chan error, 2)
	go func() {
		_, err := fetcher.Fetch(firstCtx, 0, 20)
		results <- err
	}()
	<-started
	go func() {
		_, err := fetcher.Fetch(secondCtx, 0, 20)
		results <- err
	}()
	require.Eventually(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		fl := fetcher.flights["page:0:20"]
		return fl != nil && fl.waiters == 2
	}, time.Second, time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-results, context.Canceled)
	select {
	case <-upstreamDone:
		t.Fatal("upstream cancelled while a caller was still waiting")
	case <-time.After(20 * time.Millisecond):
	}

	cancelSecond()
	assert.ErrorIs(t, <-results, context.Canceled)
	select {
	case err := <-upstreamDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("upstream kept running after every caller left")
	}

	fetcher.mu.Lock()
	assert.Empty(t, fetcher.flights)
	fetcher.mu.Unlock()
}

func TestDisabledCache(t *testing.T) {
	cache := NewCache(nil, time.Minute)
	ctx := context.Background()

	page, ok, err := cache.Get(ctx, "k")
	assert.Nil(t, page)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.NoError(t, cache.Set(ctx, "k", &Page{}))
	assert.NoError(t, cache.Bump(ctx))

	fetcher := NewCachedFetcher(FetcherFunc(func(ctx context.Context, page, size int) (*Page, error) {
		return &Page{Items: []Item{}}, nil
	}), nil, nil, nil)
	assert.NoError(t, fetcher.Invalidate(ctx))
}
