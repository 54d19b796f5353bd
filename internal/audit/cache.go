package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "auditview:pages:version"

// Cache stores fetched pages in Redis under versioned keys. Bump invalidates
// every cached page at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns a cache with the given entry lifetime.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Version returns the current cache version, initialising it when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Key composes the cache key of one page.
func (c *Cache) Key(ctx context.Context, page, size int) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("auditview:page:%d:%d:v%d", page, size, ver), nil
}

// Get loads a cached page. The boolean is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*Page, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var page Page
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, false, err
	}
	return &page, true, nil
}

// Set stores a page.
func (c *Cache) Set(ctx context.Context, key string, page *Page) error {
	if !c.enabled() || page == nil {
		return nil
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates all cached pages.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// CachedFetcher serves pages from a Cache and collapses concurrent fetches of
// the same page into one upstream request. Cache errors are not fatal; the
// upstream is asked instead.
type CachedFetcher struct {
	next    Fetcher
	cache   *Cache
	metrics *Metrics
	group   singleflight.Group
	onError func(op string, err error)

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the shared upstream request for one key. It is cancelled when
// its last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCachedFetcher wraps next. cache may be nil to only de-duplicate.
func NewCachedFetcher(next Fetcher, cache *Cache, metrics *Metrics, onError func(op string, err error)) *CachedFetcher {
	if onError == nil {
		onError = func(string, error) {}
	}
	return &CachedFetcher{
		next:    next,
		cache:   cache,
		metrics: metrics,
		onError: onError,
		flights: make(map[string]*flight),
	}
}

// Fetch implements Fetcher.
func (f *CachedFetcher) Fetch(ctx context.Context, page, size int) (*Page, error) {
	key := "page:" + strconv.Itoa(page) + ":" + strconv.Itoa(size)
	if f.cache.enabled() {
		cacheKey, err := f.cache.Key(ctx, page, size)
		if err != nil {
			f.onError("cache version", err)
		} else {
			key = cacheKey
			cached, ok, err := f.cache.Get(ctx, cacheKey)
			if err != nil {
				f.onError("cache get", err)
			}
			if ok {
				f.metrics.cacheHit()
				return cached, nil
			}
			f.metrics.cacheMiss()
		}
	}

	fl := f.join(ctx, key)
	defer f.leave(key, fl)
	ch := f.group.DoChan(key, func() (interface{}, error) {
		result, err := f.next.Fetch(fl.ctx, page, size)
		if err != nil {
			return nil, err
		}
		if f.cache.enabled() {
			if err := f.cache.Set(fl.ctx, key, result); err != nil {
				f.onError("cache set", err)
			}
		}
		return result, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Page), nil
	}
}

// join registers a waiter on the flight for key, starting one if needed. The
// flight context keeps the values of ctx but not its cancellation, so one
// caller giving up does not fail the others.
func (f *CachedFetcher) join(ctx context.Context, key string) *flight {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.flights[key]
	if !ok {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: flightCtx, cancel: cancel}
		f.flights[key] = fl
	}
	fl.waiters++
	return fl
}

// leave drops a waiter. The last one out cancels the upstream request and
// forgets the key so later callers start a fresh fetch.
func (f *CachedFetcher) leave(key string, fl *flight) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if f.flights[key] == fl {
		delete(f.flights, key)
		f.group.Forget(key)
	}
}

// Invalidate drops cached pages.
func (f *CachedFetcher) Invalidate(ctx context.Context) error {
	return f.cache.Bump(ctx)
}
