package geo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tinytelemetry/accesslens/internal/model"
)

const (
	defaultCacheTTL     = 24 * time.Hour
	defaultCacheMaxSize = 100_000
)

type cacheEntry struct {
	loc   model.Location
	found bool
	ts    time.Time
}

// CachingResolver memoizes another resolver. Misses are cached too, so an
// unknown IP is only asked for once per TTL. Concurrent lookups of the same
// IP share one upstream call. Errors are not cached.
type CachingResolver struct {
	next    model.GeoResolver
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu     sync.RWMutex
	cache  map[string]cacheEntry
	flight singleflight.Group
}

// NewCachingResolver wraps next. A ttl or maxSize of zero uses the defaults.
func NewCachingResolver(next model.GeoResolver, ttl time.Duration, maxSize int) *CachingResolver {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = defaultCacheMaxSize
	}
	return &CachingResolver{
		next:    next,
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// Resolve implements model.GeoResolver.
func (c *CachingResolver) Resolve(ctx context.Context, ip string) (model.Location, bool, error) {
	if ip == "" {
		return model.Location{}, false, nil
	}

	c.mu.RLock()
	if e, ok := c.cache[ip]; ok && c.now().Sub(e.ts) < c.ttl {
		c.mu.RUnlock()
		return e.loc, e.found, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.flight.Do(ip, func() (any, error) {
		loc, found, err := c.next.Resolve(ctx, ip)
		if err != nil {
			return nil, err
		}
		e := cacheEntry{loc: loc, found: found, ts: c.now()}

		c.mu.Lock()
		if len(c.cache) >= c.maxSize {
			c.evictLocked()
		}
		c.cache[ip] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return model.Location{}, false, err
	}
	e := v.(cacheEntry)
	return e.loc, e.found, nil
}

// Len returns the number of cached entries.
func (c *CachingResolver) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// evictLocked removes about a quarter of the entries. Map iteration order
// is random, so this is random eviction. c.mu must be held for writing.
func (c *CachingResolver) evictLocked() {
	target := c.maxSize / 4
	if target == 0 {
		target = 1
	}
	deleted := 0
	for k := range c.cache {
		if deleted >= target {
			break
		}
		delete(c.cache, k)
		deleted++
	}
}
