package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/series-dashboard/internal/series"
)

// DefaultTTL is how long a dataset is served from memory before it is refetched.
const DefaultTTL = 600 * time.Second

// entry is never mutated after creation; replacing a dataset swaps the pointer.
type entry struct {
	dataset    *series.Dataset
	insertedAt time.Time
}

// MemoryCache is a concurrency-safe, process-wide dataset cache with TTL
// expiry, explicit invalidation and one in-flight fetch per identity.
type MemoryCache struct {
	mu sync.RWMutex

	entries map[series.Identity]*entry
	// gens counts invalidations per identity and epoch counts InvalidateAll
	// calls; a fetch only stores its result if neither moved while it ran.
	gens  map[series.Identity]uint64
	epoch uint64

	flights      singleflight.Group
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time // injectable for deterministic tests
}

// NewMemoryCache creates a cache. ttl <= 0 selects DefaultTTL; fetchTimeout
// bounds every fetch and <= 0 leaves it to the fetch function.
func NewMemoryCache(ttl, fetchTimeout time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries:      make(map[series.Identity]*entry),
		gens:         make(map[series.Identity]uint64),
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
}

// Peek returns the live dataset for id without fetching.
func (c *MemoryCache) Peek(id series.Identity) (*series.Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liveLocked(id)
}

func (c *MemoryCache) liveLocked(id series.Identity) (*series.Dataset, bool) {
	e, ok := c.entries[id]
	if !ok || c.now().Sub(e.insertedAt) >= c.ttl {
		return nil, false
	}
	return e.dataset, true
}

// Load returns the live dataset for id, or runs fetch and stores its result.
// Concurrent callers for the same identity share one fetch.
func (c *MemoryCache) Load(ctx context.Context, id series.Identity, fetch series.FetchFunc) (*series.Dataset, error) {
	c.mu.RLock()
	if ds, ok := c.liveLocked(id); ok {
		c.mu.RUnlock()
		return ds, nil
	}
	gen := c.genLocked(id)
	c.mu.RUnlock()

	key := fmt.Sprintf("%s#%d", id, gen)
	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		// Another flight may have populated the entry since the check above.
		if ds, ok := c.Peek(id); ok {
			return ds, nil
		}

		// The fetch outlives a cancelled caller so joined callers still get a result.
		fctx := context.WithoutCancel(ctx)
		if c.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.fetchTimeout)
			defer cancel()
		}

		ds, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if ds == nil {
			return nil, fmt.Errorf("%w: %s: fetch returned no dataset", series.ErrFetchFailure, id)
		}

		c.mu.Lock()
		if c.genLocked(id) == gen {
			c.entries[id] = &entry{dataset: ds, insertedAt: c.now()}
		}
		c.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*series.Dataset), nil
}

// Invalidate drops the entry for id. The next Load refetches.
func (c *MemoryCache) Invalidate(id series.Identity) {
	c.mu.Lock()
	delete(c.entries, id)
	c.gens[id]++
	c.mu.Unlock()
}

// InvalidateIfStale drops the live entry for id when its fingerprint differs
// from fingerprint. Concurrent callers seeing the same new fingerprint
// invalidate at most once.
func (c *MemoryCache) InvalidateIfStale(id series.Identity, fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.liveLocked(id)
	if !ok || ds.Fingerprint == fingerprint {
		return false
	}
	delete(c.entries, id)
	c.gens[id]++
	return true
}

// InvalidateAll drops every entry.
func (c *MemoryCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[series.Identity]*entry)
	c.epoch++
	c.mu.Unlock()
}

func (c *MemoryCache) genLocked(id series.Identity) uint64 {
	return c.gens[id] + c.epoch
}

// InsertedAt returns when the live entry for id was stored.
func (c *MemoryCache) InsertedAt(id series.Identity) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.liveLocked(id); !ok {
		return time.Time{}, false
	}
	return c.entries[id].insertedAt, true
}
