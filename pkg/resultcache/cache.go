// Package resultcache holds result sets already fetched during one browsing session,
// keyed by normalised filters, sort, search text and page.
//
// Eviction is strict FIFO: reads never refresh an entry's position and an entry, once
// stored, is never replaced. There is no wall-clock expiry.
package resultcache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resultCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srp_result_cache_hits_total",
		Help: "Total number of result cache hits",
	})

	resultCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srp_result_cache_misses_total",
		Help: "Total number of result cache misses",
	})

	resultCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "srp_result_cache_evictions_total",
		Help: "Total number of result cache entries evicted at capacity",
	})
)

// DefaultCapacity is the number of result sets kept per session.
const DefaultCapacity = 50

// Entry is one cached result set. Entries are never mutated after insertion.
type Entry[R, F any] struct {
	Key    Key
	Rows   R
	Facets F

	// InsertedAt is the insertion ordinal, starting at 1.
	InsertedAt uint64
}

// Config holds the cache configuration.
type Config struct {
	Capacity int
}

// DefaultConfig returns a configuration with DefaultCapacity.
func DefaultConfig() Config {
	return Config{Capacity: DefaultCapacity}
}

// Cache is a bounded FIFO store of result sets with rows of type R and facets of
// type F. It is safe for concurrent use.
type Cache[R, F any] struct {
	mu     sync.Mutex
	store  *lru.Cache[Key, *Entry[R, F]]
	next   uint64
	seeded bool
}

// New creates a cache.
func New[R, F any](cfg Config) (*Cache[R, F], error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be >= 1 (got %d)", cfg.Capacity)
	}

	store, err := lru.NewWithEvict(cfg.Capacity, func(Key, *Entry[R, F]) {
		resultCacheEvictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	return &Cache[R, F]{store: store}, nil
}

// Get returns the entry stored under key. It does not change eviction order.
func (c *Cache[R, F]) Get(key Key) (*Entry[R, F], bool) {
	entry, ok := c.store.Peek(key)
	if !ok {
		resultCacheMisses.Inc()
		return nil, false
	}
	resultCacheHits.Inc()
	return entry, true
}

// Set stores rows and facets under key and returns the stored entry. If key is
// already present the existing entry is kept and returned. At capacity the
// oldest-inserted entry is evicted.
func (c *Cache[R, F]) Set(key Key, rows R, facets F) *Entry[R, F] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.store.Peek(key); ok {
		return existing
	}

	c.next++
	entry := &Entry[R, F]{Key: key, Rows: rows, Facets: facets, InsertedAt: c.next}
	c.store.Add(key, entry)
	return entry
}

// Seed stores the initial server-rendered result. Only the first call has an
// effect; it reports whether the entry was stored.
func (c *Cache[R, F]) Seed(key Key, rows R, facets F) bool {
	c.mu.Lock()
	if c.seeded {
		c.mu.Unlock()
		return false
	}
	c.seeded = true
	c.mu.Unlock()

	c.Set(key, rows, facets)
	return true
}

// Len returns the number of stored entries.
func (c *Cache[R, F]) Len() int {
	return c.store.Len()
}

// Keys returns the stored keys, oldest first.
func (c *Cache[R, F]) Keys() []Key {
	return c.store.Keys()
}
