// package cache implements a namespaced, TTL-bounded in-memory cache.
//
// Namespaces isolate key collisions between unrelated operation kinds (search
// results, track listings, stream manifests). Each namespace is capacity
// bounded; inserting into a full namespace evicts the entry with the oldest
// creation time. Cache bookkeeping failures never propagate to callers: a
// broken cache degrades to a miss, never to an error.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Entry is a single cached value owned by one (namespace, key) slot.
type Entry struct {
	Value     any
	CreatedAt time.Time
	ExpiresAt time.Time
	HitCount  int
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats is a point-in-time summary of cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Expired   int64
	HitRate   float64
	Size      int
}

// Cache is a namespaced key-value store with per-entry expiry.
//
// Safe for concurrent use. The zero value is not usable; construct with [New].
type Cache struct {
	mu         sync.Mutex
	namespaces map[string]map[string]*Entry
	maxEntries int

	hits      int64
	misses    int64
	sets      int64
	evictions int64
	expired   int64

	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// DefaultMaxEntries bounds each namespace when no explicit limit is configured.
const DefaultMaxEntries = 256

// New creates a Cache where each namespace holds at most maxEntries entries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Cache{
		namespaces: make(map[string]map[string]*Entry),
		maxEntries: maxEntries,
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Set stores a value under (namespace, key) with the given TTL.
//
// Inserting a new key into a full namespace first evicts the entry with the
// oldest CreatedAt. Overwriting an existing key never triggers eviction.
func (c *Cache) Set(namespace, key string, value any, ttl time.Duration) {
	if namespace == "" || key == "" || ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.namespaces[namespace]
	if !ok {
		ns = make(map[string]*Entry)
		c.namespaces[namespace] = ns
	}

	if _, exists := ns[key]; !exists && len(ns) >= c.maxEntries {
		c.evictOldestLocked(ns)
	}

	now := c.now()
	ns[key] = &Entry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	c.sets++
}

// Get retrieves a value by (namespace, key).
//
// Returns (nil, false) for missing or expired entries; an expired entry is
// removed on the way out even if the sweeper never ran.
func (c *Cache) Get(namespace, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookupLocked(namespace, key)
	if !ok {
		c.misses++
		return nil, false
	}

	entry.HitCount++
	c.hits++
	return entry.Value, true
}

// Has reports whether a live entry exists for (namespace, key) without
// counting a hit or a miss.
func (c *Cache) Has(namespace, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookupLocked(namespace, key)
	return ok
}

// Delete removes the entry for (namespace, key) if present.
func (c *Cache) Delete(namespace, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ns, ok := c.namespaces[namespace]; ok {
		delete(ns, key)
	}
}

// Clear removes all entries in the given namespace, or every namespace when
// namespace is empty.
func (c *Cache) Clear(namespace string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if namespace == "" {
		c.namespaces = make(map[string]map[string]*Entry)
		return
	}
	delete(c.namespaces, namespace)
}

// GetOrSet returns the cached value for (namespace, key), computing and
// storing it on a miss.
//
// A failed computation is returned to the caller and never cached; a nil
// result is also left uncached so a later call retries the computation.
// Compute runs outside the cache lock, so concurrent callers for the same
// key may each invoke it; the last writer wins.
func (c *Cache) GetOrSet(namespace, key string, compute func() (any, error), ttl time.Duration) (any, error) {
	if value, ok := c.Get(namespace, key); ok {
		return value, nil
	}

	value, err := compute()
	if err != nil {
		return nil, err
	}

	if value != nil {
		c.Set(namespace, key, value, ttl)
	}

	return value, nil
}

// InvalidatePrefix removes every entry in any namespace whose key starts
// with prefix, returning the number removed. The refresh coordinator uses
// this to drop entries keyed by a rotated access token.
func (c *Cache) InvalidatePrefix(prefix string) int {
	if prefix == "" {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, ns := range c.namespaces {
		keys := make([]string, 0, len(ns))
		for key := range ns {
			keys = append(keys, key)
		}

		for _, key := range keys {
			if strings.HasPrefix(key, prefix) {
				delete(ns, key)
				removed++
			}
		}
	}

	return removed
}

// Sweep removes every expired entry across all namespaces and returns the
// number removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	for _, ns := range c.namespaces {
		// Snapshot keys before deleting to avoid mutating the map mid-iteration.
		keys := make([]string, 0, len(ns))
		for key := range ns {
			keys = append(keys, key)
		}

		for _, key := range keys {
			if entry := ns[key]; entry != nil && entry.Expired(now) {
				delete(ns, key)
				removed++
			}
		}
	}

	c.expired += int64(removed)
	return removed
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := 0
	for _, ns := range c.namespaces {
		size += len(ns)
	}

	stats := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Evictions: c.evictions,
		Expired:   c.expired,
		Size:      size,
	}

	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}

	return stats
}

// StartSweeper runs Sweep on the given interval until Stop is called.
func (c *Cache) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-c.done:
				return
			}
		}
	}()
}

// Stop terminates the background sweeper. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// lookupLocked returns the live entry for (namespace, key), removing it if
// expired. Caller must hold c.mu.
func (c *Cache) lookupLocked(namespace, key string) (*Entry, bool) {
	ns, ok := c.namespaces[namespace]
	if !ok {
		return nil, false
	}

	entry, ok := ns[key]
	if !ok {
		return nil, false
	}

	if entry.Expired(c.now()) {
		delete(ns, key)
		c.expired++
		return nil, false
	}

	return entry, true
}

// evictOldestLocked removes the entry with the oldest CreatedAt from ns.
// Caller must hold c.mu.
func (c *Cache) evictOldestLocked(ns map[string]*Entry) {
	var oldestKey string
	var oldest time.Time

	for key, entry := range ns {
		if oldestKey == "" || entry.CreatedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		delete(ns, oldestKey)
		c.evictions++
	}
}
