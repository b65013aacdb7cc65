// Package cache implements the two-tier cache (spec §4.2): an in-process
// L1 with LRU-by-access-time eviction, grounded on the teacher's
// internal/di/cache/memory_cache.go, and a shared L2 backed by DynamoDB,
// repurposing the teacher's heaviest dependency (aws-sdk-go-v2's dynamodb
// service) now that the relational store lives in internal/storage
// instead. Set writes to L1 and through to L2; SetL2Only writes to L2
// alone, around L1; reads stampede-protect with a per-key loader lock.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/observability"
)

// Tier is a single-layer cache, implemented independently by L1 and L2.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context, prefix string) error
}

// Stats reports the counters spec §4.2 requires for observability.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	L1Bytes     int64
	L2Entries   int64
	LastUpdated time.Time
}

// HitRate returns Hits / (Hits + Misses), or 0 when nothing has happened
// yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the unified L1+L2 facade components depend on.
type Cache struct {
	l1         Tier
	l2         Tier
	defaultTTL time.Duration
	collector  *observability.Collector

	mu        sync.Mutex
	hits      int64
	misses    int64
	evictions int64

	loadersMu sync.Mutex
	loaders   map[string]*loaderSlot
}

// loaderSlot is the stampede-protection sentinel: the first caller to miss
// a key holds it while it loads; concurrent callers for the same key wait
// on done instead of also hitting L2/the backing store.
type loaderSlot struct {
	done chan struct{}
}

// New builds a Cache over an L1 tier, an optional L2 tier (nil disables
// L2 entirely, useful for tests), and a default TTL used when Set is
// called with ttl<=0.
func New(l1 Tier, l2 Tier, defaultTTL time.Duration, collector *observability.Collector) *Cache {
	return &Cache{
		l1:         l1,
		l2:         l2,
		defaultTTL: defaultTTL,
		collector:  collector,
		loaders:    map[string]*loaderSlot{},
	}
}

// Get checks L1 then L2, on an L2 hit backfilling L1 (write-around does
// not apply to reads: repopulating L1 on an L2 hit is how entries written
// on another node become locally hot again).
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if value, ok, err := c.l1.Get(ctx, key); err != nil {
		return nil, false, apperrors.Wrap(err, "cache", "get", "l1 read")
	} else if ok {
		c.recordHit()
		return value, true, nil
	}

	if c.l2 == nil {
		c.recordMiss()
		return nil, false, nil
	}

	value, ok, err := c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, apperrors.Wrap(err, "cache", "get", "l2 read")
	}
	if !ok {
		c.recordMiss()
		return nil, false, nil
	}
	c.recordHit()
	_ = c.l1.Set(ctx, key, value, c.defaultTTL)
	return value, true, nil
}

// GetOrLoad returns the cached value for key, or calls load exactly once
// per concurrent miss window and caches its result (spec §4.2: "a single
// loader per key... holds a short-lived sentinel; other callers await").
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok, err := c.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}

	c.loadersMu.Lock()
	if slot, inflight := c.loaders[key]; inflight {
		c.loadersMu.Unlock()
		select {
		case <-slot.done:
			value, ok, err := c.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if ok {
				return value, nil
			}
			return nil, apperrors.Internal("cache", "get_or_load", "loader completed without caching a value", nil)
		case <-ctx.Done():
			return nil, apperrors.Wrap(ctx.Err(), "cache", "get_or_load", "context canceled awaiting loader")
		}
	}

	slot := &loaderSlot{done: make(chan struct{})}
	c.loaders[key] = slot
	c.loadersMu.Unlock()

	defer func() {
		c.loadersMu.Lock()
		delete(c.loaders, key)
		c.loadersMu.Unlock()
		close(slot.done)
	}()

	value, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		return nil, err
	}
	return value, nil
}

// Set writes the value to L1 and, when an L2 tier is configured, through
// to L2. Bulk ingest paths that write around L1 call SetL2Only instead.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return apperrors.Wrap(err, "cache", "set", "l1 write")
	}
	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, value, ttl); err != nil {
			return apperrors.Wrap(err, "cache", "set", "l2 write")
		}
	}
	c.touch()
	return nil
}

// SetL2Only writes through to L2 without populating L1, for bulk-ingest
// callers that would otherwise flood the hot-path L1 with entries unlikely
// to be read again soon (spec §4.2: "write-around to L1 to avoid
// polluting hot-path memory on bulk ingests").
func (c *Cache) SetL2Only(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.l2 == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return apperrors.Wrap(err, "cache", "set_l2_only", "l2 write")
	}
	c.touch()
	return nil
}

// Delete removes key from both tiers. MemoryKey invalidation calls this
// after the owning transaction commits (spec §4.2).
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return apperrors.Wrap(err, "cache", "delete", "l1 delete")
	}
	if c.l2 != nil {
		if err := c.l2.Delete(ctx, key); err != nil {
			return apperrors.Wrap(err, "cache", "delete", "l2 delete")
		}
	}
	return nil
}

// Exists reports whether key is present in either tier without returning
// its value.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

// Clear removes every key matching prefix ("*" clears everything) from
// both tiers.
func (c *Cache) Clear(ctx context.Context, prefix string) error {
	if err := c.l1.Clear(ctx, prefix); err != nil {
		return apperrors.Wrap(err, "cache", "clear", "l1 clear")
	}
	if c.l2 != nil {
		if err := c.l2.Clear(ctx, prefix); err != nil {
			return apperrors.Wrap(err, "cache", "clear", "l2 clear")
		}
	}
	return nil
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	if c.collector != nil {
		c.collector.RecordCacheHit()
	}
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	if c.collector != nil {
		c.collector.RecordCacheMiss()
	}
}

func (c *Cache) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
}

// Stats snapshots the counters tracked since construction.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		LastUpdated: time.Now(),
	}
}

// MemoryKey builds the cache key for a memory's cached representation,
// namespaced by org so keys never cross tenants.
func MemoryKey(orgID, memoryID string) string {
	return "memory:" + orgID + ":" + memoryID
}

// QueryCacheKey hashes a query vector's byte representation into a fixed
// short key, matching the bit-hash approach spec §4.3 calls for on the
// vector adapter's query-result cache.
func QueryCacheKey(namespace string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return namespace + ":" + hex.EncodeToString(sum[:8])
}
