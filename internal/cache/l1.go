package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

const shardCount = 16

// L1 is a sharded in-process Tier. Sharding spreads lock contention across
// shardCount maps, each independently guarded, grounded on the teacher's
// single-mutex internal/di/cache/memory_cache.go generalized for
// concurrent multi-core access.
type L1 struct {
	shards   [shardCount]*shard
	maxItems int
}

type shard struct {
	mu    sync.RWMutex
	items map[string]l1Item
}

type l1Item struct {
	value      []byte
	expiresAt  time.Time
	lastAccess time.Time
}

// NewL1 builds an L1 tier capped at maxItems entries per shard; eviction
// on overflow drops the least-recently-accessed entry in that shard
// (LRU-by-access-time, per spec §4.2).
func NewL1(maxItemsPerShard int) *L1 {
	l1 := &L1{maxItems: maxItemsPerShard}
	for i := range l1.shards {
		l1.shards[i] = &shard{items: map[string]l1Item{}}
	}
	return l1
}

func (l *L1) shardFor(key string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return l.shards[h%shardCount]
}

func (l *L1) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(item.expiresAt) {
		delete(s.items, key)
		return nil, false, nil
	}
	item.lastAccess = time.Now()
	s.items[key] = item
	return item.value, true, nil
}

func (l *L1) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.maxItems > 0 && len(s.items) >= l.maxItems {
		if _, exists := s.items[key]; !exists {
			s.evictOldestLocked()
		}
	}

	now := time.Now()
	s.items[key] = l1Item{value: value, expiresAt: now.Add(ttl), lastAccess: now}
	return nil
}

func (l *L1) Delete(ctx context.Context, key string) error {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Clear removes every key with the given prefix across all shards;
// "*" clears everything.
func (l *L1) Clear(ctx context.Context, prefix string) error {
	for _, s := range l.shards {
		s.mu.Lock()
		for key := range s.items {
			if prefix == "*" || strings.HasPrefix(key, prefix) {
				delete(s.items, key)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// Bytes sums the length of every cached value across shards, used for the
// L1Bytes usage metric.
func (l *L1) Bytes() int64 {
	var total int64
	for _, s := range l.shards {
		s.mu.RLock()
		for _, item := range s.items {
			total += int64(len(item.value))
		}
		s.mu.RUnlock()
	}
	return total
}

func (s *shard) evictOldestLocked() {
	var oldestKey string
	var oldestAccess time.Time
	for key, item := range s.items {
		if oldestKey == "" || item.lastAccess.Before(oldestAccess) {
			oldestKey = key
			oldestAccess = item.lastAccess
		}
	}
	if oldestKey != "" {
		delete(s.items, oldestKey)
	}
}
