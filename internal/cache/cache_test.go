package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGetRoundTrip(t *testing.T) {
	c := New(NewL1(100), nil, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))
	value, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)
}

func TestCacheGetMissRecordsStats(t *testing.T) {
	c := New(NewL1(100), nil, time.Minute, nil)
	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCacheExpiresEntries(t *testing.T) {
	c := New(NewL1(100), nil, time.Millisecond, nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheDeleteRemovesEntry(t *testing.T) {
	c := New(NewL1(100), nil, time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))
	require.NoError(t, c.Delete(ctx, "k1"))
	_, ok, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheClearWithPrefix(t *testing.T) {
	c := New(NewL1(100), nil, time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "memory:org1:a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "memory:org1:b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "other:key", []byte("3"), 0))

	require.NoError(t, c.Clear(ctx, "memory:org1:"))

	_, ok, _ := c.Get(ctx, "memory:org1:a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "other:key")
	assert.True(t, ok)
}

func TestCacheGetOrLoadCallsLoaderOnce(t *testing.T) {
	c := New(NewL1(100), nil, time.Minute, nil)
	ctx := context.Background()

	var calls atomic.Int32
	var wg sync.WaitGroup
	results := make([][]byte, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			value, err := c.GetOrLoad(ctx, "shared-key", time.Minute, func(ctx context.Context) ([]byte, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				return []byte("loaded"), nil
			})
			require.NoError(t, err)
			results[idx] = value
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, []byte("loaded"), r)
	}
}

func TestCacheSetL2OnlySkipsL1(t *testing.T) {
	l1 := NewL1(100)
	l2 := newFakeTier()
	c := New(l1, l2, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, c.SetL2Only(ctx, "bulk-key", []byte("v"), 0))

	_, okL1, _ := l1.Get(ctx, "bulk-key")
	assert.False(t, okL1)
	_, okL2, _ := l2.Get(ctx, "bulk-key")
	assert.True(t, okL2)
}

func TestCacheGetBackfillsL1OnL2Hit(t *testing.T) {
	l1 := NewL1(100)
	l2 := newFakeTier()
	c := New(l1, l2, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", []byte("from-l2"), time.Minute))

	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("from-l2"), value)

	backfilled, okL1, _ := l1.Get(ctx, "k")
	assert.True(t, okL1)
	assert.Equal(t, []byte("from-l2"), backfilled)
}

func TestStatsHitRate(t *testing.T) {
	s := Stats{Hits: 3, Misses: 1}
	assert.InDelta(t, 0.75, s.HitRate(), 0.0001)
	assert.Equal(t, float64(0), Stats{}.HitRate())
}

func TestL1EvictsLeastRecentlyAccessed(t *testing.T) {
	l1 := NewL1(2)
	ctx := context.Background()
	// Pick three keys that hash to the same shard so the per-shard cap of
	// 2 forces an eviction on the third insert.
	target := l1.shardFor("k0")
	keys := []string{"k0"}
	for i := 1; len(keys) < 3; i++ {
		k := "k" + strconv.Itoa(i)
		if l1.shardFor(k) == target {
			keys = append(keys, k)
		}
	}
	require.NoError(t, l1.Set(ctx, keys[0], []byte("1"), time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, l1.Set(ctx, keys[1], []byte("2"), time.Minute))
	time.Sleep(time.Millisecond)
	// Touch the first key so the second becomes least recently accessed.
	_, ok, _ := l1.Get(ctx, keys[0])
	require.True(t, ok)
	time.Sleep(time.Millisecond)
	require.NoError(t, l1.Set(ctx, keys[2], []byte("3"), time.Minute))

	_, ok, _ = l1.Get(ctx, keys[1])
	assert.False(t, ok)
	_, ok, _ = l1.Get(ctx, keys[0])
	assert.True(t, ok)
	_, ok, _ = l1.Get(ctx, keys[2])
	assert.True(t, ok)
}

// fakeTier is a minimal in-memory Tier double standing in for L2DynamoDB
// in tests, since the real L2 needs a live AWS endpoint.
type fakeTier struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newFakeTier() *fakeTier { return &fakeTier{items: map[string][]byte{}} }

func (f *fakeTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[key]
	return v, ok, nil
}

func (f *fakeTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = value
	return nil
}

func (f *fakeTier) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, key)
	return nil
}

func (f *fakeTier) Clear(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = map[string][]byte{}
	return nil
}
