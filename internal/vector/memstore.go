package vector

import (
	"context"
	"encoding/binary"
	"math"
	"strconv"
	"sync"

	"memoryengine/internal/apperrors"
)

const queryCacheSize = 64

// MemStore is the in-process hash-map reference Adapter (spec §4.3): a
// guarded map plus a small LRU query-result cache keyed by a bit-hash of
// the query vector, invalidated on any write.
type MemStore struct {
	mu        sync.RWMutex
	dimension int
	metric    Metric
	rows      map[string]Data // keyed by orgID+"/"+id

	cacheMu sync.Mutex
	cache   map[string]cachedQuery
	cacheLRU []string
}

type cachedQuery struct {
	results []SearchResult
}

// NewMemStore builds an empty store validating against dimension using
// metric for all similarity computation.
func NewMemStore(dimension int, metric Metric) *MemStore {
	return &MemStore{
		dimension: dimension,
		metric:    metric,
		rows:      map[string]Data{},
		cache:     map[string]cachedQuery{},
	}
}

func memKey(orgID, id string) string { return orgID + "/" + id }

func (m *MemStore) AddVectors(ctx context.Context, items []Data) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if err := ValidateDimension(item.Vector, m.dimension); err != nil {
			return nil, err
		}
		m.rows[memKey(item.OrgID, item.ID)] = item
		ids = append(ids, item.ID)
	}
	m.invalidateCache()
	return ids, nil
}

func (m *MemStore) UpdateVectors(ctx context.Context, items []Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range items {
		if err := ValidateDimension(item.Vector, m.dimension); err != nil {
			return err
		}
		k := memKey(item.OrgID, item.ID)
		if _, ok := m.rows[k]; !ok {
			return apperrors.NotFound("vector", "update_vectors", "vector not found").WithTenant(item.OrgID)
		}
		m.rows[k] = item
	}
	m.invalidateCache()
	return nil
}

func (m *MemStore) DeleteVectors(ctx context.Context, orgID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.rows, memKey(orgID, id))
	}
	m.invalidateCache()
	return nil
}

func (m *MemStore) GetVector(ctx context.Context, orgID, id string) (Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[memKey(orgID, id)]
	if !ok {
		return Data{}, apperrors.NotFound("vector", "get_vector", "vector not found").WithTenant(orgID)
	}
	return row, nil
}

func (m *MemStore) CountVectors(ctx context.Context, orgID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, row := range m.rows {
		if row.OrgID == orgID {
			count++
		}
	}
	return count, nil
}

func (m *MemStore) Clear(ctx context.Context, orgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, row := range m.rows {
		if row.OrgID == orgID {
			delete(m.rows, k)
		}
	}
	m.invalidateCache()
	return nil
}

// SearchVectors scores every row in orgID against query, applying
// threshold when given, and returns the top k. Queries are memoized by a
// bit-hash of the query vector plus (orgID, k, threshold) until the next
// write invalidates the whole cache — a coarse but simple policy matching
// spec §4.3's "invalidated on any write".
func (m *MemStore) SearchVectors(ctx context.Context, orgID string, query []float32, k int, threshold *float64) ([]SearchResult, error) {
	if err := ValidateDimension(query, m.dimension); err != nil {
		return nil, err
	}

	key := queryCacheKey(orgID, query, k, threshold)
	if cached, ok := m.lookupCache(key); ok {
		return cached, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, row := range m.rows {
		if row.OrgID != orgID {
			continue
		}
		similarity, distance := Similarity(m.metric, query, row.Vector)
		if threshold != nil && similarity < *threshold {
			continue
		}
		results = append(results, SearchResult{Data: row, Similarity: similarity, Distance: distance})
	}
	sortResults(results)
	if k > 0 && k < len(results) {
		results = results[:k]
	}

	m.storeCache(key, results)
	return results, nil
}

// queryCacheKey folds a query vector into a short bit-hash combined with
// the call's other parameters, per spec §4.3 ("a small LRU query-result
// cache keyed by a bit-hash of the query vector").
func queryCacheKey(orgID string, query []float32, k int, threshold *float64) string {
	var h uint64 = 1469598103934665603
	for _, f := range query {
		bits := make([]byte, 4)
		binary.LittleEndian.PutUint32(bits, math.Float32bits(f))
		for _, b := range bits {
			h ^= uint64(b)
			h *= 1099511628211
		}
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, h)
	suffix := ""
	if threshold != nil {
		suffix = "+t" + strconv.FormatFloat(*threshold, 'g', -1, 64)
	}
	return orgID + ":" + string(buf) + ":" + itoa(k) + suffix
}

func (m *MemStore) lookupCache(key string) ([]SearchResult, bool) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	entry, ok := m.cache[key]
	if !ok {
		return nil, false
	}
	m.touchLRU(key)
	return entry.results, true
}

func (m *MemStore) storeCache(key string, results []SearchResult) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if _, exists := m.cache[key]; !exists && len(m.cache) >= queryCacheSize {
		m.evictLRULocked()
	}
	m.cache[key] = cachedQuery{results: results}
	m.touchLRU(key)
}

func (m *MemStore) touchLRU(key string) {
	for i, k := range m.cacheLRU {
		if k == key {
			m.cacheLRU = append(m.cacheLRU[:i], m.cacheLRU[i+1:]...)
			break
		}
	}
	m.cacheLRU = append(m.cacheLRU, key)
}

func (m *MemStore) evictLRULocked() {
	if len(m.cacheLRU) == 0 {
		return
	}
	oldest := m.cacheLRU[0]
	m.cacheLRU = m.cacheLRU[1:]
	delete(m.cache, oldest)
}

func (m *MemStore) invalidateCache() {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.cache = map[string]cachedQuery{}
	m.cacheLRU = nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
