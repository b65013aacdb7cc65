// Package testsupport holds fakes shared by the engine's package tests: an
// in-memory storage.Repository[T], a scripted LLM client, and a
// deterministic embedder, so each component's tests exercise its real
// logic against a predictable double instead of a live Postgres/LLM/vector
// backend.
package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/storage"
)

// InMemoryRepository is a storage.Repository[T] backed by a guarded map,
// sufficient for exercising every component that depends on C1 without a
// database.
type InMemoryRepository[T storage.Entity] struct {
	mu      sync.Mutex
	rows    map[string]T    // keyed by orgID+"/"+id
	deleted map[string]bool // soft-deleted keys
	created map[string]time.Time
	now     func() time.Time
}

// NewInMemoryRepository builds an empty repository. now lets tests control
// the clock used for List's time-range filter; pass time.Now if real time
// is fine.
func NewInMemoryRepository[T storage.Entity](now func() time.Time) *InMemoryRepository[T] {
	return &InMemoryRepository[T]{
		rows:    map[string]T{},
		deleted: map[string]bool{},
		created: map[string]time.Time{},
		now:     now,
	}
}

func key(orgID, id string) string { return orgID + "/" + id }

func (r *InMemoryRepository[T]) Create(ctx context.Context, entity T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(entity.GetOrgID(), entity.GetID())
	if _, exists := r.rows[k]; exists {
		return apperrors.Conflict("testsupport", "create", "entity already exists")
	}
	r.rows[k] = entity
	r.created[k] = r.now()
	return nil
}

func (r *InMemoryRepository[T]) Read(ctx context.Context, orgID, id string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	k := key(orgID, id)
	row, ok := r.rows[k]
	if !ok || r.deleted[k] {
		return zero, apperrors.NotFound("testsupport", "read", "entity not found").WithTenant(orgID)
	}
	return row, nil
}

func (r *InMemoryRepository[T]) Update(ctx context.Context, entity T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(entity.GetOrgID(), entity.GetID())
	if _, ok := r.rows[k]; !ok {
		return apperrors.NotFound("testsupport", "update", "entity not found").WithTenant(entity.GetOrgID())
	}
	r.rows[k] = entity
	return nil
}

func (r *InMemoryRepository[T]) Delete(ctx context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(orgID, id)
	if _, ok := r.rows[k]; !ok {
		return apperrors.NotFound("testsupport", "delete", "entity not found").WithTenant(orgID)
	}
	r.deleted[k] = true
	return nil
}

func (r *InMemoryRepository[T]) HardDelete(ctx context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(orgID, id)
	if _, ok := r.rows[k]; !ok {
		return apperrors.NotFound("testsupport", "hard_delete", "entity not found").WithTenant(orgID)
	}
	delete(r.rows, k)
	delete(r.deleted, k)
	delete(r.created, k)
	return nil
}

// List applies org scoping, soft-delete visibility, the time-range filter,
// and pagination. It intentionally ignores filter.Equals: a generic
// Entity has no field accessors beyond GetID/GetOrgID, so arbitrary
// equality predicates can't be evaluated without reflection. Tests that
// need a predicate filter it over the returned slice themselves.
func (r *InMemoryRepository[T]) List(ctx context.Context, orgID string, filter storage.Filter) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []T
	var keys []string
	for k, row := range r.rows {
		if row.GetOrgID() != orgID {
			continue
		}
		if r.deleted[k] && !filter.IncludeSoftDeleted {
			continue
		}
		if !matchesFilter(r.created[k], filter) {
			continue
		}
		out = append(out, row)
		keys = append(keys, k)
	}

	sort.Slice(out, func(i, j int) bool { return keys[i] < keys[j] })

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(createdAt time.Time, filter storage.Filter) bool {
	if filter.After != nil && createdAt.Before(*filter.After) {
		return false
	}
	if filter.Before != nil && !createdAt.Before(*filter.Before) {
		return false
	}
	return true
}

func (r *InMemoryRepository[T]) Count(ctx context.Context, orgID string, filter storage.Filter) (int, error) {
	rows, err := r.List(ctx, orgID, storage.Filter{Equals: filter.Equals, After: filter.After, Before: filter.Before, IncludeSoftDeleted: filter.IncludeSoftDeleted})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
