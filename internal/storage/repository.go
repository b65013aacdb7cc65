// Package storage implements the Storage Substrate (C1): a generic
// repository contract over the relational store, plus the connection pool,
// retry, migration, and query-analysis machinery that back it.
package storage

import (
	"context"
	"time"

	"memoryengine/internal/apperrors"
)

// Entity is the constraint every persisted type satisfies: an identity and
// the tenant (organization) it belongs to.
type Entity interface {
	GetID() string
	GetOrgID() string
}

// Repository is the generic CRUD contract every entity-specific store
// implements (spec §4.1). A single generic interface replaces the teacher's
// family of hand-written per-entity repository interfaces.
type Repository[T Entity] interface {
	Create(ctx context.Context, entity T) error
	Read(ctx context.Context, orgID, id string) (T, error)
	Update(ctx context.Context, entity T) error
	Delete(ctx context.Context, orgID, id string) error     // soft delete: sets is_deleted
	HardDelete(ctx context.Context, orgID, id string) error // physical row removal
	List(ctx context.Context, orgID string, filter Filter) ([]T, error)
	Count(ctx context.Context, orgID string, filter Filter) (int, error)
}

// Filter expresses the subset of query capability every List/Count call
// needs: pagination, ordering, and a small set of equality/range predicates
// keyed by column name. It intentionally stops short of the teacher's full
// specification pattern (internal/repository/specifications.go) — the
// substrate only needs to express the predicates the memory engine actually
// issues (scope, level, time range).
type Filter struct {
	Equals      map[string]any
	After       *time.Time
	Before      *time.Time
	OrderBy     string
	Descending  bool
	Limit       int
	Offset      int
	IncludeSoftDeleted bool
}

// NewFilter returns an empty, unbounded filter.
func NewFilter() Filter {
	return Filter{Equals: map[string]any{}}
}

// WithEquals adds an equality predicate and returns the filter for chaining.
func (f Filter) WithEquals(column string, value any) Filter {
	if f.Equals == nil {
		f.Equals = map[string]any{}
	}
	f.Equals[column] = value
	return f
}

// WithRange restricts results to [after, before).
func (f Filter) WithRange(after, before *time.Time) Filter {
	f.After, f.Before = after, before
	return f
}

// WithPage sets a limit/offset page.
func (f Filter) WithPage(limit, offset int) Filter {
	f.Limit, f.Offset = limit, offset
	return f
}

// validateID rejects empty identifiers before a round trip to storage,
// returning the Validation error Kind.
func validateID(component, operation, orgID, id string) error {
	if orgID == "" {
		return apperrors.Validation(component, operation, "org id must not be empty")
	}
	if id == "" {
		return apperrors.Validation(component, operation, "id must not be empty")
	}
	return nil
}
