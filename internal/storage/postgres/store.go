// Package postgres implements C1's relational backend on top of
// supabase-go's Postgres/PostgREST client. Client construction follows
// cmd/ws-connect/main.go's supabase.NewClient call; the query-builder usage
// (From/Select/Insert/Update/Delete with Eq filters) follows supabase-go's
// own documented QueryBuilder contract, which the retrieved pack exercises
// only for auth, not data queries.
package postgres

import (
	"context"
	"fmt"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/storage"
	"memoryengine/internal/storage/analyzer"
	"memoryengine/internal/storage/retry"
)

// Store is a generic relational repository for one table, backed by a
// shared supabase-go client.
type Store[T storage.Entity] struct {
	client    *supabase.Client
	table     string
	component string
	retryCfg  retry.Config
	analyzer  *analyzer.Analyzer
}

// New builds a Store for table, tagging every emitted apperrors.Error with
// component for observability.
func New[T storage.Entity](client *supabase.Client, table, component string, an *analyzer.Analyzer) *Store[T] {
	return &Store[T]{
		client:    client,
		table:     table,
		component: component,
		retryCfg:  retry.Default(),
		analyzer:  an,
	}
}

func (s *Store[T]) timed(statement string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.analyzer != nil {
		s.analyzer.Record(statement, time.Since(start))
	}
	return err
}

func (s *Store[T]) withRetry(ctx context.Context, statement string, fn func() error) error {
	return retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.timed(statement, fn)
	})
}

// Create inserts a new row.
func (s *Store[T]) Create(ctx context.Context, entity T) error {
	statement := fmt.Sprintf("INSERT INTO %s", s.table)
	return s.withRetry(ctx, statement, func() error {
		var inserted []T
		_, _, err := s.client.From(s.table).Insert(entity, false, "", "representation", "exact").ExecuteTo(&inserted)
		if err != nil {
			return apperrors.Wrap(classify(err), s.component, "create", "insert row").WithTenant(entity.GetOrgID())
		}
		return nil
	})
}

// Read fetches a single row by org/id.
func (s *Store[T]) Read(ctx context.Context, orgID, id string) (T, error) {
	var zero T
	statement := fmt.Sprintf("SELECT * FROM %s WHERE id = ?", s.table)

	var result T
	err := s.withRetry(ctx, statement, func() error {
		var rows []T
		_, _, err := s.client.From(s.table).
			Select("*", "", false).
			Eq("org_id", orgID).
			Eq("id", id).
			Eq("is_deleted", "false").
			ExecuteTo(&rows)
		if err != nil {
			return apperrors.Wrap(classify(err), s.component, "read", "select row").WithTenant(orgID)
		}
		if len(rows) == 0 {
			return apperrors.NotFound(s.component, "read", fmt.Sprintf("%s %s not found", s.table, id)).WithTenant(orgID)
		}
		result = rows[0]
		return nil
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Update replaces a row's mutable fields, keyed by org/id.
func (s *Store[T]) Update(ctx context.Context, entity T) error {
	statement := fmt.Sprintf("UPDATE %s SET ... WHERE id = ?", s.table)
	return s.withRetry(ctx, statement, func() error {
		var updated []T
		_, _, err := s.client.From(s.table).
			Update(entity, "representation", "exact").
			Eq("org_id", entity.GetOrgID()).
			Eq("id", entity.GetID()).
			ExecuteTo(&updated)
		if err != nil {
			return apperrors.Wrap(classify(err), s.component, "update", "update row").WithTenant(entity.GetOrgID())
		}
		if len(updated) == 0 {
			return apperrors.NotFound(s.component, "update", fmt.Sprintf("%s %s not found", s.table, entity.GetID())).WithTenant(entity.GetOrgID())
		}
		return nil
	})
}

// Delete performs a soft delete: sets is_deleted = true.
func (s *Store[T]) Delete(ctx context.Context, orgID, id string) error {
	if err := validateID(s.component, "delete", orgID, id); err != nil {
		return err
	}
	statement := fmt.Sprintf("UPDATE %s SET is_deleted = true WHERE id = ?", s.table)
	return s.withRetry(ctx, statement, func() error {
		_, _, err := s.client.From(s.table).
			Update(map[string]any{"is_deleted": true, "updated_at": time.Now().UTC()}, "minimal", "exact").
			Eq("org_id", orgID).
			Eq("id", id).
			Execute()
		if err != nil {
			return apperrors.Wrap(classify(err), s.component, "delete", "soft delete row").WithTenant(orgID)
		}
		return nil
	})
}

// HardDelete physically removes the row.
func (s *Store[T]) HardDelete(ctx context.Context, orgID, id string) error {
	if err := validateID(s.component, "hard_delete", orgID, id); err != nil {
		return err
	}
	statement := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table)
	return s.withRetry(ctx, statement, func() error {
		_, _, err := s.client.From(s.table).
			Delete("minimal", "exact").
			Eq("org_id", orgID).
			Eq("id", id).
			Execute()
		if err != nil {
			return apperrors.Wrap(classify(err), s.component, "hard_delete", "delete row").WithTenant(orgID)
		}
		return nil
	})
}

// List returns rows matching filter, scoped to orgID.
func (s *Store[T]) List(ctx context.Context, orgID string, filter storage.Filter) ([]T, error) {
	statement := fmt.Sprintf("SELECT * FROM %s WHERE org_id = ? ...", s.table)

	var result []T
	err := s.withRetry(ctx, statement, func() error {
		builder := s.client.From(s.table).Select("*", "", false).Eq("org_id", orgID)
		if !filter.IncludeSoftDeleted {
			builder = builder.Eq("is_deleted", "false")
		}
		for column, value := range filter.Equals {
			builder = builder.Eq(column, fmt.Sprintf("%v", value))
		}
		if filter.After != nil {
			builder = builder.Gte("created_at", filter.After.UTC().Format(time.RFC3339))
		}
		if filter.Before != nil {
			builder = builder.Lt("created_at", filter.Before.UTC().Format(time.RFC3339))
		}
		if filter.OrderBy != "" {
			builder = builder.Order(filter.OrderBy, &postgrest.OrderOpts{Ascending: !filter.Descending})
		}
		if filter.Limit > 0 {
			builder = builder.Range(filter.Offset, filter.Offset+filter.Limit-1, "")
		}

		var rows []T
		_, _, err := builder.ExecuteTo(&rows)
		if err != nil {
			return apperrors.Wrap(classify(err), s.component, "list", "select rows").WithTenant(orgID)
		}
		result = rows
		return nil
	})
	return result, err
}

// Count returns the number of rows matching filter, scoped to orgID.
func (s *Store[T]) Count(ctx context.Context, orgID string, filter storage.Filter) (int, error) {
	statement := fmt.Sprintf("SELECT count(*) FROM %s WHERE org_id = ? ...", s.table)

	var count int
	err := s.withRetry(ctx, statement, func() error {
		builder := s.client.From(s.table).Select("*", "exact", true).Eq("org_id", orgID)
		if !filter.IncludeSoftDeleted {
			builder = builder.Eq("is_deleted", "false")
		}
		for column, value := range filter.Equals {
			builder = builder.Eq(column, fmt.Sprintf("%v", value))
		}
		_, total, err := builder.Execute()
		if err != nil {
			return apperrors.Wrap(classify(err), s.component, "count", "count rows").WithTenant(orgID)
		}
		count = int(total)
		return nil
	})
	return count, err
}

func validateID(component, operation, orgID, id string) error {
	if orgID == "" {
		return apperrors.Validation(component, operation, "org id must not be empty")
	}
	if id == "" {
		return apperrors.Validation(component, operation, "id must not be empty")
	}
	return nil
}

// classify turns a raw client/network error into a retry-eligible
// apperrors.Error when it looks transient (connection reset, timeout,
// context deadline), leaving everything else as Internal so Retryable
// reports false and callers don't loop on a genuine data error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if isTransientMessage(msg) {
		return apperrors.Transient("storage", "client", msg, err)
	}
	return apperrors.Internal("storage", "client", msg, err)
}

func isTransientMessage(msg string) bool {
	for _, needle := range []string{"connection reset", "timeout", "deadline exceeded", "EOF", "temporarily unavailable", "too many connections"} {
		if contains(msg, needle) {
			return true
		}
	}
	return false
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

