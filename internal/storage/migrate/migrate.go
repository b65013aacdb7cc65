// Package migrate applies ordered schema migrations against the relational
// store and tracks them in a schema_migrations table. The teacher's storage
// layer is DynamoDB, which is schemaless and carries no migration tooling of
// its own; this package is grounded instead on the checksum/idempotency
// pattern in internal/repository/idempotency.go (sha256 content hashing to
// detect a changed, already-applied migration) applied to the relational
// backend C1 actually requires.
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"memoryengine/internal/apperrors"
)

// Migration is one forward/backward schema step.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

func (m Migration) checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

// Executor runs raw SQL statements against the target database. The
// postgres package's Store does not implement it; callers supply their own
// implementation.
type Executor interface {
	Exec(ctx context.Context, sql string) error
	AppliedVersions(ctx context.Context) (map[int]string, error) // version -> checksum
	RecordApplied(ctx context.Context, version int, name, checksum string) error
	RecordRolledBack(ctx context.Context, version int) error
}

// Runner applies a fixed, version-ordered set of migrations.
type Runner struct {
	executor   Executor
	migrations []Migration
}

// NewRunner sorts migrations ascending by version and validates there are no
// duplicate versions.
func NewRunner(executor Executor, migrations []Migration) (*Runner, error) {
	sorted := append([]Migration{}, migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	seen := map[int]bool{}
	for _, m := range sorted {
		if seen[m.Version] {
			return nil, apperrors.Validation("migrate", "new_runner", fmt.Sprintf("duplicate migration version %d", m.Version))
		}
		seen[m.Version] = true
	}

	return &Runner{executor: executor, migrations: sorted}, nil
}

// Up applies every migration whose version has not yet been recorded. It
// refuses to proceed if an already-applied migration's checksum no longer
// matches the one on disk, since that means the migration file was edited
// after being shipped.
func (r *Runner) Up(ctx context.Context) (applied []int, err error) {
	appliedVersions, err := r.executor.AppliedVersions(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "migrate", "up", "load applied versions")
	}

	for _, m := range r.migrations {
		if checksum, ok := appliedVersions[m.Version]; ok {
			if checksum != m.checksum() {
				return applied, apperrors.Conflict("migrate", "up",
					fmt.Sprintf("migration %d (%s) was modified after being applied", m.Version, m.Name))
			}
			continue
		}
		if err := r.executor.Exec(ctx, m.Up); err != nil {
			return applied, apperrors.Wrap(err, "migrate", "up", fmt.Sprintf("apply migration %d (%s)", m.Version, m.Name))
		}
		if err := r.executor.RecordApplied(ctx, m.Version, m.Name, m.checksum()); err != nil {
			return applied, apperrors.Wrap(err, "migrate", "up", fmt.Sprintf("record migration %d", m.Version))
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

// Down rolls back the single most recently applied migration.
func (r *Runner) Down(ctx context.Context) error {
	appliedVersions, err := r.executor.AppliedVersions(ctx)
	if err != nil {
		return apperrors.Wrap(err, "migrate", "down", "load applied versions")
	}
	if len(appliedVersions) == 0 {
		return apperrors.NotFound("migrate", "down", "no migrations to roll back")
	}

	latest := -1
	for v := range appliedVersions {
		if v > latest {
			latest = v
		}
	}

	for _, m := range r.migrations {
		if m.Version != latest {
			continue
		}
		if err := r.executor.Exec(ctx, m.Down); err != nil {
			return apperrors.Wrap(err, "migrate", "down", fmt.Sprintf("roll back migration %d (%s)", m.Version, m.Name))
		}
		return r.executor.RecordRolledBack(ctx, m.Version)
	}
	return apperrors.Internal("migrate", "down", fmt.Sprintf("migration %d not found in runner set", latest), nil)
}

// PendingCount reports how many migrations have not yet been applied.
func (r *Runner) PendingCount(ctx context.Context) (int, error) {
	appliedVersions, err := r.executor.AppliedVersions(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, "migrate", "pending_count", "load applied versions")
	}
	pending := 0
	for _, m := range r.migrations {
		if _, ok := appliedVersions[m.Version]; !ok {
			pending++
		}
	}
	return pending, nil
}
