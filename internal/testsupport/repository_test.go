package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/domain"
	"memoryengine/internal/storage"
)

func TestInMemoryRepositoryCRUD(t *testing.T) {
	repo := NewInMemoryRepository[domain.Memory](time.Now)
	ctx := context.Background()

	mem := domain.Memory{ID: "m1", OrgID: "org1", Content: "hello"}
	require.NoError(t, repo.Create(ctx, mem))

	got, err := repo.Read(ctx, "org1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	mem.Content = "updated"
	require.NoError(t, repo.Update(ctx, mem))
	got, err = repo.Read(ctx, "org1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Content)

	require.NoError(t, repo.Delete(ctx, "org1", "m1"))
	_, err = repo.Read(ctx, "org1", "m1")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, repo.HardDelete(ctx, "org1", "m1"))
}

func TestInMemoryRepositoryListScopesByOrg(t *testing.T) {
	repo := NewInMemoryRepository[domain.Memory](time.Now)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.Memory{ID: "m1", OrgID: "org1"}))
	require.NoError(t, repo.Create(ctx, domain.Memory{ID: "m2", OrgID: "org2"}))

	rows, err := repo.List(ctx, "org1", storage.NewFilter())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "m1", rows[0].ID)
}

func TestInMemoryRepositoryCount(t *testing.T) {
	repo := NewInMemoryRepository[domain.Memory](time.Now)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, domain.Memory{ID: "m1", OrgID: "org1"}))
	require.NoError(t, repo.Create(ctx, domain.Memory{ID: "m2", OrgID: "org1"}))

	count, err := repo.Count(ctx, "org1", storage.NewFilter())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInMemoryRepositoryCreateConflict(t *testing.T) {
	repo := NewInMemoryRepository[domain.Memory](time.Now)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, domain.Memory{ID: "m1", OrgID: "org1"}))
	err := repo.Create(ctx, domain.Memory{ID: "m1", OrgID: "org1"})
	assert.True(t, apperrors.IsConflict(err))
}
