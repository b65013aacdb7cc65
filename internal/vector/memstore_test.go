package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreAddAndSearch(t *testing.T) {
	store := NewMemStore(2, MetricCosine)
	ctx := context.Background()

	_, err := store.AddVectors(ctx, []Data{
		{ID: "a", OrgID: "org1", Vector: []float32{1, 0}},
		{ID: "b", OrgID: "org1", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	results, err := store.SearchVectors(ctx, "org1", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Data.ID)
}

func TestMemStoreRejectsDimensionMismatch(t *testing.T) {
	store := NewMemStore(3, MetricCosine)
	_, err := store.AddVectors(context.Background(), []Data{{ID: "a", OrgID: "org1", Vector: []float32{1, 0}}})
	assert.Error(t, err)
}

func TestMemStoreSearchRespectsThreshold(t *testing.T) {
	store := NewMemStore(2, MetricCosine)
	ctx := context.Background()
	_, err := store.AddVectors(ctx, []Data{
		{ID: "a", OrgID: "org1", Vector: []float32{1, 0}},
		{ID: "b", OrgID: "org1", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	threshold := 0.9
	results, err := store.SearchVectors(ctx, "org1", []float32{1, 0}, 10, &threshold)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Data.ID)
}

func TestMemStoreScopesByOrg(t *testing.T) {
	store := NewMemStore(2, MetricCosine)
	ctx := context.Background()
	_, err := store.AddVectors(ctx, []Data{
		{ID: "a", OrgID: "org1", Vector: []float32{1, 0}},
		{ID: "b", OrgID: "org2", Vector: []float32{1, 0}},
	})
	require.NoError(t, err)

	count, err := store.CountVectors(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemStoreDeleteVectors(t *testing.T) {
	store := NewMemStore(2, MetricCosine)
	ctx := context.Background()
	_, err := store.AddVectors(ctx, []Data{{ID: "a", OrgID: "org1", Vector: []float32{1, 0}}})
	require.NoError(t, err)

	require.NoError(t, store.DeleteVectors(ctx, "org1", []string{"a"}))
	_, err = store.GetVector(ctx, "org1", "a")
	assert.Error(t, err)
}

func TestMemStoreUpdateRequiresExisting(t *testing.T) {
	store := NewMemStore(2, MetricCosine)
	err := store.UpdateVectors(context.Background(), []Data{{ID: "missing", OrgID: "org1", Vector: []float32{1, 0}}})
	assert.Error(t, err)
}

func TestMemStoreClearScopesByOrg(t *testing.T) {
	store := NewMemStore(2, MetricCosine)
	ctx := context.Background()
	_, err := store.AddVectors(ctx, []Data{
		{ID: "a", OrgID: "org1", Vector: []float32{1, 0}},
		{ID: "b", OrgID: "org2", Vector: []float32{1, 0}},
	})
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, "org1"))
	count1, _ := store.CountVectors(ctx, "org1")
	count2, _ := store.CountVectors(ctx, "org2")
	assert.Equal(t, 0, count1)
	assert.Equal(t, 1, count2)
}

func TestMemStoreWriteInvalidatesQueryCache(t *testing.T) {
	store := NewMemStore(2, MetricCosine)
	ctx := context.Background()
	_, err := store.AddVectors(ctx, []Data{{ID: "a", OrgID: "org1", Vector: []float32{1, 0}}})
	require.NoError(t, err)

	results, err := store.SearchVectors(ctx, "org1", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = store.AddVectors(ctx, []Data{{ID: "b", OrgID: "org1", Vector: []float32{0, 1}}})
	require.NoError(t, err)

	results, err = store.SearchVectors(ctx, "org1", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
