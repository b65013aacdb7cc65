package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	store, err := OpenSQLiteStore(path, 2, MetricCosine)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreAddGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddVectors(ctx, []Data{
		{ID: "a", OrgID: "org1", Vector: []float32{1, 0}, Metadata: map[string]any{"label": "x"}},
	})
	require.NoError(t, err)

	got, err := store.GetVector(ctx, "org1", "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got.Vector)
	assert.Equal(t, "x", got.Metadata["label"])
}

func TestSQLiteStoreSearchOrdersBySimilarity(t *testing.T) {
	store := openTestStore(t)
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

func TestSQLiteStoreDeleteVectors(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.AddVectors(ctx, []Data{{ID: "a", OrgID: "org1", Vector: []float32{1, 0}}})
	require.NoError(t, err)

	require.NoError(t, store.DeleteVectors(ctx, "org1", []string{"a"}))
	_, err = store.GetVector(ctx, "org1", "a")
	assert.Error(t, err)
}

func TestSQLiteStoreCountVectors(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.AddVectors(ctx, []Data{
		{ID: "a", OrgID: "org1", Vector: []float32{1, 0}},
		{ID: "b", OrgID: "org1", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	count, err := store.CountVectors(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLiteStoreRejectsDimensionMismatch(t *testing.T) {
	store := openTestStore(t)
	_, err := store.AddVectors(context.Background(), []Data{{ID: "a", OrgID: "org1", Vector: []float32{1, 0, 0}}})
	assert.Error(t, err)
}
