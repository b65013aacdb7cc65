package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/domain"
	"memoryengine/internal/graph"
	"memoryengine/internal/memoryengine"
	"memoryengine/internal/storage"
	"memoryengine/internal/testsupport"
	"memoryengine/internal/vector"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func seedMemory(t *testing.T, repo *testsupport.InMemoryRepository[domain.Memory], m domain.Memory) {
	t.Helper()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = fixedNow()
	}
	require.NoError(t, repo.Create(context.Background(), m))
}

func TestSearchTextLegScoresByTermOverlap(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", Content: "the user likes coffee in the morning", Importance: 0.5})
	seedMemory(t, repo, domain.Memory{ID: "m2", OrgID: "org1", Content: "the weather is sunny today", Importance: 0.5})

	e := New(repo, nil, nil, Config{}, fixedNow)
	results, err := e.Search(context.Background(), memoryengine.MemoryQuery{OrgID: "org1", Text: "coffee morning"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Memory.ID)
}

func TestSearchRespectsScope(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", AgentID: "a1", Content: "likes coffee", Importance: 0.5})
	seedMemory(t, repo, domain.Memory{ID: "m2", OrgID: "org1", AgentID: "a2", Content: "likes coffee", Importance: 0.5})

	e := New(repo, nil, nil, Config{}, fixedNow)
	results, err := e.Search(context.Background(), memoryengine.MemoryQuery{
		OrgID: "org1", Text: "coffee", Scope: domain.AgentScope("a1"),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Memory.ID)
}

func TestSearchVectorLegUsesAdapter(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	store := vector.NewMemStore(4, vector.MetricCosine)
	query := []float32{1, 0, 0, 0}
	_, err := store.AddVectors(context.Background(), []vector.Data{
		{ID: "m1", OrgID: "org1", Vector: []float32{1, 0, 0, 0}},
		{ID: "m2", OrgID: "org1", Vector: []float32{0, 1, 0, 0}},
	})
	require.NoError(t, err)

	e := New(repo, store, nil, Config{}, fixedNow)
	results, err := e.Search(context.Background(), memoryengine.MemoryQuery{OrgID: "org1", Vector: query})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m1", results[0].Memory.ID)
}

func TestSearchFusesTextAndVectorLegs(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee", Importance: 0.9})
	seedMemory(t, repo, domain.Memory{ID: "m2", OrgID: "org1", Content: "likes coffee", Importance: 0.1})

	store := vector.NewMemStore(2, vector.MetricCosine)
	_, err := store.AddVectors(context.Background(), []vector.Data{
		{ID: "m1", OrgID: "org1", Vector: []float32{1, 0}},
		{ID: "m2", OrgID: "org1", Vector: []float32{1, 0}},
	})
	require.NoError(t, err)

	e := New(repo, store, nil, Config{}, fixedNow)
	results, err := e.Search(context.Background(), memoryengine.MemoryQuery{
		OrgID: "org1", Text: "coffee", Vector: []float32{1, 0},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].Memory.ID, "higher importance should rank first when text/vector scores tie")
}

func TestSearchFiltersByMinImportanceAndType(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee", Importance: 0.9, Type: domain.MemorySemantic})
	seedMemory(t, repo, domain.Memory{ID: "m2", OrgID: "org1", Content: "likes coffee", Importance: 0.1, Type: domain.MemoryEpisodic})

	e := New(repo, nil, nil, Config{}, fixedNow)
	results, err := e.Search(context.Background(), memoryengine.MemoryQuery{
		OrgID: "org1", Text: "coffee", MinImportance: 0.5, Type: domain.MemorySemantic,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Memory.ID)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee", Importance: 0.9})
	seedMemory(t, repo, domain.Memory{ID: "m2", OrgID: "org1", Content: "likes coffee", Importance: 0.5})

	e := New(repo, nil, nil, Config{}, fixedNow)
	results, err := e.Search(context.Background(), memoryengine.MemoryQuery{OrgID: "org1", Text: "coffee", Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].Memory.ID)
}

func TestSearchGraphLegExpandsFromSeeds(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee", Importance: 0.5})
	seedMemory(t, repo, domain.Memory{ID: "m2", OrgID: "org1", Content: "unrelated content about espresso machines", Importance: 0.5})

	g := graph.New(fixedNow)
	ctx := context.Background()
	_, err := g.AddNode(ctx, domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee"}, "entity")
	require.NoError(t, err)
	_, err = g.AddNode(ctx, domain.Memory{ID: "m2", OrgID: "org1", Content: "unrelated content about espresso machines"}, "entity")
	require.NoError(t, err)
	_, err = g.AddEdge(ctx, "org1", "m1", "m2", domain.RelationRelatedTo, 1.0)
	require.NoError(t, err)

	e := New(repo, nil, g, Config{}, fixedNow)
	results, err := e.Search(ctx, memoryengine.MemoryQuery{OrgID: "org1", Text: "coffee"})
	require.NoError(t, err)

	var sawGraphExpansion bool
	for _, r := range results {
		if r.Memory.ID == "m2" {
			sawGraphExpansion = true
		}
	}
	assert.True(t, sawGraphExpansion, "graph-proximity leg should surface m2 as a neighbor of the text-leg seed m1")
}

func TestSearchWithProfilePersonalizesWithinImportanceFloor(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee and tea", Importance: 0.5})
	seedMemory(t, repo, domain.Memory{ID: "m2", OrgID: "org1", Content: "likes coffee and soda", Importance: 0.5})

	e := New(repo, nil, nil, Config{}, fixedNow)
	profile := &Profile{Interests: map[string]float64{"tea": 1.0}, Weight: 0.5}
	results, err := e.SearchWithProfile(context.Background(), memoryengine.MemoryQuery{OrgID: "org1", Text: "coffee"}, profile)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].Memory.ID, "personalization should boost the tea-mentioning memory above its tie")
}

func TestSearchWithProfileNeverPromotesBelowImportanceFloor(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee", Importance: 0.1})

	e := New(repo, nil, nil, Config{}, fixedNow)
	profile := &Profile{Interests: map[string]float64{"coffee": 1.0}, Weight: 0.5}
	results, err := e.SearchWithProfile(context.Background(), memoryengine.MemoryQuery{
		OrgID: "org1", Text: "coffee", MinImportance: 0.2,
	}, profile)
	require.NoError(t, err)
	assert.Empty(t, results, "the hard importance floor filters m1 out before personalization could matter")
}

func TestSearchEmptyQueryReturnsNoResults(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	seedMemory(t, repo, domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee", Importance: 0.5})

	e := New(repo, nil, nil, Config{}, fixedNow)
	results, err := e.Search(context.Background(), memoryengine.MemoryQuery{OrgID: "org1"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchPropagatesTextLegError(t *testing.T) {
	e := New(failingRepo{}, nil, nil, Config{}, fixedNow)
	_, err := e.Search(context.Background(), memoryengine.MemoryQuery{OrgID: "org1", Text: "coffee"})
	assert.Error(t, err)
}

func TestNormalizeLegHandlesUniformScores(t *testing.T) {
	leg := normalizeLeg(map[string]float64{"a": 0.5, "b": 0.5}, map[string]domain.Memory{
		"a": {ID: "a"}, "b": {ID: "b"},
	})
	assert.Equal(t, 1.0, leg.scores["a"])
	assert.Equal(t, 1.0, leg.scores["b"])
}

type failingRepo struct{}

func (failingRepo) Create(ctx context.Context, entity domain.Memory) error { return nil }
func (failingRepo) Read(ctx context.Context, orgID, id string) (domain.Memory, error) {
	return domain.Memory{}, assert.AnError
}
func (failingRepo) Update(ctx context.Context, entity domain.Memory) error { return nil }
func (failingRepo) Delete(ctx context.Context, orgID, id string) error     { return nil }
func (failingRepo) HardDelete(ctx context.Context, orgID, id string) error { return nil }
func (failingRepo) List(ctx context.Context, orgID string, filter storage.Filter) ([]domain.Memory, error) {
	return nil, assert.AnError
}
func (failingRepo) Count(ctx context.Context, orgID string, filter storage.Filter) (int, error) {
	return 0, nil
}
