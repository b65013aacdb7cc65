package memoryengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/cache"
	"memoryengine/internal/domain"
	"memoryengine/internal/observability"
	"memoryengine/internal/testsupport"
	"memoryengine/internal/vector"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func newTestEngine(t *testing.T) (*Engine, *testsupport.InMemoryRepository[domain.Memory]) {
	t.Helper()
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	c := cache.New(cache.NewL1(100), nil, time.Hour, observability.NewCollector("test_"+t.Name()))
	e := New(repo, c, nil, nil, nil, nil, fixedNow, Config{})
	return e, repo
}

func TestAddMemoryAssignsHashAndWritesThrough(t *testing.T) {
	e, repo := newTestEngine(t)
	id, err := e.AddMemory(context.Background(), domain.HierarchicalMemory{
		Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee"},
		Scope:  domain.AgentScope("agent1"),
		Level:  domain.LevelOperational,
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", id)

	got, err := repo.Read(context.Background(), "org1", "m1")
	require.NoError(t, err)
	assert.NotEmpty(t, got.ContentHash)
	assert.Equal(t, 1, got.Version)
}

func TestGetMemoryBumpsAccessCount(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "x"}})
	require.NoError(t, err)

	first, err := e.GetMemory(ctx, "org1", "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.AccessCount)

	second, err := e.GetMemory(ctx, "org1", "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.AccessCount)
}

func TestUpdateMemoryIncrementsVersion(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "x"}})
	require.NoError(t, err)

	updated, err := e.UpdateMemory(ctx, "org1", "m1", func(m *domain.Memory) { m.Content = "y" })
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "y", updated.Content)
}

func TestRemoveMemorySoftDeletes(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "x"}})
	require.NoError(t, err)

	removed, err := e.RemoveMemory(ctx, "org1", "m1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = e.GetMemory(ctx, "org1", "m1")
	assert.Error(t, err)
}

func TestRemoveMemoryMissingReturnsFalse(t *testing.T) {
	e, _ := newTestEngine(t)
	removed, err := e.RemoveMemory(context.Background(), "org1", "missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestApplyDecisionAdd(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.ApplyDecision(context.Background(), "org1", domain.AgentScope("a1"), domain.Decision{
		Kind: domain.DecisionAdd, Content: "likes tea", Importance: 0.7,
	})
	require.NoError(t, err)
}

func TestApplyDecisionUpdateWithAppendStrategy(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee"}})
	require.NoError(t, err)

	err = e.ApplyDecision(ctx, "org1", domain.Scope{}, domain.Decision{
		Kind: domain.DecisionUpdate, MemoryID: "m1", NewContent: "and tea", MergeStrategy: domain.MergeAppend,
	})
	require.NoError(t, err)

	updated, err := e.GetMemory(ctx, "org1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "likes coffee\nand tea", updated.Content)
}

func TestApplyDecisionUpdateWithPrioritizeStrategy(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "old", Importance: 0.9}})
	require.NoError(t, err)

	err = e.ApplyDecision(ctx, "org1", domain.Scope{}, domain.Decision{
		Kind: domain.DecisionUpdate, MemoryID: "m1", NewContent: "new", Importance: 0.1, MergeStrategy: domain.MergePrioritize,
	})
	require.NoError(t, err)

	updated, err := e.GetMemory(ctx, "org1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "old", updated.Content)
}

func TestApplyDecisionDelete(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "x"}})
	require.NoError(t, err)

	err = e.ApplyDecision(ctx, "org1", domain.Scope{}, domain.Decision{Kind: domain.DecisionDelete, MemoryID: "m1"})
	require.NoError(t, err)

	_, err = e.GetMemory(ctx, "org1", "m1")
	assert.Error(t, err)
}

type denyAllChecker struct{}

func (denyAllChecker) Allow(ctx context.Context, orgID string, scope domain.Scope, kind domain.DecisionKind) error {
	return apperrors.Validation("permissions", "allow", "denied")
}

func TestApplyDecisionDeleteDeniedByPermissionChecker(t *testing.T) {
	e, _ := newTestEngine(t)
	e.WithPermissionChecker(denyAllChecker{})
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "x"}})
	require.NoError(t, err)

	err = e.ApplyDecision(ctx, "org1", domain.Scope{}, domain.Decision{Kind: domain.DecisionDelete, MemoryID: "m1"})
	assert.Error(t, err)

	got, err := e.GetMemory(ctx, "org1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
}

func TestApplyDecisionAddNeverConsultsPermissionChecker(t *testing.T) {
	e, _ := newTestEngine(t)
	e.WithPermissionChecker(denyAllChecker{})
	err := e.ApplyDecision(context.Background(), "org1", domain.Scope{}, domain.Decision{Kind: domain.DecisionAdd, Content: "x"})
	assert.NoError(t, err)
}

func TestApplyDecisionNoOp(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.ApplyDecision(context.Background(), "org1", domain.Scope{}, domain.Decision{Kind: domain.DecisionNoOp})
	assert.NoError(t, err)
}

func TestRefreshImportanceClampedTo1(t *testing.T) {
	e, _ := newTestEngine(t)
	m := domain.Memory{CreatedAt: fixedNow(), AccessCount: 100, Importance: 1.0, Metadata: map[string]any{"user_interaction": true}}
	score := e.RefreshImportance(m, fixedNow())
	assert.LessOrEqual(t, score, 1.0)
}

func TestProcessMemoriesPromotesOnThreshold(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "x", Importance: 0.9, AccessCount: 10}})
	require.NoError(t, err)

	levels := map[string]domain.Level{"m1": domain.LevelOperational}
	report, err := e.ProcessMemories(ctx, "org1", levels)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, domain.LevelTactical, levels["m1"])
	assert.Equal(t, 1, report.Promoted)
}

func TestProcessMemoriesResolvesDuplicates(t *testing.T) {
	e, repo := newTestEngine(t)
	ctx := context.Background()
	_, err := e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "the user likes coffee in the morning", Importance: 0.9}})
	require.NoError(t, err)
	_, err = e.AddMemory(ctx, domain.HierarchicalMemory{Memory: domain.Memory{ID: "m2", OrgID: "org1", Content: "the user likes coffee in the morning", Importance: 0.1}})
	require.NoError(t, err)

	report, err := e.ProcessMemories(ctx, "org1", map[string]domain.Level{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.DuplicatesFlagged, 1)
	assert.Equal(t, 1, report.DuplicatesResolved)

	_, err = repo.Read(ctx, "org1", "m2")
	assert.Error(t, err)
	_, err = repo.Read(ctx, "org1", "m1")
	assert.NoError(t, err)
}

func TestAddMemoryPropagatesToVectorAdapter(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Memory](fixedNow)
	c := cache.New(cache.NewL1(100), nil, time.Hour, nil)
	store := vector.NewMemStore(4, vector.MetricCosine)
	embedder := testsupport.NewDeterministicEmbedder(4)
	e := New(repo, c, store, embedder, nil, nil, fixedNow, Config{})

	_, err := e.AddMemory(context.Background(), domain.HierarchicalMemory{Memory: domain.Memory{ID: "m1", OrgID: "org1", Content: "likes coffee"}})
	require.NoError(t, err)

	count, err := store.CountVectors(context.Background(), "org1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
