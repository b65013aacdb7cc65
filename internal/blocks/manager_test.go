package blocks

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/domain"
	"memoryengine/internal/testsupport"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestCreateValidatedRejectsOverLimit(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Block](fixedNow)
	mgr := NewManager(repo, 0.9, fixedNow)

	err := mgr.CreateValidated(context.Background(), domain.Block{ID: "b1", OrgID: "org1", Label: "system", Value: "too long for the limit", Limit: 5})
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateValidatedAppliesDefaultLimit(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Block](fixedNow)
	mgr := NewManager(repo, 0.9, fixedNow)

	err := mgr.CreateValidated(context.Background(), domain.Block{ID: "b1", OrgID: "org1", Label: "persona", Value: "hi"})
	require.NoError(t, err)
	got, err := repo.Read(context.Background(), "org1", "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPersonaLimit, got.Limit)
}

func TestAppendToBlockConcatenatesWithNewline(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Block](fixedNow)
	mgr := NewManager(repo, 0.9, fixedNow)
	ctx := context.Background()
	require.NoError(t, mgr.CreateValidated(ctx, domain.Block{ID: "b1", OrgID: "org1", Label: "human", Value: "first", Limit: 100}))

	updated, err := mgr.AppendToBlock(ctx, "org1", "b1", "second")
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", updated.Value)
}

func TestAppendToBlockNoSeparatorWhenEmpty(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Block](fixedNow)
	mgr := NewManager(repo, 0.9, fixedNow)
	ctx := context.Background()
	require.NoError(t, mgr.CreateValidated(ctx, domain.Block{ID: "b1", OrgID: "org1", Label: "human", Value: "", Limit: 100}))

	updated, err := mgr.AppendToBlock(ctx, "org1", "b1", "first")
	require.NoError(t, err)
	assert.Equal(t, "first", updated.Value)
}

func TestAppendToBlockFlagsNeedsRewriteAtThreshold(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Block](fixedNow)
	mgr := NewManager(repo, 0.9, fixedNow)
	ctx := context.Background()
	require.NoError(t, mgr.CreateValidated(ctx, domain.Block{ID: "b1", OrgID: "org1", Label: "human", Value: "", Limit: 10}))

	updated, err := mgr.AppendToBlock(ctx, "org1", "b1", "123456789")
	require.NoError(t, err)
	assert.True(t, updated.Metadata.NeedsRewrite)
}

func TestAppendToBlockAutoFitsOverLimitContent(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Block](fixedNow)
	mgr := NewManager(repo, 0.9, fixedNow)
	ctx := context.Background()
	require.NoError(t, mgr.CreateValidated(ctx, domain.Block{ID: "b1", OrgID: "org1", Label: "human", Value: "12345", Limit: 6}))

	updated, err := mgr.AppendToBlock(ctx, "org1", "b1", "abcdef")
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(updated.Value)), 6)
	assert.True(t, updated.Metadata.NeedsRewrite)
}

// TestAppendToBlockAutoFitsSpecS2Scenario exercises spec §8 S2 literally:
// limit=100, initial value "A", append 120 characters of "B". The append
// must succeed with content truncated to at most the limit rather than
// rejected.
func TestAppendToBlockAutoFitsSpecS2Scenario(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Block](fixedNow)
	mgr := NewManager(repo, 0.9, fixedNow)
	ctx := context.Background()
	require.NoError(t, mgr.CreateValidated(ctx, domain.Block{ID: "b1", OrgID: "org1", Label: "human", Value: "A", Limit: 100}))

	updated, err := mgr.AppendToBlock(ctx, "org1", "b1", strings.Repeat("B", 120))
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(updated.Value)), 100)
	assert.NotEmpty(t, updated.Value)
	assert.True(t, updated.Metadata.NeedsRewrite)

	rewritten, err := NewRewriter(nil).Rewrite(ctx, PreserveRecent, updated.Value, int(0.8*float64(updated.Limit)), "", "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(rewritten.Content)), 80)
}

func TestNeedingRewriteReturnsFlaggedBlocks(t *testing.T) {
	repo := testsupport.NewInMemoryRepository[domain.Block](fixedNow)
	mgr := NewManager(repo, 0.9, fixedNow)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, domain.Block{ID: "b1", OrgID: "org1", Label: "human", Metadata: domain.BlockMetadata{NeedsRewrite: true}}))
	require.NoError(t, repo.Create(ctx, domain.Block{ID: "b2", OrgID: "org1", Label: "human"}))

	flagged, err := mgr.NeedingRewrite(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "b1", flagged[0].ID)
}
