// Package blocks implements the Block Subsystem (C4, spec §4.4): a Block
// Manager (CRUD + limit enforcement), a Jinja-style Template Engine, a
// Compiler, and an LLM-assisted Auto-Rewriter. No example repo or
// other_examples/ file embeds a mini-templating engine, so the Template
// Engine is new hand-written code in the teacher's small,
// interface-segregated, heavily table-tested style; the Manager follows
// the teacher's repository-backed CRUD shape from internal/repository.
package blocks

import (
	"context"
	"strings"
	"time"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/domain"
	"memoryengine/internal/storage"
)

// Manager owns block CRUD, limit enforcement, and the append/rewrite
// threshold trigger (spec §4.4).
type Manager struct {
	repo                storage.Repository[domain.Block]
	autoRewriteThreshold float64
	now                 func() time.Time
}

// NewManager builds a Manager over repo. autoRewriteThreshold is the
// fraction of limit (default 0.9, spec §4.4) at which append_to_block
// flags the block for rewriting.
func NewManager(repo storage.Repository[domain.Block], autoRewriteThreshold float64, now func() time.Time) *Manager {
	if autoRewriteThreshold <= 0 {
		autoRewriteThreshold = 0.9
	}
	return &Manager{repo: repo, autoRewriteThreshold: autoRewriteThreshold, now: now}
}

// CreateValidated creates block, rejecting a Value longer than Limit with
// Validation (spec §4.4).
func (m *Manager) CreateValidated(ctx context.Context, block domain.Block) error {
	if block.Limit <= 0 {
		block.Limit = domain.DefaultLimitForLabel(block.Label)
	}
	if len([]rune(block.Value)) > block.Limit {
		return apperrors.Validation("blocks", "create_validated", "value exceeds limit")
	}
	now := m.now()
	block.CreatedAt = now
	block.UpdatedAt = now
	return m.repo.Create(ctx, block)
}

// UpdateValidated replaces block's Value (and any other fields), rejecting
// a Value longer than Limit with Validation.
func (m *Manager) UpdateValidated(ctx context.Context, block domain.Block) error {
	if len([]rune(block.Value)) > block.Limit {
		return apperrors.Validation("blocks", "update_validated", "value exceeds limit")
	}
	block.UpdatedAt = m.now()
	return m.repo.Update(ctx, block)
}

// AppendToBlock concatenates text onto the block's value with a newline
// separator (no separator if the block is empty). If the appended value
// would exceed Limit, it is auto-fit down to Limit with the PreserveRecent
// strategy before persisting rather than rejected, and Metadata.NeedsRewrite
// is set unconditionally since the content has already been cut; short of
// that hard limit, NeedsRewrite is set as soon as the length crosses
// autoRewriteThreshold * limit so a caller can run an explicit rewrite pass
// before the block is forced to truncate (spec §4.4, §8 S2).
func (m *Manager) AppendToBlock(ctx context.Context, orgID, id, text string) (domain.Block, error) {
	block, err := m.repo.Read(ctx, orgID, id)
	if err != nil {
		return domain.Block{}, apperrors.Wrap(err, "blocks", "append_to_block", "read block")
	}

	if block.Value == "" {
		block.Value = text
	} else {
		block.Value = block.Value + "\n" + text
	}

	length := len([]rune(block.Value))
	if block.Limit > 0 && length > block.Limit {
		block.Value = preserveRecent(block.Value, block.Limit)
		block.Metadata.NeedsRewrite = true
	} else if block.Limit > 0 && float64(length) >= m.autoRewriteThreshold*float64(block.Limit) {
		block.Metadata.NeedsRewrite = true
	}
	block.UpdatedAt = m.now()

	if err := m.repo.Update(ctx, block); err != nil {
		return domain.Block{}, apperrors.Wrap(err, "blocks", "append_to_block", "update block")
	}
	return block, nil
}

// Get reads a single block, bumping its access metadata.
func (m *Manager) Get(ctx context.Context, orgID, id string) (domain.Block, error) {
	block, err := m.repo.Read(ctx, orgID, id)
	if err != nil {
		return domain.Block{}, err
	}
	block.Metadata.AccessCount++
	block.Metadata.LastAccessed = m.now()
	_ = m.repo.Update(ctx, block)
	return block, nil
}

// ListByLabel returns every block for orgID carrying the given label, for
// the Compiler's grouping step.
func (m *Manager) ListByLabel(ctx context.Context, orgID, label string) ([]domain.Block, error) {
	all, err := m.repo.List(ctx, orgID, storage.NewFilter())
	if err != nil {
		return nil, err
	}
	var out []domain.Block
	for _, b := range all {
		if b.Label == label {
			out = append(out, b)
		}
	}
	return out, nil
}

// Delete soft-deletes a block.
func (m *Manager) Delete(ctx context.Context, orgID, id string) error {
	return m.repo.Delete(ctx, orgID, id)
}

// NeedingRewrite returns every non-deleted block for orgID whose
// Metadata.NeedsRewrite flag is set, for a background or explicit rewrite
// sweep to consume.
func (m *Manager) NeedingRewrite(ctx context.Context, orgID string) ([]domain.Block, error) {
	all, err := m.repo.List(ctx, orgID, storage.NewFilter())
	if err != nil {
		return nil, err
	}
	var out []domain.Block
	for _, b := range all {
		if b.Metadata.NeedsRewrite {
			out = append(out, b)
		}
	}
	return out, nil
}

// qualityScore blends length ratio and word overlap for observability
// only (spec §4.4: "it does not gate acceptance").
func qualityScore(original, rewritten string) float64 {
	if len(original) == 0 {
		return 1
	}
	lengthRatio := float64(len(rewritten)) / float64(len(original))
	if lengthRatio > 1 {
		lengthRatio = 1
	}
	overlap := wordOverlap(original, rewritten)
	return 0.3*lengthRatio + 0.7*overlap
}

func wordOverlap(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 {
		return 0
	}
	shared := 0
	for w := range wordsA {
		if wordsB[w] {
			shared++
		}
	}
	return float64(shared) / float64(len(wordsA))
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}
