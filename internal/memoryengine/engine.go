// Package memoryengine implements the Hierarchical Memory Engine (C7, spec
// §4.7): the authoritative lifecycle of memories, importance dynamics, and
// the promotion/demotion/duplicate-resolution sweep. Lifecycle orchestration
// is grounded on the teacher's internal/application/services/node_service.go
// (create/update/delete across repository+cache+event layers); the
// access-count-driven promotion ladder generalizes
// domain/core/aggregates/graph_lazy.go's lazy-loading-by-access idea into
// the spec's Operational -> Tactical -> Strategic levels.
package memoryengine

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/cache"
	"memoryengine/internal/domain"
	"memoryengine/internal/llm"
	"memoryengine/internal/observability"
	"memoryengine/internal/storage"
	"memoryengine/internal/vector"
)

// MemoryQuery is the input to Search, a thin wrapper that defers to the
// Retrieval Layer (spec §4.7, §4.8).
type MemoryQuery struct {
	OrgID         string
	Scope         domain.Scope
	Text          string
	Vector        []float32
	Type          domain.MemoryType
	MinImportance float64
	MaxAge        time.Duration
	Limit         int
}

// ScoredMemory pairs a Memory with its fused relevance score.
type ScoredMemory struct {
	Memory  domain.Memory
	Score   float64
	Partial bool
}

// Searcher is implemented by the Retrieval Layer (C8); Engine.Search defers
// to it entirely.
type Searcher interface {
	Search(ctx context.Context, query MemoryQuery) ([]ScoredMemory, error)
}

// GraphPropagator is the narrow slice of the Graph Memory Engine (C9) that
// C7 needs for write-path propagation.
type GraphPropagator interface {
	AddNode(ctx context.Context, memory domain.Memory, nodeType string) (string, error)
	RemoveNode(ctx context.Context, orgID, memoryID string) error
}

// ImportanceWeights blends the four importance-dynamics signals (spec
// §4.7). A zero value is replaced by the defaults 0.3/0.2/0.3/0.2 in
// Config.withDefaults; callers normally pass config.Engine.ImportanceWeights.
type ImportanceWeights struct {
	Recency     float64
	Frequency   float64
	Relevance   float64
	Interaction float64
}

// PromoteThreshold gates one level-promotion step.
type PromoteThreshold struct {
	Importance  float64
	AccessCount int64
}

// Config tunes C7's dynamics (spec §4.7); fields mirror
// internal/config.Engine so callers can pass that struct's values directly.
type Config struct {
	ImportanceWeights            ImportanceWeights
	PromoteOperationalToTactical PromoteThreshold
	PromoteTacticalToStrategic   PromoteThreshold
	AutoRewriteThreshold         float64
	DuplicateJaccardThreshold    float64
	AutoResolveConfidence        float64
}

func (c Config) withDefaults() Config {
	if c.ImportanceWeights == (ImportanceWeights{}) {
		c.ImportanceWeights = ImportanceWeights{Recency: 0.3, Frequency: 0.2, Relevance: 0.3, Interaction: 0.2}
	}
	if c.PromoteOperationalToTactical == (PromoteThreshold{}) {
		c.PromoteOperationalToTactical = PromoteThreshold{Importance: 0.7, AccessCount: 5}
	}
	if c.PromoteTacticalToStrategic == (PromoteThreshold{}) {
		c.PromoteTacticalToStrategic = PromoteThreshold{Importance: 0.85, AccessCount: 20}
	}
	if c.DuplicateJaccardThreshold <= 0 {
		c.DuplicateJaccardThreshold = 0.8
	}
	if c.AutoResolveConfidence <= 0 {
		c.AutoResolveConfidence = 0.9
	}
	return c
}

// ProcessingReport summarizes one process_memories sweep (spec §4.7).
type ProcessingReport struct {
	Scanned            int
	Promoted           int
	Demoted            int
	DuplicatesFlagged  int
	DuplicatesResolved int
}

// PermissionChecker gates whether a decision may mutate a memory at the
// given scope, supplementing C7 with the allow/deny surface the original
// agentmem crate's agent-mem-tools/src/permissions.rs exposes for tool
// invocation. Decision kinds that cross a scope boundary (Delete, Merge)
// consult it; Add/Update/NoOp never do, since they only ever create or
// narrow state within the caller's own scope.
type PermissionChecker interface {
	Allow(ctx context.Context, orgID string, scope domain.Scope, kind domain.DecisionKind) error
}

// Engine owns the authoritative lifecycle of HierarchicalMemory records
// (spec §4.7).
type Engine struct {
	repo        storage.Repository[domain.Memory]
	cache       *cache.Cache
	vector      vector.Adapter
	embedder    llm.Embedder
	graph       GraphPropagator
	collector   *observability.Collector
	now         func() time.Time
	cfg         Config
	permissions PermissionChecker

	propagationBreaker *gobreaker.CircuitBreaker
}

// WithPermissionChecker installs checker as the gate consulted by
// ApplyDecision before Delete/Merge decisions. Left unset, every decision is
// allowed, matching the original's behavior when no permission table is
// configured.
func (e *Engine) WithPermissionChecker(checker PermissionChecker) *Engine {
	e.permissions = checker
	return e
}

// New builds an Engine. vectorAdapter, embedder, and graph are all optional
// (nil disables that propagation leg, per spec §4.7: "(optionally) embeds
// and writes through C3, (optionally) creates graph node").
func New(repo storage.Repository[domain.Memory], c *cache.Cache, vectorAdapter vector.Adapter, embedder llm.Embedder, graph GraphPropagator, collector *observability.Collector, now func() time.Time, cfg Config) *Engine {
	return &Engine{
		repo:      repo,
		cache:     c,
		vector:    vectorAdapter,
		embedder:  embedder,
		graph:     graph,
		collector: collector,
		now:       now,
		cfg:       cfg.withDefaults(),
		propagationBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "memoryengine-propagation",
			MaxRequests: 3,
			Timeout:     30 * time.Second,
		}),
	}
}

// AddMemory assigns a content hash if absent, writes through C1, invalidates
// C2, and (optionally) propagates to C3/C9 (spec §4.7). Propagation failures
// are swallowed: the canonical truth lives in C1.
func (e *Engine) AddMemory(ctx context.Context, m domain.HierarchicalMemory) (string, error) {
	if m.Memory.ContentHash == "" {
		m.Memory.ContentHash = domain.HashContent(m.Memory.Content)
	}
	now := e.now()
	m.Memory.CreatedAt = now
	m.Memory.UpdatedAt = now
	m.Memory.LastAccessed = now
	m.Memory.Version = 1
	if m.Memory.Importance == 0 {
		m.Memory.Importance = 0.5
	}

	if err := e.repo.Create(ctx, m.Memory); err != nil {
		return "", apperrors.Wrap(err, "memoryengine", "add_memory", "create")
	}

	_ = e.cache.Delete(ctx, cache.MemoryKey(m.Memory.OrgID, m.Memory.ID))
	e.propagateAdd(ctx, m.Memory)

	if e.collector != nil {
		e.collector.FactsIngested.Inc()
	}
	return m.Memory.ID, nil
}

func (e *Engine) propagateAdd(ctx context.Context, m domain.Memory) {
	_, _ = e.propagationBreaker.Execute(func() (any, error) {
		if e.vector != nil && e.embedder != nil {
			vec := m.Embedding
			if len(vec) == 0 {
				embedded, err := e.embedder.Embed(ctx, m.Content)
				if err != nil {
					return nil, err
				}
				vec = embedded
			}
			if _, err := e.vector.AddVectors(ctx, []vector.Data{{ID: m.ID, OrgID: m.OrgID, Vector: vec}}); err != nil {
				return nil, err
			}
		}
		if e.graph != nil {
			if _, err := e.graph.AddNode(ctx, m, string(m.Type)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

// GetMemory consults C2 first, then C1, bumping access_count and
// last_accessed on a hit (spec §4.7).
func (e *Engine) GetMemory(ctx context.Context, orgID, id string) (domain.Memory, error) {
	key := cache.MemoryKey(orgID, id)
	if raw, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		var m domain.Memory
		if err := json.Unmarshal(raw, &m); err == nil {
			e.bumpAccess(ctx, &m)
			return m, nil
		}
	}

	m, err := e.repo.Read(ctx, orgID, id)
	if err != nil {
		return domain.Memory{}, apperrors.Wrap(err, "memoryengine", "get_memory", "read")
	}
	e.bumpAccess(ctx, &m)

	if raw, err := json.Marshal(m); err == nil {
		_ = e.cache.Set(ctx, key, raw, 0)
	}
	return m, nil
}

// bumpAccess applies the access-count/last-accessed update. Spec §4.7 allows
// this to be a non-blocking background task; here it is a best-effort
// synchronous update that never fails the read.
func (e *Engine) bumpAccess(ctx context.Context, m *domain.Memory) {
	m.AccessCount++
	m.LastAccessed = e.now()
	_ = e.repo.Update(ctx, *m)
}

// UpdateMemory reads, applies patch, increments version, writes through,
// and invalidates the cache entry (spec §4.7).
func (e *Engine) UpdateMemory(ctx context.Context, orgID, id string, patch func(*domain.Memory)) (domain.Memory, error) {
	m, err := e.repo.Read(ctx, orgID, id)
	if err != nil {
		return domain.Memory{}, apperrors.Wrap(err, "memoryengine", "update_memory", "read")
	}
	patch(&m)
	m.Version++
	m.UpdatedAt = e.now()
	m.ContentHash = domain.HashContent(m.Content)

	if err := e.repo.Update(ctx, m); err != nil {
		return domain.Memory{}, apperrors.Wrap(err, "memoryengine", "update_memory", "update")
	}
	_ = e.cache.Delete(ctx, cache.MemoryKey(orgID, id))
	e.propagateAdd(ctx, m) // re-embed/re-index under the new content
	return m, nil
}

// RemoveMemory soft-deletes a memory and emits a tombstone to C3/C9 (spec
// §4.7).
func (e *Engine) RemoveMemory(ctx context.Context, orgID, id string) (bool, error) {
	if err := e.repo.Delete(ctx, orgID, id); err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, apperrors.Wrap(err, "memoryengine", "remove_memory", "delete")
	}
	_ = e.cache.Delete(ctx, cache.MemoryKey(orgID, id))

	_, _ = e.propagationBreaker.Execute(func() (any, error) {
		if e.vector != nil {
			if err := e.vector.DeleteVectors(ctx, orgID, []string{id}); err != nil {
				return nil, err
			}
		}
		if e.graph != nil {
			if err := e.graph.RemoveNode(ctx, orgID, id); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return true, nil
}

// ApplyDecision dispatches an Add/Update/Delete/Merge/NoOp decision (spec
// §4.6, §4.7).
func (e *Engine) ApplyDecision(ctx context.Context, orgID string, scope domain.Scope, d domain.Decision) error {
	if e.collector != nil {
		e.collector.DecisionsByType.WithLabelValues(string(d.Kind)).Inc()
	}

	switch d.Kind {
	case domain.DecisionNoOp:
		return nil

	case domain.DecisionAdd:
		hm := domain.HierarchicalMemory{
			Memory: domain.Memory{OrgID: orgID, Content: d.Content, Importance: d.Importance, Type: domain.MemorySemantic},
			Scope:  scope,
			Level:  domain.LevelOperational,
		}
		if hm.Memory.ID == "" {
			hm.Memory.ID = domain.HashContent(orgID + d.Content)
		}
		_, err := e.AddMemory(ctx, hm)
		return err

	case domain.DecisionUpdate:
		_, err := e.UpdateMemory(ctx, orgID, d.MemoryID, func(m *domain.Memory) {
			m.Content = applyMergeStrategy(d.MergeStrategy, m.Content, d.NewContent, m.Importance, d.Importance)
		})
		return err

	case domain.DecisionDelete:
		if err := e.checkPermission(ctx, orgID, scope, d.Kind); err != nil {
			return err
		}
		_, err := e.RemoveMemory(ctx, orgID, d.MemoryID)
		return err

	case domain.DecisionMerge:
		if err := e.checkPermission(ctx, orgID, scope, d.Kind); err != nil {
			return err
		}
		return e.applyMerge(ctx, orgID, scope, d)

	default:
		return apperrors.Validation("memoryengine", "apply_decision", "unknown decision kind")
	}
}

// checkPermission consults the configured PermissionChecker, if any, before
// a scope-crossing mutation. No checker configured means allow, matching
// the original's behavior with no permission table loaded.
func (e *Engine) checkPermission(ctx context.Context, orgID string, scope domain.Scope, kind domain.DecisionKind) error {
	if e.permissions == nil {
		return nil
	}
	if err := e.permissions.Allow(ctx, orgID, scope, kind); err != nil {
		return apperrors.Wrap(err, "memoryengine", "apply_decision", "permission check")
	}
	return nil
}

func (e *Engine) applyMerge(ctx context.Context, orgID string, scope domain.Scope, d domain.Decision) error {
	if d.PrimaryID == "" {
		return apperrors.Validation("memoryengine", "apply_decision", "merge requires a primary_id")
	}
	_, err := e.UpdateMemory(ctx, orgID, d.PrimaryID, func(m *domain.Memory) {
		if d.MergedContent != "" {
			m.Content = d.MergedContent
		}
	})
	if err != nil {
		return err
	}
	for _, secondary := range d.SecondaryIDs {
		if _, err := e.RemoveMemory(ctx, orgID, secondary); err != nil {
			return err
		}
	}
	return nil
}

// applyMergeStrategy implements the Update merge-strategy directives (spec
// §4.6): Replace overwrites, Append concatenates with a newline, Merge
// concatenates then dedups repeated sentences, Prioritize keeps whichever
// side has higher importance.
func applyMergeStrategy(strategy domain.MergeStrategy, oldContent, newContent string, oldImportance, newImportance float64) string {
	switch strategy {
	case domain.MergeAppend:
		if oldContent == "" {
			return newContent
		}
		return oldContent + "\n" + newContent
	case domain.MergeDedup:
		return dedupSentences(oldContent + "\n" + newContent)
	case domain.MergePrioritize:
		if newImportance > oldImportance {
			return newContent
		}
		return oldContent
	case domain.MergeReplace:
		fallthrough
	default:
		return newContent
	}
}

func dedupSentences(content string) string {
	seen := map[string]bool{}
	var out []string
	for _, sentence := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// Search is a thin wrapper deferring entirely to the Retrieval Layer (spec
// §4.7).
func (e *Engine) Search(ctx context.Context, searcher Searcher, query MemoryQuery) ([]ScoredMemory, error) {
	return searcher.Search(ctx, query)
}

// RefreshImportance recomputes m's importance via the weighted blend (spec
// §4.7).
func (e *Engine) RefreshImportance(m domain.Memory, referenceTime time.Time) float64 {
	ageHours := referenceTime.Sub(m.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	recency := 1 / (1 + ageHours/24)
	freq := math.Min(1.0, float64(m.AccessCount)/20)
	rel := m.Importance
	interact := 0.3
	if m.Metadata != nil {
		if _, ok := m.Metadata["user_interaction"]; ok {
			interact = 0.8
		}
	}
	w := e.cfg.ImportanceWeights
	score := w.Recency*recency + w.Frequency*freq + w.Relevance*rel + w.Interaction*interact
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// levelAfter returns the level m should hold, applying the promotion ladder
// in both directions (spec §4.7): importance and access_count both at or
// above a step's threshold promotes; importance alone below the threshold
// of the step that reached the current level demotes, whatever the
// access_count.
func (e *Engine) levelAfter(level domain.Level, importance float64, accessCount int64) domain.Level {
	switch level {
	case domain.LevelOperational:
		if importance >= e.cfg.PromoteOperationalToTactical.Importance && accessCount >= e.cfg.PromoteOperationalToTactical.AccessCount {
			return domain.LevelTactical
		}
	case domain.LevelTactical:
		if importance >= e.cfg.PromoteTacticalToStrategic.Importance && accessCount >= e.cfg.PromoteTacticalToStrategic.AccessCount {
			return domain.LevelStrategic
		}
		if importance < e.cfg.PromoteOperationalToTactical.Importance {
			return domain.LevelOperational
		}
	case domain.LevelStrategic:
		if importance < e.cfg.PromoteTacticalToStrategic.Importance {
			return domain.LevelTactical
		}
	}
	return level
}

// ProcessMemories runs the periodic maintenance sweep over every
// non-deleted memory for orgID: importance refresh, promotion/demotion, and
// duplicate auto-resolution (spec §4.7). levels maps memory id to its
// current HierarchicalMemory level, since Memory itself does not carry
// Level.
func (e *Engine) ProcessMemories(ctx context.Context, orgID string, levels map[string]domain.Level) (ProcessingReport, error) {
	memories, err := e.repo.List(ctx, orgID, storage.NewFilter())
	if err != nil {
		return ProcessingReport{}, apperrors.Wrap(err, "memoryengine", "process_memories", "list")
	}

	report := ProcessingReport{Scanned: len(memories)}
	now := e.now()

	for i := range memories {
		m := &memories[i]
		m.Importance = e.RefreshImportance(*m, now)

		level := levels[m.ID]
		if level == "" {
			level = domain.LevelOperational
		}
		newLevel := e.levelAfter(level, m.Importance, m.AccessCount)
		if newLevel != level {
			if promotionRank(newLevel) > promotionRank(level) {
				report.Promoted++
				if e.collector != nil {
					e.collector.PromotionEvents.WithLabelValues("up").Inc()
				}
			} else {
				report.Demoted++
				if e.collector != nil {
					e.collector.PromotionEvents.WithLabelValues("down").Inc()
				}
			}
			levels[m.ID] = newLevel
		}
		_ = e.repo.Update(ctx, *m)
	}

	resolved, flagged := e.resolveDuplicates(ctx, orgID, memories)
	report.DuplicatesFlagged = flagged
	report.DuplicatesResolved = resolved
	return report, nil
}

func promotionRank(l domain.Level) int {
	switch l {
	case domain.LevelStrategic:
		return 2
	case domain.LevelTactical:
		return 1
	default:
		return 0
	}
}

// resolveDuplicates flags pairs whose content Jaccard similarity exceeds
// cfg.DuplicateJaccardThreshold and auto-resolves (KeepImportant: delete all
// but the highest-importance member) when that pair's similarity also
// clears cfg.AutoResolveConfidence (spec §4.7).
func (e *Engine) resolveDuplicates(ctx context.Context, orgID string, memories []domain.Memory) (resolved, flagged int) {
	groups := map[string][]int{}
	for i, m := range memories {
		groups[m.ContentHash] = append(groups[m.ContentHash], i)
	}

	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			sim := jaccardWords(memories[i].Content, memories[j].Content)
			if sim <= e.cfg.DuplicateJaccardThreshold {
				continue
			}
			flagged++
			if sim < e.cfg.AutoResolveConfidence {
				continue
			}
			keep, drop := memories[i], memories[j]
			if drop.Importance > keep.Importance {
				keep, drop = drop, keep
			}
			if _, err := e.RemoveMemory(ctx, orgID, drop.ID); err == nil {
				resolved++
			}
		}
	}
	return resolved, flagged
}

func jaccardWords(a, b string) float64 {
	setA := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(a)) {
		setA[w] = true
	}
	setB := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(b)) {
		setB[w] = true
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	union := map[string]bool{}
	intersection := 0
	for w := range setA {
		union[w] = true
		if setB[w] {
			intersection++
		}
	}
	for w := range setB {
		union[w] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}
