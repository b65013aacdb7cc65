// Package retrieval implements the Retrieval Layer (C8, spec §4.8):
// cancellation-scoped fan-out across full-text (C1), dense-vector (C3), and
// graph-proximity (C9) search legs, min-max normalized and fused into one
// ranked result set. Fan-out/fusion is new code grounded on the teacher's
// application/queries handler shape (fan-out-then-assemble) and
// domain/services/graph_analytics_service.go for the graph-proximity leg;
// cancellation uses golang.org/x/sync/errgroup the way
// internal/perception/semantic_classifier.go parallelizes its own
// multi-store search.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"memoryengine/internal/domain"
	"memoryengine/internal/graph"
	"memoryengine/internal/memoryengine"
	"memoryengine/internal/storage"
	"memoryengine/internal/vector"
)

// FusionWeights mirrors internal/config.FusionWeights so callers can pass
// that struct's values directly (spec §4.8 defaults 0.3/0.4/0.2/0.1).
type FusionWeights struct {
	Text       float64
	Vector     float64
	Graph      float64
	Importance float64
}

func (w FusionWeights) withDefaults() FusionWeights {
	if w == (FusionWeights{}) {
		return FusionWeights{Text: 0.3, Vector: 0.4, Graph: 0.2, Importance: 0.1}
	}
	return w
}

// Profile carries a user's interest vector for optional personalization
// (spec §4.8).
type Profile struct {
	Interests map[string]float64 // tag/keyword -> affinity weight
	Weight    float64            // pw in [0, 0.5]
}

// Config tunes the Retrieval Layer.
type Config struct {
	Weights       FusionWeights
	GraphMaxDepth int
}

// Engine fans a MemoryQuery out across text/vector/graph legs and fuses the
// results (spec §4.8). It implements memoryengine.Searcher.
type Engine struct {
	memories storage.Repository[domain.Memory]
	vectors  vector.Adapter
	graphEng *graph.Engine
	cfg      Config
	now      func() time.Time
}

// New builds an Engine. vectors and graphEng are optional: a nil vectors
// disables the dense-similarity leg, a nil graphEng disables graph-proximity
// expansion (spec §4.8: fan-out legs are conditional on which fields/adapters
// are present).
func New(memories storage.Repository[domain.Memory], vectors vector.Adapter, graphEng *graph.Engine, cfg Config, now func() time.Time) *Engine {
	cfg.Weights = cfg.Weights.withDefaults()
	if cfg.GraphMaxDepth <= 0 {
		cfg.GraphMaxDepth = 2
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{memories: memories, vectors: vectors, graphEng: graphEng, cfg: cfg, now: now}
}

type legResult struct {
	scores map[string]float64 // memory id -> normalized [0,1] score
	memos  map[string]domain.Memory
}

// Search implements memoryengine.Searcher: it fans out the legs implied by
// query's populated fields, normalizes each leg's scores, fuses them, and
// (optionally) personalizes, sorts, dedups, and truncates to query.Limit
// (spec §4.8). The whole fan-out is cancellation-scoped via errgroup: if
// ctx is canceled, outstanding legs abort and partial results are discarded
// unless at least one leg had already completed, in which case Partial is
// flagged on the fused results.
func (e *Engine) Search(ctx context.Context, query memoryengine.MemoryQuery) ([]memoryengine.ScoredMemory, error) {
	return e.SearchWithProfile(ctx, query, nil)
}

// SearchWithProfile is Search plus optional personalization (spec §4.8).
func (e *Engine) SearchWithProfile(ctx context.Context, query memoryengine.MemoryQuery, profile *Profile) ([]memoryengine.ScoredMemory, error) {
	g, gctx := errgroup.WithContext(ctx)

	var textLeg, vectorLeg, graphLeg legResult
	var partial bool

	if query.Text != "" {
		g.Go(func() error {
			result, err := e.searchText(gctx, query)
			if err != nil {
				return err
			}
			textLeg = result
			return nil
		})
	}
	if len(query.Vector) > 0 && e.vectors != nil {
		g.Go(func() error {
			result, err := e.searchVector(gctx, query)
			if err != nil {
				return err
			}
			vectorLeg = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			partial = true
		} else {
			return nil, err
		}
	}

	if e.graphEng != nil {
		seeds := topSeeds(textLeg, vectorLeg)
		if len(seeds) > 0 {
			graphLeg = e.searchGraph(ctx, query.OrgID, seeds)
		}
	}

	fused := e.fuse(textLeg, vectorLeg, graphLeg)
	if profile != nil {
		applyPersonalization(fused, profile, query.MinImportance)
	}

	out := toScoredMemories(fused, partial)
	out = filterByQuery(out, query, e.now())
	sortScoredMemories(out)
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

type fusedEntry struct {
	memory domain.Memory
	score  float64
}

func (e *Engine) searchText(ctx context.Context, query memoryengine.MemoryQuery) (legResult, error) {
	all, err := e.memories.List(ctx, query.OrgID, storage.NewFilter())
	if err != nil {
		return legResult{}, err
	}

	terms := strings.Fields(strings.ToLower(query.Text))
	scores := map[string]float64{}
	memos := map[string]domain.Memory{}
	for _, m := range all {
		if !memoryVisible(m, query.Scope) {
			continue
		}
		content := strings.ToLower(m.Content)
		matches := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		scores[m.ID] = float64(matches) / float64(len(terms))
		memos[m.ID] = m
	}
	return normalizeLeg(scores, memos), nil
}

func (e *Engine) searchVector(ctx context.Context, query memoryengine.MemoryQuery) (legResult, error) {
	results, err := e.vectors.SearchVectors(ctx, query.OrgID, query.Vector, 50, nil)
	if err != nil {
		return legResult{}, err
	}
	scores := map[string]float64{}
	memos := map[string]domain.Memory{}
	for _, r := range results {
		scores[r.Data.ID] = r.Similarity
		memos[r.Data.ID] = domain.Memory{ID: r.Data.ID, OrgID: r.Data.OrgID}
	}
	return normalizeLeg(scores, memos), nil
}

// searchGraph expands neighbors-of-neighbors of seeds through the graph
// engine (spec §4.8).
func (e *Engine) searchGraph(ctx context.Context, orgID string, seeds []string) legResult {
	scores := map[string]float64{}
	memos := map[string]domain.Memory{}
	for _, seed := range seeds {
		related, err := e.graphEng.FindRelatedNodes(ctx, orgID, seed, e.cfg.GraphMaxDepth, nil)
		if err != nil {
			continue
		}
		for i, node := range related {
			depthScore := 1.0 / float64(i/4+2) // nearer neighbors score higher
			if existing, ok := scores[node.ID]; !ok || depthScore > existing {
				scores[node.ID] = depthScore
				memos[node.ID] = node.Memory
			}
		}
	}
	return normalizeLeg(scores, memos)
}

// normalizeLeg min-max normalizes a leg's raw scores into [0,1] (spec
// §4.8). A leg with a single distinct score (or none) maps every entry to
// 1.0 rather than dividing by zero.
func normalizeLeg(raw map[string]float64, memos map[string]domain.Memory) legResult {
	if len(raw) == 0 {
		return legResult{scores: map[string]float64{}, memos: map[string]domain.Memory{}}
	}
	min, max := minMax(raw)
	normalized := map[string]float64{}
	for id, score := range raw {
		if max == min {
			normalized[id] = 1.0
			continue
		}
		normalized[id] = (score - min) / (max - min)
	}
	return legResult{scores: normalized, memos: memos}
}

func minMax(values map[string]float64) (min, max float64) {
	first := true
	for _, v := range values {
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func topSeeds(legs ...legResult) []string {
	type pair struct {
		id    string
		score float64
	}
	var pairs []pair
	for _, leg := range legs {
		for id, score := range leg.scores {
			pairs = append(pairs, pair{id, score})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })
	n := 5
	if len(pairs) < n {
		n = len(pairs)
	}
	out := make([]string, 0, n)
	seen := map[string]bool{}
	for _, p := range pairs {
		if seen[p.id] {
			continue
		}
		seen[p.id] = true
		out = append(out, p.id)
		if len(out) >= n {
			break
		}
	}
	return out
}

// fuse combines the three legs' normalized scores per spec §4.8's weighted
// formula: fused = alpha*text + beta*vector + gamma*graph + delta*importance.
func (e *Engine) fuse(text, vec, graphLeg legResult) map[string]fusedEntry {
	w := e.cfg.Weights
	out := map[string]fusedEntry{}

	merge := func(leg legResult, weight float64) {
		for id, score := range leg.scores {
			entry := out[id]
			if entry.memory.ID == "" {
				entry.memory = leg.memos[id]
			}
			entry.score += weight * score
			out[id] = entry
		}
	}
	merge(text, w.Text)
	merge(vec, w.Vector)
	merge(graphLeg, w.Graph)

	for id, entry := range out {
		entry.score += w.Importance * entry.memory.Importance
		out[id] = entry
	}
	return out
}

func applyPersonalization(fused map[string]fusedEntry, profile *Profile, importanceFloor float64) {
	pw := profile.Weight
	if pw < 0 {
		pw = 0
	}
	if pw > 0.5 {
		pw = 0.5
	}
	for id, entry := range fused {
		if entry.memory.Importance < importanceFloor {
			continue // never reorders below the caller's hard importance floor
		}
		affinity := profileAffinity(entry.memory, profile)
		entry.score *= 1 + pw*affinity
		fused[id] = entry
	}
}

func profileAffinity(m domain.Memory, profile *Profile) float64 {
	if len(profile.Interests) == 0 {
		return 0
	}
	content := strings.ToLower(m.Content)
	var total float64
	for tag, weight := range profile.Interests {
		if strings.Contains(content, strings.ToLower(tag)) {
			total += weight
		}
	}
	if total > 1 {
		total = 1
	}
	return total
}

func toScoredMemories(fused map[string]fusedEntry, partial bool) []memoryengine.ScoredMemory {
	out := make([]memoryengine.ScoredMemory, 0, len(fused))
	for _, entry := range fused {
		out = append(out, memoryengine.ScoredMemory{Memory: entry.memory, Score: entry.score, Partial: partial})
	}
	return out
}

func filterByQuery(in []memoryengine.ScoredMemory, query memoryengine.MemoryQuery, now time.Time) []memoryengine.ScoredMemory {
	var out []memoryengine.ScoredMemory
	for _, sm := range in {
		if query.Type != "" && sm.Memory.Type != query.Type {
			continue
		}
		if sm.Memory.Importance < query.MinImportance {
			continue
		}
		if query.MaxAge > 0 && !sm.Memory.CreatedAt.IsZero() && now.Sub(sm.Memory.CreatedAt) > query.MaxAge {
			continue
		}
		out = append(out, sm)
	}
	return out
}

// sortScoredMemories orders descending by score, deduplicated by construction
// (fuse already keys by memory id), ties broken by id ascending for
// determinism (spec §4.8).
func sortScoredMemories(in []memoryengine.ScoredMemory) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].Score != in[j].Score {
			return in[i].Score > in[j].Score
		}
		return in[i].Memory.ID < in[j].Memory.ID
	})
}

// memoryVisible reports whether m falls within scope, mirroring
// domain.Scope.Matches's field comparison. domain.Memory carries its
// agent/user ids directly rather than a nested Scope, so the comparison is
// inlined here instead of calling Matches. A zero-value scope (Kind == "")
// means "no restriction" so callers that don't populate Scope still see
// every memory in the org.
func memoryVisible(m domain.Memory, scope domain.Scope) bool {
	switch scope.Kind {
	case "", domain.ScopeGlobal:
		return true
	case domain.ScopeAgent:
		return m.AgentID == scope.AgentID
	case domain.ScopeUser, domain.ScopeSession:
		return m.AgentID == scope.AgentID && m.UserID == scope.UserID
	default:
		return true
	}
}
