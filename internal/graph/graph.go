// Package graph implements the Graph Memory Engine (C9, spec §4.9): a
// directed, typed multigraph over Memory-bearing nodes, an adjacency index,
// BFS traversal, and five reasoning modes. The node/edge shape generalizes
// the teacher's domain/core/aggregates/graph.go (Edge/GraphMetadata) from a
// single implicit relation to the spec's 8-member RelationType enum; BFS
// traversal follows domain/services/edge_discovery.go and
// domain/services/graph_analytics_service.go's FindPath shape.
package graph

import (
	"context"
	"sort"
	"sync"
	"time"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/domain"
)

const defaultMaxPathLength = 4

// ReasoningType selects one of the five relationship-reasoning modes (spec
// §4.9).
type ReasoningType string

const (
	ReasoningDeductive  ReasoningType = "deductive"
	ReasoningInductive  ReasoningType = "inductive"
	ReasoningAbductive  ReasoningType = "abductive"
	ReasoningAnalogical ReasoningType = "analogical"
	ReasoningCausal     ReasoningType = "causal"
)

// ReasoningPath is one discovered explanation connecting two nodes.
type ReasoningPath struct {
	NodeIDs    []string
	Edges      []domain.GraphEdge
	Confidence float64
	Mode       ReasoningType
}

// Stats is get_graph_stats()'s result (spec §4.9).
type Stats struct {
	NodeCount       int
	EdgeCount       int
	NodesByType     map[domain.NodeType]int
	EdgesByRelation map[domain.RelationType]int
}

var abductiveRelations = map[domain.RelationType]bool{
	domain.RelationCausedBy: true,
	domain.RelationPartOf:   true,
	domain.RelationIsA:      true,
}

// Engine maintains the in-process adjacency index over nodes/edges, scoped
// per organization (spec §4.9: "both are in-process data structures backed
// by a materialized snapshot in C1").
type Engine struct {
	mu    sync.RWMutex
	nodes map[string]map[string]domain.GraphNode  // orgID -> nodeID -> node
	out   map[string]map[string][]domain.GraphEdge // orgID -> sourceID -> outgoing edges
	in    map[string]map[string][]domain.GraphEdge // orgID -> targetID -> incoming edges
	now   func() time.Time
}

// New builds an empty Engine.
func New(now func() time.Time) *Engine {
	return &Engine{
		nodes: map[string]map[string]domain.GraphNode{},
		out:   map[string]map[string][]domain.GraphEdge{},
		in:    map[string]map[string][]domain.GraphEdge{},
		now:   now,
	}
}

func (g *Engine) ensureOrg(orgID string) {
	if g.nodes[orgID] == nil {
		g.nodes[orgID] = map[string]domain.GraphNode{}
	}
	if g.out[orgID] == nil {
		g.out[orgID] = map[string][]domain.GraphEdge{}
	}
	if g.in[orgID] == nil {
		g.in[orgID] = map[string][]domain.GraphEdge{}
	}
}

// AddNode registers memory as a graph node, satisfying
// memoryengine.GraphPropagator.
func (g *Engine) AddNode(ctx context.Context, memory domain.Memory, nodeType string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureOrg(memory.OrgID)

	node := domain.GraphNode{ID: memory.ID, OrgID: memory.OrgID, Memory: memory, NodeType: domain.NodeType(nodeType)}
	g.nodes[memory.OrgID][memory.ID] = node
	return node.ID, nil
}

// RemoveNode deletes a node and every edge touching it, satisfying
// memoryengine.GraphPropagator.
func (g *Engine) RemoveNode(ctx context.Context, orgID, memoryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureOrg(orgID)
	delete(g.nodes[orgID], memoryID)
	delete(g.out[orgID], memoryID)
	delete(g.in[orgID], memoryID)
	for src, edges := range g.out[orgID] {
		g.out[orgID][src] = filterEdges(edges, memoryID)
	}
	for dst, edges := range g.in[orgID] {
		g.in[orgID][dst] = filterEdges(edges, memoryID)
	}
	return nil
}

func filterEdges(edges []domain.GraphEdge, excludeNode string) []domain.GraphEdge {
	var out []domain.GraphEdge
	for _, e := range edges {
		if e.SourceID == excludeNode || e.TargetID == excludeNode {
			continue
		}
		out = append(out, e)
	}
	return out
}

// AddEdge creates a directed edge src->dst (spec §4.9).
func (g *Engine) AddEdge(ctx context.Context, orgID, src, dst string, relation domain.RelationType, weight float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureOrg(orgID)

	if _, ok := g.nodes[orgID][src]; !ok {
		return "", apperrors.NotFound("graph", "add_edge", "source node not found")
	}
	if _, ok := g.nodes[orgID][dst]; !ok {
		return "", apperrors.NotFound("graph", "add_edge", "target node not found")
	}

	edge := domain.GraphEdge{
		ID:        src + "->" + dst + ":" + string(relation),
		OrgID:     orgID,
		SourceID:  src,
		TargetID:  dst,
		Relation:  relation,
		Weight:    weight,
		CreatedAt: g.now(),
	}
	g.out[orgID][src] = append(g.out[orgID][src], edge)
	g.in[orgID][dst] = append(g.in[orgID][dst], edge)
	return edge.ID, nil
}

// FindRelatedNodes runs BFS from seed up to maxDepth, optionally filtering
// by a relation whitelist, returning nodes in BFS order excluding the seed
// (spec §4.9).
func (g *Engine) FindRelatedNodes(ctx context.Context, orgID, seed string, maxDepth int, relations []domain.RelationType) ([]domain.GraphNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[orgID][seed]; !ok {
		return nil, apperrors.NotFound("graph", "find_related_nodes", "seed node not found")
	}
	allowed := relationSet(relations)

	visited := map[string]bool{seed: true}
	type frontierEntry struct {
		id    string
		depth int
	}
	queue := []frontierEntry{{id: seed, depth: 0}}
	var out []domain.GraphNode

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, edge := range g.out[orgID][cur.id] {
			if allowed != nil && !allowed[edge.Relation] {
				continue
			}
			if visited[edge.TargetID] {
				continue
			}
			visited[edge.TargetID] = true
			if node, ok := g.nodes[orgID][edge.TargetID]; ok {
				out = append(out, node)
			}
			queue = append(queue, frontierEntry{id: edge.TargetID, depth: cur.depth + 1})
		}
	}
	return out, nil
}

func relationSet(relations []domain.RelationType) map[domain.RelationType]bool {
	if len(relations) == 0 {
		return nil
	}
	out := map[domain.RelationType]bool{}
	for _, r := range relations {
		out[r] = true
	}
	return out
}

// ReasonRelationships dispatches to one of the five reasoning modes (spec
// §4.9).
func (g *Engine) ReasonRelationships(ctx context.Context, orgID, src, dst string, mode ReasoningType) ([]ReasoningPath, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	switch mode {
	case ReasoningDeductive:
		return g.deductive(orgID, src, dst), nil
	case ReasoningInductive:
		return g.inductive(orgID, src, dst), nil
	case ReasoningAbductive:
		return g.abductive(orgID, src, dst), nil
	case ReasoningAnalogical:
		return g.analogical(orgID, src, dst), nil
	case ReasoningCausal:
		return g.causal(orgID, src, dst), nil
	default:
		return nil, apperrors.Validation("graph", "reason_relationships", "unknown reasoning mode")
	}
}

// simplePaths enumerates every simple directed path from src to dst up to
// maxLen edges, filtering by an optional relation whitelist over adjacency.
func (g *Engine) simplePaths(orgID, src, dst string, maxLen int, adjacency map[string][]domain.GraphEdge, allowed map[domain.RelationType]bool) []ReasoningPath {
	var results []ReasoningPath
	var walk func(current string, nodePath []string, edgePath []domain.GraphEdge, visited map[string]bool)
	walk = func(current string, nodePath []string, edgePath []domain.GraphEdge, visited map[string]bool) {
		if current == dst && len(edgePath) > 0 {
			results = append(results, ReasoningPath{
				NodeIDs:    append([]string{}, nodePath...),
				Edges:      append([]domain.GraphEdge{}, edgePath...),
				Confidence: pathConfidence(edgePath),
			})
			return
		}
		if len(edgePath) >= maxLen {
			return
		}
		for _, edge := range adjacency[current] {
			if allowed != nil && !allowed[edge.Relation] {
				continue
			}
			if visited[edge.TargetID] {
				continue
			}
			visited[edge.TargetID] = true
			walk(edge.TargetID, append(nodePath, edge.TargetID), append(edgePath, edge), visited)
			delete(visited, edge.TargetID)
		}
	}
	walk(src, []string{src}, nil, map[string]bool{src: true})
	return results
}

func pathConfidence(edges []domain.GraphEdge) float64 {
	if len(edges) == 0 {
		return 0
	}
	conf := 1.0
	for _, e := range edges {
		conf *= e.Weight
	}
	return conf
}

// deductive enumerates simple directed paths src->dst up to
// defaultMaxPathLength; path confidence is the product of edge weights
// (spec §4.9).
func (g *Engine) deductive(orgID, src, dst string) []ReasoningPath {
	paths := g.simplePaths(orgID, src, dst, defaultMaxPathLength, g.out[orgID], nil)
	for i := range paths {
		paths[i].Mode = ReasoningDeductive
	}
	return paths
}

// inductive finds all simple paths src->dst and reports, per final-edge
// relation type, the fraction of paths sharing it; the returned paths are
// those belonging to the dominant (most common) final-edge-type group,
// tagged with that fraction as their confidence (spec §4.9: "pattern
// strength").
func (g *Engine) inductive(orgID, src, dst string) []ReasoningPath {
	paths := g.simplePaths(orgID, src, dst, defaultMaxPathLength, g.out[orgID], nil)
	if len(paths) == 0 {
		return nil
	}

	counts := map[domain.RelationType]int{}
	for _, p := range paths {
		last := p.Edges[len(p.Edges)-1].Relation
		counts[last]++
	}
	var dominant domain.RelationType
	best := 0
	for relation, count := range counts {
		if count > best {
			best = count
			dominant = relation
		}
	}
	strength := float64(best) / float64(len(paths))

	var out []ReasoningPath
	for _, p := range paths {
		if p.Edges[len(p.Edges)-1].Relation != dominant {
			continue
		}
		p.Confidence = strength
		p.Mode = ReasoningInductive
		out = append(out, p)
	}
	return out
}

// abductive searches in the reverse direction, dst->src, restricted to
// {CausedBy, PartOf, IsA} edges; each discovered path is a plausible
// antecedent (spec §4.9).
func (g *Engine) abductive(orgID, src, dst string) []ReasoningPath {
	paths := g.simplePaths(orgID, dst, src, defaultMaxPathLength, g.out[orgID], abductiveRelations)
	out := make([]ReasoningPath, 0, len(paths))
	for _, p := range paths {
		reversed := reverseStrings(p.NodeIDs)
		out = append(out, ReasoningPath{NodeIDs: reversed, Edges: p.Edges, Confidence: p.Confidence, Mode: ReasoningAbductive})
	}
	return out
}

func reverseStrings(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

// analogical finds a triple (A->B) structurally isomorphic to (src->dst)
// under a relation-preserving mapping: any other edge sharing src->dst's
// direct relation, ranked by the number of shared metadata keys (spec
// §4.9).
func (g *Engine) analogical(orgID, src, dst string) []ReasoningPath {
	var direct *domain.GraphEdge
	for _, e := range g.out[orgID][src] {
		if e.TargetID == dst {
			edge := e
			direct = &edge
			break
		}
	}
	if direct == nil {
		return nil
	}

	type candidate struct {
		edge    domain.GraphEdge
		overlap int
	}
	var candidates []candidate
	for source, edges := range g.out[orgID] {
		if source == src {
			continue
		}
		for _, e := range edges {
			if e.Relation != direct.Relation || e.TargetID == dst {
				continue
			}
			candidates = append(candidates, candidate{edge: e, overlap: sharedMetadataKeys(direct.Metadata, e.Metadata)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].overlap > candidates[j].overlap })

	out := make([]ReasoningPath, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, ReasoningPath{
			NodeIDs:    []string{c.edge.SourceID, c.edge.TargetID},
			Edges:      []domain.GraphEdge{c.edge},
			Confidence: float64(c.overlap),
			Mode:       ReasoningAnalogical,
		})
	}
	return out
}

func sharedMetadataKeys(a, b map[string]any) int {
	count := 0
	for k := range a {
		if _, ok := b[k]; ok {
			count++
		}
	}
	return count
}

// causal restricts traversal to CausedBy edges and returns the longest
// causal chain connecting src to dst (spec §4.9).
func (g *Engine) causal(orgID, src, dst string) []ReasoningPath {
	allowed := map[domain.RelationType]bool{domain.RelationCausedBy: true}
	paths := g.simplePaths(orgID, src, dst, defaultMaxPathLength*4, g.out[orgID], allowed)
	if len(paths) == 0 {
		return nil
	}
	longest := paths[0]
	for _, p := range paths[1:] {
		if len(p.Edges) > len(longest.Edges) {
			longest = p
		}
	}
	longest.Mode = ReasoningCausal
	return []ReasoningPath{longest}
}

// GetGraphStats reports node/edge counts and per-type histograms (spec
// §4.9).
func (g *Engine) GetGraphStats(ctx context.Context, orgID string) (Stats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Stats{NodesByType: map[domain.NodeType]int{}, EdgesByRelation: map[domain.RelationType]int{}}
	for _, node := range g.nodes[orgID] {
		stats.NodeCount++
		stats.NodesByType[node.NodeType]++
	}
	for _, edges := range g.out[orgID] {
		for _, e := range edges {
			stats.EdgeCount++
			stats.EdgesByRelation[e.Relation]++
		}
	}
	return stats, nil
}
