// Package decision implements the Decision Engine (C6, spec §4.6):
// similarity/conflict detection over facts and candidate memories,
// importance scoring, and LLM-backed planning of Add/Update/Delete/Merge/
// NoOp decisions. The Jaccard set-similarity shape is generalized from the
// teacher's domain/services/similarity_calculator.go (node-vs-node) to
// fact-vs-memory.
package decision

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/domain"
	"memoryengine/internal/llm"
)

const (
	defaultSimilarityThreshold = 0.7
	defaultConflictThreshold   = 0.5
	defaultConfidenceFloor     = 0.5
)

var negationIndicators = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true,
	"doesnt": true, "doesn't": true, "wont": true, "won't": true,
	"cant": true, "can't": true,
}

// Config tunes the Decision Engine's thresholds (spec §4.6 defaults).
type Config struct {
	SimilarityThreshold float64
	ConflictThreshold   float64
	ConfidenceFloor     float64
}

func (c Config) withDefaults() Config {
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = defaultSimilarityThreshold
	}
	if c.ConflictThreshold <= 0 {
		c.ConflictThreshold = defaultConflictThreshold
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = defaultConfidenceFloor
	}
	return c
}

// Engine reconciles newly extracted facts against candidate memories and
// proposes a plan of Decisions; it never performs IO itself (spec §4.6).
type Engine struct {
	client llm.Client
	cfg    Config
}

// New builds an Engine over client with cfg (zero-value fields fall back to
// spec defaults).
func New(client llm.Client, cfg Config) *Engine {
	return &Engine{client: client, cfg: cfg.withDefaults()}
}

// JaccardSimilarity computes the Jaccard index over the lowercased word sets
// of a and b (spec §4.6).
func JaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
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

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

// ContainsNegation reports whether text contains any of the spec's negation
// indicators, checked as whole words.
func ContainsNegation(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:")
		if negationIndicators[w] {
			return true
		}
	}
	return false
}

// IsConflicting reports whether fact and candidate content are conflicting
// per spec §4.6: similarity > 0.5 and either side carries a negation
// indicator.
func (e *Engine) IsConflicting(factContent, candidateContent string) bool {
	sim := JaccardSimilarity(factContent, candidateContent)
	if sim <= e.cfg.ConflictThreshold {
		return false
	}
	return ContainsNegation(factContent) || ContainsNegation(candidateContent)
}

// IsSimilar reports whether candidateContent exceeds the engine's
// similarity threshold against factContent.
func (e *Engine) IsSimilar(factContent, candidateContent string) bool {
	return JaccardSimilarity(factContent, candidateContent) > e.cfg.SimilarityThreshold
}

// Importance implements spec §4.6's importance formula.
func Importance(f domain.Fact) float64 {
	score := f.Confidence * f.Category.Weight()
	entityBonus := 0.1 * math.Min(3, float64(len(f.Entities))) / 3
	score += entityBonus
	if f.TemporalInfo != "" {
		score += 0.1
	}
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

var planSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind":                map[string]any{"type": "string", "enum": []any{"add", "update", "delete", "merge", "noop"}},
			"confidence":          map[string]any{"type": "number"},
			"content":             map[string]any{"type": "string"},
			"memory_id":           map[string]any{"type": "string"},
			"reason":              map[string]any{"type": "string"},
			"new_content":         map[string]any{"type": "string"},
			"merge_strategy":      map[string]any{"type": "string", "enum": []any{"replace", "append", "merge", "prioritize"}},
			"primary_id":          map[string]any{"type": "string"},
			"secondary_ids":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"merged_content":      map[string]any{"type": "string"},
			"affected_memory_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"kind", "confidence"},
	},
}

const planSystemPrompt = `You reconcile newly observed facts against a candidate set of existing ` +
	`memories for a long-term memory system. For each fact decide whether to add it as a new ` +
	`memory, update an existing one, delete a contradicted one, merge duplicates, or take no ` +
	`action. Return a JSON array of decisions.`

type rawDecision struct {
	Kind              string   `json:"kind"`
	Confidence        float64  `json:"confidence"`
	Content           string   `json:"content"`
	MemoryID          string   `json:"memory_id"`
	Reason            string   `json:"reason"`
	NewContent        string   `json:"new_content"`
	MergeStrategy     string   `json:"merge_strategy"`
	PrimaryID         string   `json:"primary_id"`
	SecondaryIDs      []string `json:"secondary_ids"`
	MergedContent     string   `json:"merged_content"`
	AffectedMemoryIDs []string `json:"affected_memory_ids"`
}

// Plan poses facts and candidates to the LLM and returns the resulting
// decisions, dropping any below the confidence floor (spec §4.6). An empty
// facts slice returns an empty plan without calling the LLM.
func (e *Engine) Plan(ctx context.Context, facts []domain.Fact, candidates []domain.Memory) ([]domain.Decision, error) {
	if len(facts) == 0 {
		return []domain.Decision{}, nil
	}

	prompt := buildPlanPrompt(facts, candidates)
	raw, err := e.client.GenerateJSON(ctx, planSystemPrompt, prompt, planSchema)
	if err != nil {
		return nil, apperrors.Wrap(err, "decision", "plan", "generate decisions")
	}

	var parsed []rawDecision
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, apperrors.Wrap(err, "decision", "plan", "parse llm response")
	}

	decisions := make([]domain.Decision, 0, len(parsed))
	for _, p := range parsed {
		if p.Confidence < e.cfg.ConfidenceFloor {
			continue
		}
		decisions = append(decisions, domain.Decision{
			Kind:              domain.DecisionKind(p.Kind),
			Confidence:        p.Confidence,
			Content:           p.Content,
			MemoryID:          p.MemoryID,
			Reason:            p.Reason,
			NewContent:        p.NewContent,
			MergeStrategy:     domain.MergeStrategy(p.MergeStrategy),
			PrimaryID:         p.PrimaryID,
			SecondaryIDs:      p.SecondaryIDs,
			MergedContent:     p.MergedContent,
			AffectedMemoryIDs: p.AffectedMemoryIDs,
		})
	}
	return decisions, nil
}

func buildPlanPrompt(facts []domain.Fact, candidates []domain.Memory) string {
	var b strings.Builder
	b.WriteString("New facts:\n")
	for i, f := range facts {
		b.WriteString(strconv.Itoa(i))
		b.WriteString(". [")
		b.WriteString(string(f.Category))
		b.WriteString(", confidence=")
		b.WriteString(strconv.FormatFloat(f.Confidence, 'f', 2, 64))
		b.WriteString("] ")
		b.WriteString(f.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nCandidate existing memories:\n")
	for _, m := range candidates {
		b.WriteString("- [id=")
		b.WriteString(m.ID)
		b.WriteString("] ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
