package main

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// demoLLM is an offline stand-in for llm.Client/llm.Embedder; wire always
// uses it, whatever the configuration. It recognizes the extractor's and decision
// engine's system prompts (extractor.systemPrompt, decision.planSystemPrompt)
// and answers with heuristic, deterministic JSON so the scenarios below run
// without a network call — the same role a fixture client plays in the
// engine's own package tests, just wired into the CLI instead of a _test.go.
type demoLLM struct {
	dimension int
}

func newDemoLLM(dimension int) *demoLLM {
	return &demoLLM{dimension: dimension}
}

func (d *demoLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return strings.TrimSpace(userPrompt), nil
}

func (d *demoLLM) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (string, error) {
	switch {
	case strings.Contains(systemPrompt, "extract atomic"):
		return d.extractFacts(userPrompt), nil
	case strings.Contains(systemPrompt, "reconcile newly observed facts"):
		return d.planDecisions(userPrompt), nil
	default:
		return "[]", nil
	}
}

var conversationLine = regexp.MustCompile(`(?m)^\w+ \(id=[^)]*\): (.+)$`)

type demoFact struct {
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Category   string   `json:"category"`
	Entities   []string `json:"entities,omitempty"`
}

// extractFacts splits each user turn into clauses and tags each with a
// category guessed from a small keyword table, mirroring (at far smaller
// scale) what the real extraction prompt asks the model to do.
func (d *demoLLM) extractFacts(userPrompt string) string {
	var facts []demoFact
	for _, m := range conversationLine.FindAllStringSubmatch(userPrompt, -1) {
		for _, clause := range splitClauses(m[1]) {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			facts = append(facts, demoFact{
				Content:    clause,
				Confidence: 0.85,
				Category:   guessCategory(clause),
				Entities:   capitalizedWords(clause),
			})
		}
	}
	out, _ := json.Marshal(facts)
	return string(out)
}

func splitClauses(text string) []string {
	text = strings.ReplaceAll(text, " and ", "|")
	return strings.Split(text, "|")
}

func guessCategory(clause string) string {
	lower := strings.ToLower(clause)
	switch {
	case strings.Contains(lower, "live") || strings.Contains(lower, "born") || strings.Contains(lower, "my name"):
		return "personal"
	case strings.Contains(lower, "love") || strings.Contains(lower, "like") || strings.Contains(lower, "prefer") || strings.Contains(lower, "favorite"):
		return "preference"
	case strings.Contains(lower, "meeting") || strings.Contains(lower, "yesterday") || strings.Contains(lower, "tomorrow"):
		return "event"
	case strings.Contains(lower, "friend") || strings.Contains(lower, "brother") || strings.Contains(lower, "colleague"):
		return "relationship"
	default:
		return "knowledge"
	}
}

func capitalizedWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, ".,!?;:")
		if len(w) > 0 && w[0] >= 'A' && w[0] <= 'Z' {
			out = append(out, w)
		}
	}
	return out
}

var planFactLine = regexp.MustCompile(`(?m)^\d+\. \[(\w+), confidence=([0-9.]+)\] (.+)$`)

type demoDecision struct {
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
}

// planDecisions turns every "New facts" line back into an Add decision.
// The demo never has a populated candidate set worth reconciling against,
// so it always proposes Add rather than Update/Merge/Delete.
func (d *demoLLM) planDecisions(userPrompt string) string {
	var decisions []demoDecision
	for _, m := range planFactLine.FindAllStringSubmatch(userPrompt, -1) {
		confidence, _ := strconv.ParseFloat(m[2], 64)
		decisions = append(decisions, demoDecision{
			Kind:       "add",
			Confidence: confidence,
			Content:    m[3],
			Importance: confidence,
		})
	}
	out, _ := json.Marshal(decisions)
	return string(out)
}

func (d *demoLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return hashEmbed(text, d.dimension), nil
}

func (d *demoLLM) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, d.dimension)
	}
	return out, nil
}

func (d *demoLLM) Dimensions() int { return d.dimension }

// hashEmbed folds text's bytes into a stable pseudo-embedding so semantically
// similar demo strings (sharing words) land closer together than unrelated
// ones, without pulling in a real embedding model.
func hashEmbed(text string, dimension int) []float32 {
	vec := make([]float32, dimension)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return vec
	}
	for _, w := range words {
		var acc uint32 = 2166136261
		for i := 0; i < len(w); i++ {
			acc ^= uint32(w[i])
			acc *= 16777619
		}
		idx := int(acc) % dimension
		if idx < 0 {
			idx += dimension
		}
		vec[idx] += 1
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(1) / sqrtf32(norm)
	for i := range vec {
		vec[i] *= norm
	}
	return vec
}

func sqrtf32(v float32) float32 {
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}
