// Package extractor implements the Fact Extractor (C5, spec §4.5):
// LLM-driven extraction of atomic facts from a batch of conversation
// messages, generalized from the teacher's
// infrastructure/acl/external_api_adapter.go adapter-wraps-external-service
// shape (here the external service is the LLM rather than a generic API).
package extractor

import (
	"context"
	"encoding/json"
	"strings"

	"memoryengine/internal/apperrors"
	"memoryengine/internal/domain"
	"memoryengine/internal/llm"
)

const defaultConfidenceFloor = 0.5

// schema is the structured-output contract requested from the LLM, matching
// the Fact JSON shape from spec §4.5.
var schema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content":           map[string]any{"type": "string"},
			"confidence":        map[string]any{"type": "number"},
			"category":          map[string]any{"type": "string", "enum": []any{"personal", "preference", "relationship", "event", "knowledge", "procedural"}},
			"entities":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"temporal_info":     map[string]any{"type": "string"},
			"source_message_id": map[string]any{"type": "string"},
		},
		"required": []any{"content", "confidence", "category"},
	},
}

const systemPrompt = `You extract atomic, verifiable facts from a conversation. ` +
	`Each fact must be a single self-contained statement about the user, their ` +
	`preferences, relationships, events, knowledge, or procedures. Return a JSON ` +
	`array; do not include facts you are not reasonably confident about.`

// Extractor is stateless across calls; the same messages produce the same
// facts modulo LLM nondeterminism (spec §4.5).
type Extractor struct {
	client          llm.Client
	confidenceFloor float64
}

// Config tunes the confidence floor below which extracted facts are
// discarded (spec §4.5 default 0.5).
type Config struct {
	ConfidenceFloor float64
}

// New builds an Extractor over client. A zero or negative ConfidenceFloor
// falls back to the spec default of 0.5.
func New(client llm.Client, cfg Config) *Extractor {
	floor := cfg.ConfidenceFloor
	if floor <= 0 {
		floor = defaultConfidenceFloor
	}
	return &Extractor{client: client, confidenceFloor: floor}
}

type rawFact struct {
	Content         string   `json:"content"`
	Confidence      float64  `json:"confidence"`
	Category        string   `json:"category"`
	Entities        []string `json:"entities"`
	TemporalInfo    string   `json:"temporal_info"`
	SourceMessageID string   `json:"source_message_id"`
}

// Extract returns the facts found in messages, filtering out any below the
// configured confidence floor. An empty messages slice returns an empty
// slice without calling the LLM (spec §8).
func (e *Extractor) Extract(ctx context.Context, messages []domain.Message) ([]domain.Fact, error) {
	if len(messages) == 0 {
		return []domain.Fact{}, nil
	}

	prompt := buildPrompt(messages)
	raw, err := e.client.GenerateJSON(ctx, systemPrompt, prompt, schema)
	if err != nil {
		return nil, apperrors.Wrap(err, "extractor", "extract", "generate facts")
	}

	var parsed []rawFact
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, apperrors.Wrap(err, "extractor", "extract", "parse llm response")
	}

	facts := make([]domain.Fact, 0, len(parsed))
	for _, p := range parsed {
		if p.Confidence < e.confidenceFloor {
			continue
		}
		facts = append(facts, domain.Fact{
			Content:         p.Content,
			Confidence:      p.Confidence,
			Category:        domain.FactCategory(p.Category),
			Entities:        p.Entities,
			TemporalInfo:    p.TemporalInfo,
			SourceMessageID: p.SourceMessageID,
		})
	}
	return facts, nil
}

func buildPrompt(messages []domain.Message) string {
	var b strings.Builder
	b.WriteString("Conversation:\n")
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(" (id=")
		b.WriteString(m.ID)
		b.WriteString("): ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}
