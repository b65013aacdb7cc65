// Package llm wraps the language model used by the Fact Extractor (C5) and
// Decision Engine (C6), and the embedding model used by the Vector Adapter
// (C3). Client construction and the Embed/EmbedBatch shape follow
// theRebelliousNerd-codenerd's internal/embedding/genai.go; generation is
// added on top using the same google.golang.org/genai SDK rather than that
// repo's hand-rolled HTTP client, since the SDK is already the pack's
// established dependency for this concern.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"memoryengine/internal/apperrors"
)

// Client generates free-form and schema-constrained text completions.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (string, error)
}

// Embedder produces dense vector representations of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

const maxEmbedBatchSize = 100

// ProviderKind names an LLM backend. The original agentmem crate ships one
// provider file per backend (anthropic, gemini, litellm, mistral,
// perplexity, together); this engine wires only genai end-to-end (spec.md
// Non-goals: "concrete LLM-provider adapters beyond the one reference"), but
// keeps the selection seam explicit rather than hardwiring GenAIClient as
// the only possible Client.
type ProviderKind string

const (
	ProviderGenAI ProviderKind = "genai"
)

// NewClient resolves kind to a concrete Client+Embedder. Only ProviderGenAI
// is implemented; any other kind returns a Validation error naming the gap
// rather than silently falling back, so callers notice a misconfiguration
// instead of getting genai behavior under another provider's name.
func NewClient(ctx context.Context, kind ProviderKind, cfg Config) (*GenAIClient, error) {
	switch kind {
	case ProviderGenAI, "":
		return New(ctx, cfg)
	default:
		return nil, apperrors.Validation("llm", "new_client", fmt.Sprintf("provider %q is not wired (only %q is implemented)", kind, ProviderGenAI))
	}
}

// GenAIClient implements Client and Embedder over Google's genai SDK.
type GenAIClient struct {
	client          *genai.Client
	model           string
	embedModel      string
	dimensions      int32
	temperature     float32
	maxTokens       int32
	timeout         time.Duration
	generateBreaker *gobreaker.CircuitBreaker
	embedBreaker    *gobreaker.CircuitBreaker
}

// Config controls model selection and generation parameters.
type Config struct {
	APIKey      string
	Model       string
	EmbedModel  string
	Dimensions  int32
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
}

// New builds a GenAIClient, arming a circuit breaker around both the
// generation and embedding call paths independently so a degraded
// embedding endpoint doesn't also starve generation.
func New(ctx context.Context, cfg Config) (*GenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.Validation("llm", "new_client", "api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, apperrors.Wrap(err, "llm", "new_client", "create genai client")
	}

	return &GenAIClient{
		client:      client,
		model:       model,
		embedModel:  embedModel,
		dimensions:  dimensions,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		generateBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm-generate",
			MaxRequests: 3,
			Timeout:     30 * time.Second,
		}),
		embedBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "llm-embed",
			MaxRequests: 3,
			Timeout:     30 * time.Second,
		}),
	}, nil
}

func (c *GenAIClient) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Generate returns the model's free-form completion for userPrompt.
func (c *GenAIClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := c.boundedContext(ctx)
	defer cancel()

	out, err := c.generateBreaker.Execute(func() (any, error) {
		contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
		config := &genai.GenerateContentConfig{Temperature: &c.temperature}
		if c.maxTokens > 0 {
			config.MaxOutputTokens = c.maxTokens
		}
		if systemPrompt != "" {
			config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return "", classify(err)
		}
		return resp.Text(), nil
	})
	if err != nil {
		return "", apperrors.Wrap(err, "llm", "generate", "generate content")
	}
	return out.(string), nil
}

// GenerateJSON returns the model's completion constrained to schema.
func (c *GenAIClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (string, error) {
	ctx, cancel := c.boundedContext(ctx)
	defer cancel()

	out, err := c.generateBreaker.Execute(func() (any, error) {
		contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
		config := &genai.GenerateContentConfig{
			Temperature:      &c.temperature,
			ResponseMIMEType: "application/json",
		}
		if schema != nil {
			config.ResponseSchema = schemaFromMap(schema)
		}
		if c.maxTokens > 0 {
			config.MaxOutputTokens = c.maxTokens
		}
		if systemPrompt != "" {
			config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return "", classify(err)
		}
		return resp.Text(), nil
	})
	if err != nil {
		return "", apperrors.Wrap(err, "llm", "generate_json", "generate structured content")
	}
	return out.(string), nil
}

// schemaFromMap is a minimal JSON-Schema-to-genai.Schema bridge covering
// the object/string/number/boolean/array/enum shapes the decision engine
// and fact extractor actually emit; it is not a general-purpose converter.
func schemaFromMap(m map[string]any) *genai.Schema {
	schema := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		schema.Type = genai.Type(t)
	}
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = map[string]*genai.Schema{}
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(sub)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	if required, ok := m["required"].([]string); ok {
		schema.Required = required
	} else if raw, ok := m["required"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if enumRaw, ok := m["enum"].([]string); ok {
		schema.Enum = enumRaw
	} else if raw, ok := m["enum"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	return schema
}

// Embed generates an embedding for a single text.
func (c *GenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	batch, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, apperrors.Internal("llm", "embed", "no embedding returned", nil)
	}
	return batch[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunking into
// maxEmbedBatchSize-sized requests as the teacher's genai.go does.
func (c *GenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := c.boundedContext(ctx)
	defer cancel()

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatchSize {
		end := start + maxEmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		out, err := c.embedBreaker.Execute(func() (any, error) {
			contents := make([]*genai.Content, len(chunk))
			for i, text := range chunk {
				contents[i] = genai.NewContentFromText(text, genai.RoleUser)
			}
			result, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, &genai.EmbedContentConfig{
				OutputDimensionality: &c.dimensions,
			})
			if err != nil {
				return nil, classify(err)
			}
			if len(result.Embeddings) != len(chunk) {
				return nil, apperrors.Internal("llm", "embed_batch", fmt.Sprintf("expected %d embeddings, got %d", len(chunk), len(result.Embeddings)), nil)
			}
			embeddings := make([][]float32, len(result.Embeddings))
			for i, emb := range result.Embeddings {
				embeddings[i] = emb.Values
			}
			return embeddings, nil
		})
		if err != nil {
			return nil, apperrors.Wrap(err, "llm", "embed_batch", "embed content")
		}
		all = append(all, out.([][]float32)...)
	}
	return all, nil
}

// Dimensions reports the embedding model's output dimensionality.
func (c *GenAIClient) Dimensions() int {
	return int(c.dimensions)
}

// classify tags an SDK error as Transient when it looks like a rate limit
// or a network/server-side fault, so retry.Do and the circuit breaker both
// make the same call an outside caller would.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, needle := range []string{"429", "rate limit", "RESOURCE_EXHAUSTED", "503", "UNAVAILABLE", "deadline exceeded", "connection reset"} {
		if containsFold(msg, needle) {
			return apperrors.Transient("llm", "call", msg, err)
		}
	}
	return apperrors.Internal("llm", "call", msg, err)
}

func containsFold(haystack, needle string) bool {
	hl, nl := len(haystack), len(needle)
	if nl == 0 {
		return true
	}
	for i := 0; i+nl <= hl; i++ {
		if equalFold(haystack[i:i+nl], needle) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
