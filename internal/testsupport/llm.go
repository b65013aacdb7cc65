package testsupport

import (
	"context"
	"sync"
)

// ScriptedClient is a fake llm.Client that returns pre-programmed responses
// in call order, so components that call Generate/GenerateJSON can be
// tested without a live model.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []ScriptedCall
}

// ScriptedCall records one invocation for assertions.
type ScriptedCall struct {
	SystemPrompt string
	UserPrompt   string
	Schema       map[string]any
}

// NewScriptedClient builds a client that returns responses in order, one
// per call; calls past the end of responses return the last response.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// WithErrors makes the i-th call (0-indexed) return err instead of a
// scripted response.
func (c *ScriptedClient) WithErrors(errs map[int]error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = make([]error, len(c.responses))
	for idx, err := range errs {
		if idx >= 0 && idx < len(c.errs) {
			c.errs[idx] = err
		}
	}
	return c
}

func (c *ScriptedClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.next(systemPrompt, userPrompt, nil)
}

func (c *ScriptedClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema map[string]any) (string, error) {
	return c.next(systemPrompt, userPrompt, schema)
}

func (c *ScriptedClient) next(systemPrompt, userPrompt string, schema map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.calls)
	c.calls = append(c.calls, ScriptedCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt, Schema: schema})

	if idx < len(c.errs) && c.errs[idx] != nil {
		return "", c.errs[idx]
	}
	if len(c.responses) == 0 {
		return "", nil
	}
	if idx < len(c.responses) {
		return c.responses[idx], nil
	}
	return c.responses[len(c.responses)-1], nil
}

// Calls returns every call made so far, for assertions on prompts passed.
func (c *ScriptedClient) Calls() []ScriptedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ScriptedCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// DeterministicEmbedder derives a fixed-dimension embedding from the input
// text's byte content, so semantically unrelated texts get different but
// stable vectors without calling a real model.
type DeterministicEmbedder struct {
	dimensions int
}

// NewDeterministicEmbedder builds an embedder producing vectors of the
// given dimensionality.
func NewDeterministicEmbedder(dimensions int) *DeterministicEmbedder {
	return &DeterministicEmbedder{dimensions: dimensions}
}

func (e *DeterministicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *DeterministicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *DeterministicEmbedder) Dimensions() int { return e.dimensions }

// vector hashes text into a deterministic pseudo-embedding: each dimension
// is a rolling FNV-like mix of the byte at that offset (wrapping), folded
// into [-1, 1] so cosine similarity behaves sensibly in tests.
func (e *DeterministicEmbedder) vector(text string) []float32 {
	out := make([]float32, e.dimensions)
	if len(text) == 0 {
		return out
	}
	var hash uint32 = 2166136261
	for i := range out {
		b := text[i%len(text)]
		hash ^= uint32(b)
		hash *= 16777619
		hash += uint32(i)
		out[i] = float32(hash%2000)/1000.0 - 1.0
	}
	return out
}
