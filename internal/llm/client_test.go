package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"memoryengine/internal/apperrors"
)

func TestNewClientUnwiredProviderIsValidation(t *testing.T) {
	_, err := NewClient(context.Background(), ProviderKind("anthropic"), Config{APIKey: "x"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestNewClientEmptyKindDefaultsToGenAI(t *testing.T) {
	_, err := NewClient(context.Background(), "", Config{})
	// No API key configured: falls through to New's own validation, not the
	// provider-selection validation, proving the empty kind dispatched to genai.
	assert.True(t, apperrors.IsValidation(err))
}

func TestClassifyRateLimitIsTransient(t *testing.T) {
	err := classify(errors.New("googleapi: Error 429: rate limit exceeded"))
	assert.True(t, apperrors.IsTransient(err))
}

func TestClassifyUnavailableIsTransient(t *testing.T) {
	err := classify(errors.New("rpc error: code = Unavailable desc = upstream connect error"))
	assert.True(t, apperrors.IsTransient(err))
}

func TestClassifyOtherIsInternal(t *testing.T) {
	err := classify(errors.New("invalid argument: prompt too long"))
	assert.True(t, apperrors.IsInternal(err))
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, classify(nil))
}

func TestSchemaFromMapNestedObject(t *testing.T) {
	m := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"name"},
	}
	schema := schemaFromMap(m)
	assert.Equal(t, "object", string(schema.Type))
	assert.Contains(t, schema.Properties, "name")
	assert.Contains(t, schema.Properties, "tags")
	assert.Equal(t, "string", string(schema.Properties["tags"].Items.Type))
	assert.Equal(t, []string{"name"}, schema.Required)
}

func TestContainsFoldCaseInsensitive(t *testing.T) {
	assert.True(t, containsFold("Rate Limit Exceeded", "rate limit"))
	assert.False(t, containsFold("all good here", "rate limit"))
}

func TestNewRejectsEmptyAPIKey(t *testing.T) {
	_, err := New(nil, Config{}) //nolint:staticcheck // nil context acceptable: validation short-circuits before any ctx use
	assert.True(t, apperrors.IsValidation(err))
}
