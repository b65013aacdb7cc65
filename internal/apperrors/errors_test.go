package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesKind(t *testing.T) {
	base := NotFound("storage", "read", "memory missing")
	wrapped := Wrap(base, "memoryengine", "get_memory", "lookup failed")

	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, "memoryengine", wrapped.Component)
	assert.ErrorIs(t, wrapped, base)
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "a", "b", "c"))
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, Retryable(Transient("storage", "update", "deadlock", errors.New("lock"))))
	assert.False(t, Retryable(Validation("blocks", "append", "too long")))
	assert.False(t, Retryable(errors.New("plain error")))
}

func TestWithTenant(t *testing.T) {
	e := PermissionDenied("storage", "read", "cross tenant").WithTenant("org-1")
	assert.Equal(t, "org-1", e.Tenant)
}
