package postgres

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"memoryengine/internal/apperrors"
)

// Store itself wraps a concrete *supabase.Client with no interface seam, so
// it has no network-free unit tests of its own; storage.Repository[T]
// consumers are tested against the in-memory fake in internal/testsupport
// instead. These tests cover the pure helpers this package can exercise
// without a database.

func TestClassifyTransientMessages(t *testing.T) {
	err := classify(errors.New("dial tcp: connection reset by peer"))
	assert.True(t, apperrors.IsTransient(err))
}

func TestClassifyNonTransientIsInternal(t *testing.T) {
	err := classify(errors.New("duplicate key value violates unique constraint"))
	assert.True(t, apperrors.IsInternal(err))
}

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, classify(nil))
}

func TestValidateIDRejectsEmpty(t *testing.T) {
	assert.Error(t, validateID("storage", "delete", "", "id-1"))
	assert.Error(t, validateID("storage", "delete", "org-1", ""))
	assert.NoError(t, validateID("storage", "delete", "org-1", "id-1"))
}
