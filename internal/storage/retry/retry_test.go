package retry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryengine/internal/apperrors"
)

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	cfg := Default()
	cfg.BaseDelay = 0
	cfg.MaxDelay = 0

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return apperrors.Transient("storage", "read", "deadlock detected", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryNonTransient(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Default(), func(ctx context.Context) error {
		attempts++
		return apperrors.NotFound("storage", "read", "no such row")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	cfg := Default()
	cfg.MaxAttempts = 2
	cfg.BaseDelay = 0

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return apperrors.Transient("storage", "read", "still down", nil)
	})

	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}
