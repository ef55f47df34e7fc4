package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_RetriesLockedThenSucceeds(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_StopsOnConstraintViolation(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return errors.New("UNIQUE constraint failed: tasks.name")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_RespectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := RetryWithBackoff(ctx, func() error {
		attempts++
		return nil
	})
	require.Error(t, err)
	require.Equal(t, 0, attempts)
}
