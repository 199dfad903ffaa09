package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedError_Error(t *testing.T) {
	err := NewBroadcastError(CodeRejected, "node rejected transaction", nil)
	assert.Equal(t, "[BroadcastError:rejected] node rejected transaction", err.Error())

	cause := errors.New("boom")
	withCause := NewRPCError("get block height", cause)
	assert.Contains(t, withCause.Error(), "boom")
	assert.ErrorIs(t, withCause, cause)
}

func TestTypedError_Is(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewAddressNotMatchError("ABC123", "XYZ999"))

	assert.True(t, errors.Is(err, &TypedError{Category: CategoryDevice}))
	assert.True(t, errors.Is(err, &TypedError{Category: CategoryDevice, Code: CodeAddressNotMatch}))
	assert.False(t, errors.Is(err, &TypedError{Category: CategoryDevice, Code: CodeActionCancelled}))
	assert.False(t, errors.Is(err, &TypedError{Category: CategoryBroadcast}))
	assert.True(t, IsCategory(err, CategoryDevice))
	assert.True(t, IsCode(err, CodeAddressNotMatch))
}

func TestToTyped(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
	}{
		{"typed passes through", NewValidationError("bad path"), CategoryValidation},
		{"deadline becomes timeout", context.DeadlineExceeded, CategorySubmissionTimeout},
		{"plain error becomes internal", errors.New("unexpected"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typed := ToTyped(tt.err)
			require.NotNil(t, typed)
			assert.Equal(t, tt.category, typed.Category)
		})
	}

	assert.Nil(t, ToTyped(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRPCError("x", nil)))
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("429 Too Many Requests")))
	assert.False(t, IsRetryable(NewBroadcastError(CodeRejected, "x", nil)))
	assert.False(t, IsRetryable(NewFailedError("sig", "custom program error")))
	assert.False(t, IsRetryable(nil))
}

func TestRetryWithConfig(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:         3,
		InitialDelay:        time.Millisecond,
		MaxDelay:            5 * time.Millisecond,
		Multiplier:          2.0,
		RetryableCategories: []Category{CategoryRPC},
	}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		err := RetryWithConfig(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return NewRPCError("flaky", nil)
			}
			return nil
		}, config)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on non retryable error", func(t *testing.T) {
		attempts := 0
		err := RetryWithConfig(context.Background(), func() error {
			attempts++
			return NewValidationError("bad")
		}, config)
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.True(t, IsCategory(err, CategoryValidation))
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		attempts := 0
		err := RetryWithConfig(context.Background(), func() error {
			attempts++
			return NewRPCError("down", nil)
		}, config)
		require.Error(t, err)
		assert.Equal(t, 3, attempts)
		assert.True(t, IsCode(err, "retries_exhausted"))
	})

	t.Run("reports each retry", func(t *testing.T) {
		var delays []time.Duration
		cfg := *config
		cfg.OnRetry = func(_ int, d time.Duration, _ error) { delays = append(delays, d) }
		_ = RetryWithConfig(context.Background(), func() error {
			return NewRPCError("down", nil)
		}, &cfg)
		assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RetryWithConfig(ctx, func() error { return nil }, config)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, time.Second, ExponentialBackoff(0, time.Second, time.Minute))
	assert.Equal(t, 4*time.Second, ExponentialBackoff(3, time.Second, time.Minute))
	assert.Equal(t, 10*time.Second, ExponentialBackoff(10, time.Second, 10*time.Second))
}
