package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestRetry_SucceedsWithoutRetryingOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesUpToMaxRetriesThenFails(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(2), func(attempt int) error {
		calls++
		return fmt.Errorf("attempt %d failed", attempt)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestRetry_SucceedsOnLaterAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func(attempt int) error {
		calls++
		if attempt < 2 {
			return fmt.Errorf("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancellationAbortsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastRetryConfig(5), func(attempt int) error {
		calls++
		return fmt.Errorf("fail")
	})
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 0, calls)
}

// TestRetry_PreservesProcessingErrorKind guards against the retry
// exhaustion path re-wrapping the last error in a way that hides its
// Kind from a naked type assertion or an unwrapping errors.As.
func TestRetry_PreservesProcessingErrorKind(t *testing.T) {
	want := New(KindUpstreamUnavailable, "facade.call", "", "", 0, fmt.Errorf("HTTP 503"))
	err := Retry(context.Background(), fastRetryConfig(1), func(attempt int) error {
		return want
	})

	require.Error(t, err)
	var procErr *ProcessingError
	require.True(t, stderrors.As(err, &procErr))
	assert.Equal(t, KindUpstreamUnavailable, procErr.Kind)
	assert.Same(t, want, procErr)
}

func TestRetryWithResult_ReturnsValueOnSuccess(t *testing.T) {
	result, err := RetryWithResult(context.Background(), fastRetryConfig(2), func(attempt int) (string, error) {
		if attempt < 1 {
			return "", fmt.Errorf("not yet")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestRetryWithResult_PreservesProcessingErrorKind(t *testing.T) {
	want := New(KindUpstreamProtocolError, "facade.call", "", "", 0, fmt.Errorf("HTTP 422"))
	_, err := RetryWithResult(context.Background(), fastRetryConfig(1), func(attempt int) (string, error) {
		return "", want
	})

	require.Error(t, err)
	var procErr *ProcessingError
	require.True(t, stderrors.As(err, &procErr))
	assert.Equal(t, KindUpstreamProtocolError, procErr.Kind)
}
