package errors

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("vector_store", 3, time.Second)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("vector_store", 3, time.Second)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return stderrors.New("boom") })
	}
	assert.Equal(t, StateOpen, cb.State())
}

// TestCircuitBreaker_OpenRejectsAsProcessingError guards the fix for
// an open breaker surfacing a bare sentinel that a naked type
// assertion downstream would misclassify as KindFileIOError instead
// of KindUpstreamUnavailable.
func TestCircuitBreaker_OpenRejectsAsProcessingError(t *testing.T) {
	cb := NewCircuitBreaker("vector_store", 1, time.Hour)
	_ = cb.Execute(func() error { return stderrors.New("boom") })
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called, "Execute must not call fn while the breaker is open")

	var procErr *ProcessingError
	require.True(t, stderrors.As(err, &procErr))
	assert.Equal(t, KindUpstreamUnavailable, procErr.Kind)
	assert.Contains(t, procErr.Cause, ErrCircuitOpen.Error())
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("vector_store", 1, 20*time.Millisecond)
	_ = cb.Execute(func() error { return stderrors.New("boom") })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("vector_store", 1, 20*time.Millisecond)
	_ = cb.Execute(func() error { return stderrors.New("boom") })
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(func() error { return stderrors.New("still failing") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("vector_store", 3, time.Second)
	_ = cb.Execute(func() error { return stderrors.New("boom") })
	_ = cb.Execute(func() error { return stderrors.New("boom") })
	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())

	_ = cb.Execute(func() error { return stderrors.New("boom") })
	_ = cb.Execute(func() error { return stderrors.New("boom") })
	assert.Equal(t, StateClosed, cb.State(), "failure count should have reset after the intervening success")
}
