package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable_MatchesTaxonomy(t *testing.T) {
	cases := []struct {
		kind      Kind
		retryable bool
	}{
		{KindLockIOError, true},
		{KindFileIOError, true},
		{KindUpstreamUnavailable, true},
		{KindUpstreamProtocolError, true},
		{KindConfigInvalid, false},
		{KindAlreadyLocked, false},
		{KindNotOwner, false},
		{KindParseError, false},
		{KindRejected, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.retryable, IsRetryable(c.kind), "kind %s", c.kind)
	}
}

func TestMaxAttemptsFor_ProtocolErrorAlwaysGetsExactlyOneRetry(t *testing.T) {
	assert.Equal(t, 1, MaxAttemptsFor(KindUpstreamProtocolError, 5))
	assert.Equal(t, 1, MaxAttemptsFor(KindUpstreamProtocolError, 0))
}

func TestMaxAttemptsFor_FullyRetryableUsesConfiguredCeiling(t *testing.T) {
	assert.Equal(t, 5, MaxAttemptsFor(KindUpstreamUnavailable, 5))
	assert.Equal(t, 3, MaxAttemptsFor(KindFileIOError, 3))
}

func TestMaxAttemptsFor_NonRetryableIsZero(t *testing.T) {
	assert.Equal(t, 0, MaxAttemptsFor(KindConfigInvalid, 5))
}

func TestNew_StampsFieldsAndCauseString(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := New(KindFileIOError, "worker.scan", "/dir", "a.txt", 2, cause)

	require.NotNil(t, err)
	assert.Equal(t, KindFileIOError, err.Kind)
	assert.Equal(t, "worker.scan", err.Stage)
	assert.Equal(t, "/dir", err.Directory)
	assert.Equal(t, "a.txt", err.File)
	assert.Equal(t, 2, err.Attempt)
	assert.Equal(t, "boom", err.Cause)
	assert.False(t, err.CreatedAt.IsZero())
}

func TestProcessingError_Retryable(t *testing.T) {
	err := New(KindUpstreamUnavailable, "facade", "", "", 0, nil)
	assert.True(t, err.Retryable())

	err = New(KindConfigInvalid, "config", "", "", 0, nil)
	assert.False(t, err.Retryable())
}

func TestProcessingError_ErrorStringIncludesFileWhenFileScoped(t *testing.T) {
	err := New(KindFileIOError, "worker.process", "/dir", "a.txt", 1, fmt.Errorf("read failed"))
	assert.Contains(t, err.Error(), "file=a.txt")

	err = New(KindDirectoryUnavailable, "scanner.scan", "/dir", "", 0, fmt.Errorf("stat failed"))
	assert.NotContains(t, err.Error(), "file=")
}

func TestFileScoped_MatchesPropagationPolicy(t *testing.T) {
	assert.True(t, FileScoped(KindFileIOError))
	assert.True(t, FileScoped(KindParseError))
	assert.True(t, FileScoped(KindRejected))
	assert.True(t, FileScoped(KindPartialFailure))
	assert.False(t, FileScoped(KindUpstreamUnavailable))
	assert.False(t, FileScoped(KindDirectoryUnavailable))
}
