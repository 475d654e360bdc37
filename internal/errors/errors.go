// Package errors provides the structured error taxonomy, retry, and
// circuit-breaking machinery shared by every stage of the directory
// processing pipeline.
package errors

import (
	"fmt"
	"time"
)

// Kind is one of the closed taxonomy of failure kinds the core
// classifies every fault into.
type Kind string

const (
	KindConfigInvalid         Kind = "ConfigInvalid"
	KindLockIOError           Kind = "LockIOError"
	KindAlreadyLocked         Kind = "AlreadyLocked"
	KindNotOwner              Kind = "NotOwner"
	KindDirectoryUnavailable  Kind = "DirectoryUnavailable"
	KindFileIOError           Kind = "FileIOError"
	KindParseError            Kind = "ParseError"
	KindUpstreamUnavailable   Kind = "UpstreamUnavailable"
	KindUpstreamProtocolError Kind = "UpstreamProtocolError"
	KindRejected              Kind = "Rejected"
	KindPartialFailure        Kind = "PartialFailure"
	KindHeartbeatTimeout      Kind = "HeartbeatTimeout"
	KindCancelled             Kind = "Cancelled"
)

// Scope names where in the pipeline a failure was classified, used
// only for structured-record presentation, not for control flow.
type Scope string

const (
	ScopeMaster Scope = "master"
	ScopeWorker Scope = "worker"
	ScopeFile   Scope = "file"
)

// retryable reports whether a Kind is retried by the Error Handler
// with backoff, per spec.md §7.
var retryable = map[Kind]bool{
	KindLockIOError:         true,
	KindFileIOError:         true, // only transient instances; permanent ones are still classified this kind but exhaust retries
	KindUpstreamUnavailable: true,
}

// retryOnce holds kinds that get exactly one retry before failing,
// per spec.md §7 (UpstreamProtocolError: "Retry once, then fail").
var retryOnce = map[Kind]bool{
	KindUpstreamProtocolError: true,
}

// IsRetryable reports whether the Error Handler should retry an
// operation that failed with this Kind at all.
func IsRetryable(k Kind) bool {
	return retryable[k] || retryOnce[k]
}

// MaxAttemptsFor returns the retry ceiling implied by the taxonomy for
// a kind, given the configured general ceiling for fully-retryable
// kinds. UpstreamProtocolError always gets exactly one retry
// regardless of configuration.
func MaxAttemptsFor(k Kind, configuredMax int) int {
	if retryOnce[k] {
		return 1
	}
	if retryable[k] {
		return configuredMax
	}
	return 0
}

// ProcessingError is the structured failure value that flows from the
// failure site through the Error Handler to progress messages and
// logs.
type ProcessingError struct {
	Kind      Kind
	Stage     string
	Directory string
	File      string // empty if not file-scoped
	Attempt   int
	Cause     string
	Backoff   time.Duration
	CreatedAt time.Time
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("[%s] stage=%s dir=%s file=%s attempt=%d: %s", e.Kind, e.Stage, e.Directory, e.File, e.Attempt, e.Cause)
	}
	return fmt.Sprintf("[%s] stage=%s dir=%s attempt=%d: %s", e.Kind, e.Stage, e.Directory, e.Attempt, e.Cause)
}

// Retryable reports whether this specific occurrence should be
// retried (kind-level policy).
func (e *ProcessingError) Retryable() bool {
	return IsRetryable(e.Kind)
}

// New constructs a ProcessingError, stamping CreatedAt.
func New(kind Kind, stage, directory, file string, attempt int, cause error) *ProcessingError {
	var causeStr string
	if cause != nil {
		causeStr = cause.Error()
	}
	return &ProcessingError{
		Kind:      kind,
		Stage:     stage,
		Directory: directory,
		File:      file,
		Attempt:   attempt,
		Cause:     causeStr,
		CreatedAt: time.Now(),
	}
}

// FileScoped reports whether this failure never propagates above the
// Chunking Manager (spec.md §7 propagation policy).
func FileScoped(k Kind) bool {
	switch k {
	case KindFileIOError, KindParseError, KindRejected, KindPartialFailure:
		return true
	default:
		return false
	}
}
