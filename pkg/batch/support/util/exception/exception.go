// Package exception provides the error types shared by the batch engine.
// Errors are classified by the module that raised them and by whether a retry or an
// item-level isolation policy may act on them.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Sentinel errors of the engine's error taxonomy. Match them with errors.Is.
var (
	// ErrConfiguration marks a malformed job definition, flow graph or component setting.
	ErrConfiguration = errors.New("configuration error")
	// ErrJobNotFound is returned when a run request names a job missing from the registry.
	ErrJobNotFound = errors.New("job not registered")
	// ErrJobInstanceAlreadyComplete rejects a resubmission of parameters that already succeeded.
	ErrJobInstanceAlreadyComplete = errors.New("job instance already complete")
	// ErrJobExecutionAlreadyRunning rejects a submission while an execution of the instance is running.
	ErrJobExecutionAlreadyRunning = errors.New("job execution already running")
	// ErrJobExecutionNotRunning rejects stopping an execution that already finished.
	ErrJobExecutionNotRunning = errors.New("job execution not running")
	// ErrJobInstanceClaimed is returned when another submitter holds the instance claim.
	ErrJobInstanceClaimed = errors.New("job instance claimed by another submitter")
	// ErrFlowDeadEnd means no transition matched a node's exit status.
	ErrFlowDeadEnd = errors.New("flow dead end")
	// ErrOptimisticLockingFailure is a version conflict on a persisted record.
	ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)
)

// OptimisticLockingFailureException is the registered name of ErrOptimisticLockingFailure.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

var (
	errorRegistry = make(map[string]error)
	registryMutex sync.RWMutex
)

// RegisterErrorType registers a named error prototype. Names are referenced from step
// retry settings and resolved by IsErrorOfType through errors.Is.
// It panics on an empty name or a nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}
	registryMutex.Lock()
	defer registryMutex.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name has a registered prototype.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// BatchError is an error raised inside the engine. It carries the module where it
// occurred (reader, processor, writer, flow, launcher, ...), a short message, the
// wrapped cause and the retry / skip classification.
type BatchError struct {
	Module      string
	Message     string
	OriginalErr error
	isRetryable bool
	isSkippable bool
}

// NewBatchError creates a new BatchError.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
	}
}

// NewBatchErrorf creates a non-retryable, non-skippable BatchError with a formatted message.
// If the last argument is an error it also becomes the wrapped cause.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var cause error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok {
			cause = err
		}
	}
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, a...),
		OriginalErr: cause,
	}
}

// NewConfigurationError creates a BatchError wrapping ErrConfiguration.
func NewConfigurationError(module, format string, a ...interface{}) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, a...),
		OriginalErr: ErrConfiguration,
	}
}

// NewOptimisticLockingFailureException creates a BatchError for a version conflict.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	errToWrap := ErrOptimisticLockingFailure
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewBatchError(module, message, errToWrap, false, false)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error may be isolated at item level.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether err's chain contains a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsRetryable reports whether err is classified as retryable.
// The outermost BatchError in the chain decides.
func IsRetryable(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	return false
}

// IsSkippable reports whether err is classified as skippable.
func IsSkippable(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsSkippable()
	}
	return false
}

// IsTemporary reports whether err looks transient. A BatchError's retry flag wins,
// otherwise common transient messages are recognised.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

// IsErrorOfType checks err against a registered prototype name, a Go type name
// (e.g. "*net.OpError") or a message substring, walking the wrap chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	target, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}

	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), errorTypeName) {
			return true
		}
		t := reflect.TypeOf(cur)
		if t.String() == errorTypeName || (t.Kind() == reflect.Ptr && t.Elem().String() == errorTypeName) {
			return true
		}
	}
	return false
}

// IsOptimisticLockingFailure determines if an error indicates an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// ExtractErrorMessage returns the BatchError message, or err.Error() for other errors.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		if be.OriginalErr != nil && !errors.Is(be.OriginalErr, ErrConfiguration) {
			return fmt.Sprintf("%s: %v", be.Message, be.OriginalErr)
		}
		return be.Message
	}
	return err.Error()
}

func init() {
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
	RegisterErrorType("sql.ErrConnDone", sql.ErrConnDone)
}
