// Package skip decides whether an item whose processing failed may be dropped from its
// chunk while the rest of the chunk proceeds.
package skip

import (
	"errors"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

// Policy determines whether a failed item is isolated (excluded and reported) or aborts
// the chunk.
type Policy interface {
	// ShouldSkip determines if the item error err may be isolated, given skipCount items
	// already isolated in this step execution.
	// err: The error to evaluate.
	// skipCount: The number of items isolated so far.
	// Returns: true if the item is isolated, false if the chunk must fail.
	ShouldSkip(err error, skipCount int) bool
}

// IsolatingPolicy isolates every item error except configuration errors and the
// configured fatal error types, up to an optional limit.
type IsolatingPolicy struct {
	// SkipLimit caps the isolated items per step execution; 0 means unlimited.
	SkipLimit int
	// FatalExceptions lists error type names that always abort the chunk.
	FatalExceptions []string
}

// NewIsolatingPolicy creates the default item-level isolation policy.
// skipLimit: The maximum number of isolated items. 0 means no limit.
// fatalExceptions: Error type names that are never isolated.
// Returns: A new IsolatingPolicy.
func NewIsolatingPolicy(skipLimit int, fatalExceptions ...string) *IsolatingPolicy {
	return &IsolatingPolicy{SkipLimit: skipLimit, FatalExceptions: fatalExceptions}
}

// ShouldSkip implements Policy.
func (p *IsolatingPolicy) ShouldSkip(err error, skipCount int) bool {
	if err == nil {
		return false
	}
	if p.SkipLimit > 0 && skipCount >= p.SkipLimit {
		return false
	}
	if errors.Is(err, exception.ErrConfiguration) {
		return false
	}
	for _, typeName := range p.FatalExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return false
		}
	}
	return true
}

// FailFastPolicy never isolates: the first item error aborts the chunk.
type FailFastPolicy struct{}

// NewFailFastPolicy creates a FailFastPolicy.
func NewFailFastPolicy() FailFastPolicy {
	return FailFastPolicy{}
}

// ShouldSkip implements Policy.
func (FailFastPolicy) ShouldSkip(error, int) bool {
	return false
}

// ListedPolicy isolates only errors flagged skippable or matching SkippableExceptions,
// up to SkipLimit (0 disables skipping).
type ListedPolicy struct {
	SkipLimit           int
	SkippableExceptions []string
}

// NewListedPolicy creates a ListedPolicy.
// skipLimit: The maximum number of skips allowed. 0 means no skips are allowed.
// skippableExceptions: A list of error type names considered skippable.
// Returns: A new ListedPolicy and an error if a listed type is unknown.
func NewListedPolicy(skipLimit int, skippableExceptions []string) (*ListedPolicy, error) {
	for _, name := range skippableExceptions {
		if name == "" {
			return nil, exception.NewConfigurationError("skip", "empty skippable exception name")
		}
	}
	if skipLimit < 0 {
		return nil, exception.NewConfigurationError("skip", "skip limit must not be negative, got %d", skipLimit)
	}
	return &ListedPolicy{SkipLimit: skipLimit, SkippableExceptions: skippableExceptions}, nil
}

// ShouldSkip implements Policy.
func (p *ListedPolicy) ShouldSkip(err error, skipCount int) bool {
	if err == nil || p.SkipLimit == 0 || skipCount >= p.SkipLimit {
		return false
	}
	if exception.IsSkippable(err) {
		return true
	}
	for _, typeName := range p.SkippableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

// Verify interfaces
var (
	_ Policy = (*IsolatingPolicy)(nil)
	_ Policy = FailFastPolicy{}
	_ Policy = (*ListedPolicy)(nil)
)
