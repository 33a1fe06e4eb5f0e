// Package repository defines the history store of job instances and executions.
package repository

import (
	"context"
)

// InstanceClaim guards job instances against concurrent submission. At most one owner
// holds the claim of an instance; a second ClaimJobInstance for a claimed instance fails
// with exception.ErrJobInstanceClaimed.
type InstanceClaim interface {
	ClaimJobInstance(ctx context.Context, jobInstanceID string, owner string) error
	// ReleaseJobInstance drops the claim if owner holds it. Releasing an unclaimed
	// instance is not an error.
	ReleaseJobInstance(ctx context.Context, jobInstanceID string, owner string) error
}

// JobRepository is the history store.
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution
	InstanceClaim

	// Close releases resources held by the repository.
	Close() error
}
