// Package inmemory provides a JobRepository that keeps the history in process memory.
// It stores snapshots, so callers never share state with the store, and checks versions
// the way the SQL repository does.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

type claim struct {
	owner     string
	claimedAt time.Time
}

// InMemoryJobRepository is an in-memory implementation of the JobRepository interface.
type InMemoryJobRepository struct {
	mu             sync.RWMutex
	jobInstances   map[string]*model.JobInstance
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	// seq orders executions by insertion, which is stable even when clocks tie.
	seq    map[string]int64
	next   int64
	claims map[string]claim
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)

// NewInMemoryJobRepository creates an empty InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobInstances:   make(map[string]*model.JobInstance),
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
		seq:            make(map[string]int64),
		claims:         make(map[string]claim),
	}
}

func (r *InMemoryJobRepository) stamp(id string) {
	r.next++
	r.seq[id] = r.next
}

// ClaimJobInstance records owner as the holder of the instance.
func (r *InMemoryJobRepository) ClaimJobInstance(ctx context.Context, jobInstanceID string, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.claims[jobInstanceID]; ok {
		return fmt.Errorf("job instance %s is held by %s since %s: %w",
			jobInstanceID, c.owner, c.claimedAt.Format(time.RFC3339), exception.ErrJobInstanceClaimed)
	}
	r.claims[jobInstanceID] = claim{owner: owner, claimedAt: time.Now()}
	return nil
}

// ReleaseJobInstance drops the claim if owner holds it.
func (r *InMemoryJobRepository) ReleaseJobInstance(ctx context.Context, jobInstanceID string, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.claims[jobInstanceID]; ok && c.owner == owner {
		delete(r.claims, jobInstanceID)
	}
	return nil
}

// Close does nothing; the store holds no external resources.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

func copyJobExecution(je *model.JobExecution) *model.JobExecution {
	out := *je
	out.Parameters = je.Parameters.Copy()
	out.Failures = append(model.FailureList(nil), je.Failures...)
	out.ExecutionContext = je.ExecutionContext.Copy()
	out.StepExecutions = make([]*model.StepExecution, 0)
	out.CancelFunc = nil
	if je.EndTime != nil {
		t := *je.EndTime
		out.EndTime = &t
	}
	return &out
}

func copyStepExecution(se *model.StepExecution) *model.StepExecution {
	out := *se
	out.JobExecution = nil
	out.Failures = append(model.FailureList(nil), se.Failures...)
	out.ExecutionContext = se.ExecutionContext.Copy()
	if se.EndTime != nil {
		t := *se.EndTime
		out.EndTime = &t
	}
	return &out
}
