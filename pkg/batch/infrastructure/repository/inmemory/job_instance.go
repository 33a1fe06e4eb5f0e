package inmemory

import (
	"context"
	"fmt"
	"sort"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
)

// SaveJobInstance stores a new JobInstance. A second instance with the same job name and
// parameters hash is rejected.
func (r *InMemoryJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobInstances[instance.ID]; exists {
		return fmt.Errorf("JobInstance with ID %s already exists", instance.ID)
	}
	for _, ji := range r.jobInstances {
		if ji.JobName == instance.JobName && ji.ParametersHash == instance.ParametersHash {
			return fmt.Errorf("JobInstance for job '%s' with parameters %s already exists", instance.JobName, instance.Parameters.String())
		}
	}
	stored := *instance
	stored.Parameters = instance.Parameters.Copy()
	r.jobInstances[instance.ID] = &stored
	r.stamp(instance.ID)
	return nil
}

func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ji, ok := r.jobInstances[id]
	if !ok {
		return nil, repository.ErrJobInstanceNotFound
	}
	out := *ji
	return &out, nil
}

func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hash := params.Hash()
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName && ji.ParametersHash == hash {
			out := *ji
			return &out, nil
		}
	}
	return nil, repository.ErrJobInstanceNotFound
}

// FindJobInstancesByJobName returns the instances of jobName, newest first.
func (r *InMemoryJobRepository) FindJobInstancesByJobName(ctx context.Context, jobName string) ([]*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.JobInstance, 0)
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			c := *ji
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] > r.seq[out[j].ID] })
	return out, nil
}

func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, ji := range r.jobInstances {
		if _, ok := seen[ji.JobName]; !ok {
			seen[ji.JobName] = struct{}{}
			names = append(names, ji.JobName)
		}
	}
	sort.Strings(names)
	return names, nil
}
