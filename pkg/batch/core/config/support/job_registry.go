package support

import (
	"fmt"
	"sort"
	"sync"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// JobRegistry holds the runnable jobs by name.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]port.Job
}

// NewJobRegistry creates an empty JobRegistry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]port.Job)}
}

// Register adds job. A second job with the same name is a configuration error.
//
// Parameters:
//
//	job: The validated job to register.
//
// Returns:
//
//	An error if the name is empty or already taken.
func (r *JobRegistry) Register(job port.Job) error {
	if port.IsNil(job) || job.JobName() == "" {
		return exception.NewConfigurationError("job_registry", "cannot register a job without name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.JobName()]; exists {
		return exception.NewConfigurationError("job_registry", "job '%s' is already registered", job.JobName())
	}
	r.jobs[job.JobName()] = job
	logger.Debugf("Job '%s' registered.", job.JobName())
	return nil
}

// Get returns the job registered as name, or an error wrapping exception.ErrJobNotFound.
func (r *JobRegistry) Get(name string) (port.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", exception.ErrJobNotFound, name)
	}
	return job, nil
}

// Names returns the registered job names, sorted.
func (r *JobRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
