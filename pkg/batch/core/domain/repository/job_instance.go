package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

// ErrJobInstanceNotFound is returned when a JobInstance is not found.
var ErrJobInstanceNotFound = errors.New("job instance not found")

func init() {
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
}

// JobInstance persists job instance identity.
type JobInstance interface {
	// SaveJobInstance persists a new JobInstance. Saving a second instance with the same
	// job name and parameters hash fails.
	SaveJobInstance(ctx context.Context, instance *model.JobInstance) error

	FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error)

	// FindJobInstanceByJobNameAndParameters looks an instance up by its identity.
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)

	// FindJobInstancesByJobName returns the instances of jobName, newest first.
	FindJobInstancesByJobName(ctx context.Context, jobName string) ([]*model.JobInstance, error)

	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)

	// GetJobNames returns the distinct job names, sorted.
	GetJobNames(ctx context.Context) ([]string, error)
}
