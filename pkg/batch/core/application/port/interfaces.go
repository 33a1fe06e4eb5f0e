// Package port defines the interfaces between the engine and the components a job is
// assembled from: steps, deciders, item readers, processors, writers, tasklets and
// listeners.
package port

import (
	"context"
	"errors"
	"reflect"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// ErrNoMoreItems is returned by ItemReader.Read at end of stream.
var ErrNoMoreItems = errors.New("no more items to read")

// Job is an executable, validated job definition.
type Job interface {
	JobName() string
	// Run drives the job's flow for jobExecution until a terminal state.
	// Step failures become execution state; the returned error reports only failures of
	// the engine itself, such as an unreachable history store.
	Run(ctx context.Context, jobExecution *model.JobExecution) error
	// Validate checks the job definition. It runs before any execution is created.
	Validate() error
	// ValidateParameters checks required parameters before submission.
	ValidateParameters(params model.JobParameters) error
}

// JobRunner drives one JobExecution of a job from STARTING to a terminal state and
// persists the outcome.
type JobRunner interface {
	Run(ctx context.Context, job Job, jobExecution *model.JobExecution) error
}

// Step is one unit of work inside a job.
type Step interface {
	StepName() string
	// Execute runs the step and leaves its outcome in stepExecution. The returned error
	// mirrors a FAILED outcome; callers route on stepExecution.ExitStatus.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
}

// Validator is implemented by steps that can check their own configuration.
type Validator interface {
	Validate() error
}

// Decider is a flow node that computes a branch key from the state of the execution.
// It runs no business logic and creates no StepExecution.
//
// Parameters:
//
//	ctx: The context for the operation.
//	jobExecution: The running JobExecution.
//	lastStepExecution: The most recently finished StepExecution, or nil.
type Decider interface {
	DeciderName() string
	Decide(ctx context.Context, jobExecution *model.JobExecution, lastStepExecution *model.StepExecution) (model.ExitStatus, error)
}

// ItemReader streams items. O is the item type.
type ItemReader[O any] interface {
	// Open acquires resources and restores the read position from ec.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read returns the next item, or ErrNoMoreItems at end of stream.
	Read(ctx context.Context) (O, error)
	Close(ctx context.Context) error
	// GetExecutionContext returns the current read position for checkpointing.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemProcessor transforms items. Returning a nil value filters the item out.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter persists a chunk of items. It runs inside the chunk transaction, which it
// finds in ctx (see tx.FromContext).
type ItemWriter[I any] interface {
	Open(ctx context.Context, ec model.ExecutionContext) error
	Write(ctx context.Context, items []I) error
	Close(ctx context.Context) error
}

// Tasklet is a step body that runs once. The returned ExitStatus may be any code,
// e.g. a custom "ODD" consumed by flow transitions; empty means COMPLETED.
type Tasklet interface {
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
}

// TaskletFunc adapts a function to Tasklet.
type TaskletFunc func(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)

// Execute calls f.
func (f TaskletFunc) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	return f(ctx, stepExecution)
}

// JobExecutionListener observes job executions.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob runs once the execution is terminal, whatever the outcome.
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// StepExecutionListener observes step executions.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener observes chunk boundaries.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk runs after commit or rollback of the chunk.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
}

// ItemProcessListener is told about items excluded from a chunk by isolation.
type ItemProcessListener interface {
	OnProcessError(ctx context.Context, item interface{}, err error)
}

// RetryListener is told about every retried attempt.
type RetryListener interface {
	OnRetry(ctx context.Context, attempt int, err error)
}

// JobParametersIncrementer derives the parameters of the next job instance.
type JobParametersIncrementer interface {
	GetNext(params model.JobParameters) model.JobParameters
}

// IsNil reports whether v is nil or a nil pointer, map, slice or interface.
// Chunk processing uses it to detect filtered items.
func IsNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

type contextKey string

// StepExecutionKey is the context key of the running StepExecution.
const StepExecutionKey contextKey = "stepExecution"

// WithStepExecution stores se in ctx.
func WithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// StepExecutionFromContext returns the StepExecution stored in ctx, or nil.
func StepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
