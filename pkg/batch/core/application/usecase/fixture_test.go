package usecase_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/application/usecase"
	support "github.com/tigerroll/surfin-flow/pkg/batch/core/config/support"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/job/flow"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/job/runner"
	"github.com/tigerroll/surfin-flow/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/surfin-flow/pkg/batch/infrastructure/repository/inmemory"
)

// fixture wires the launcher, operator and explorer to an in-memory history.
type fixture struct {
	repo     *inmemory.InMemoryJobRepository
	registry *support.JobRegistry
	launcher *usecase.SimpleJobLauncher
	operator *usecase.DefaultJobOperator
	explorer *usecase.SimpleJobExplorer

	// failLoad makes the "load" step of flakyJob fail while set.
	failLoad atomic.Bool
	// extractRuns counts executions of the "extract" step of flakyJob.
	extractRuns atomic.Int32
	// failReport makes the "report" step of routedJob fail while set.
	failReport atomic.Bool
	// release unblocks blockingJob.
	release chan struct{}
	// blocked is signalled when blockingJob has started waiting.
	blocked chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     inmemory.NewInMemoryJobRepository(),
		registry: support.NewJobRegistry(),
		release:  make(chan struct{}),
		blocked:  make(chan struct{}, 8),
	}

	ok := func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
		return model.ExitStatusCompleted, nil
	}

	simple := flow.NewDefinition("simpleJob").
		AddStep(tasklet.NewTaskletStep("step1", port.TaskletFunc(ok)))
	require.NoError(t, f.registry.Register(runner.NewFlowJob(simple, f.repo,
		runner.WithIncrementer(incrementer.NewRunIDIncrementer("run.id")))))

	flaky := flow.NewDefinition("flakyJob").
		AddStep(tasklet.NewTaskletStep("extract", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			f.extractRuns.Add(1)
			return model.ExitStatusCompleted, nil
		}))).
		AddStep(tasklet.NewTaskletStep("load", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			if f.failLoad.Load() {
				return model.ExitStatusFailed, errors.New("target table locked")
			}
			return model.ExitStatusCompleted, nil
		}))).
		Start("extract").
		Next("extract", "load")
	require.NoError(t, f.registry.Register(runner.NewFlowJob(flaky, f.repo)))

	// validate always fails and is routed around to report.
	routed := flow.NewDefinition("routedJob").
		AddStep(tasklet.NewTaskletStep("validate", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			return model.ExitStatusFailed, errors.New("checksum mismatch")
		}))).
		AddStep(tasklet.NewTaskletStep("transform", port.TaskletFunc(ok))).
		AddStep(tasklet.NewTaskletStep("report", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			if f.failReport.Load() {
				return model.ExitStatusFailed, errors.New("mail server down")
			}
			return model.ExitStatusCompleted, nil
		}))).
		Start("validate").
		On("validate", "FAILED").To("report").
		On("validate", "*").To("transform")
	require.NoError(t, f.registry.Register(runner.NewFlowJob(routed, f.repo)))

	blocking := flow.NewDefinition("blockingJob").
		AddStep(tasklet.NewTaskletStep("wait", port.TaskletFunc(func(ctx context.Context, _ *model.StepExecution) (model.ExitStatus, error) {
			f.blocked <- struct{}{}
			select {
			case <-f.release:
				return model.ExitStatusCompleted, nil
			case <-ctx.Done():
				return model.ExitStatusStopped, ctx.Err()
			}
		})))
	require.NoError(t, f.registry.Register(runner.NewFlowJob(blocking, f.repo)))

	f.launcher = usecase.NewSimpleJobLauncher(f.repo, f.registry, runner.NewSimpleJobRunner(f.repo))
	f.operator = usecase.NewDefaultJobOperator(f.repo, f.registry, f.launcher)
	f.explorer = usecase.NewSimpleJobExplorer(f.repo)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = f.launcher.Shutdown(ctx)
	})
	return f
}

// waitForStatus polls the history until the execution reaches status.
func (f *fixture) waitForStatus(t *testing.T, executionID string, status model.JobStatus) *model.JobExecution {
	t.Helper()
	var last *model.JobExecution
	require.Eventually(t, func() bool {
		je, err := f.explorer.GetJobExecution(context.Background(), executionID)
		if err != nil {
			return false
		}
		last = je
		return je.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return last
}

// awaitBlocked waits until blockingJob is inside its step.
func (f *fixture) awaitBlocked(t *testing.T) {
	t.Helper()
	select {
	case <-f.blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("blockingJob did not start")
	}
}

func params(kv ...interface{}) model.JobParameters {
	p := model.NewJobParameters()
	for i := 0; i+1 < len(kv); i += 2 {
		p.Put(kv[i].(string), kv[i+1])
	}
	return p
}
