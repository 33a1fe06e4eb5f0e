package tasklet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/tasklet"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/surfin-flow/pkg/batch/test"
)

type closingTasklet struct {
	port.TaskletFunc
	closed   bool
	closeErr error
}

func (c *closingTasklet) Close(context.Context) error {
	c.closed = true
	return c.closeErr
}

type stepEvents struct {
	events []string
}

func (l *stepEvents) BeforeStep(_ context.Context, se *model.StepExecution) {
	l.events = append(l.events, "before:"+string(se.Status))
}

func (l *stepEvents) AfterStep(_ context.Context, se *model.StepExecution) {
	l.events = append(l.events, "after:"+string(se.Status))
}

func execute(t *testing.T, ctx context.Context, s *tasklet.TaskletStep) (*model.StepExecution, error) {
	t.Helper()
	je := model.NewJobExecution("inst", "job", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, s.StepName())
	return se, s.Execute(ctx, je, se)
}

func TestTaskletStep_Outcomes(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name       string
		body       port.TaskletFunc
		cancel     bool
		wantStatus model.JobStatus
		wantExit   model.ExitStatus
		wantErr    bool
	}{
		{"completed", func(context.Context, *model.StepExecution) (model.ExitStatus, error) { return "", nil }, false, model.BatchStatusCompleted, model.ExitStatusCompleted, false},
		{"custom exit", func(context.Context, *model.StepExecution) (model.ExitStatus, error) { return "NOOP_DONE", nil }, false, model.BatchStatusCompleted, "NOOP_DONE", false},
		{"failed", func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			return model.ExitStatusFailed, boom
		}, false, model.BatchStatusFailed, model.ExitStatusFailed, true},
		{"panic", func(context.Context, *model.StepExecution) (model.ExitStatus, error) { panic("kaboom") }, false, model.BatchStatusFailed, model.ExitStatusFailed, true},
		{"cancelled", func(ctx context.Context, _ *model.StepExecution) (model.ExitStatus, error) { return "", ctx.Err() }, true, model.BatchStatusStopped, model.ExitStatusStopped, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}
			listener := &stepEvents{}
			se, err := execute(t, ctx, tasklet.NewTaskletStep("work", tt.body, tasklet.WithListeners(listener)))

			assert.Equal(t, tt.wantErr, err != nil, "error: %v", err)
			assert.Equal(t, tt.wantStatus, se.Status)
			assert.Equal(t, tt.wantExit, se.ExitStatus)
			assert.Equal(t, []string{"before:STARTED", "after:" + string(tt.wantStatus)}, listener.events)
			assert.NotNil(t, se.EndTime)
		})
	}
}

func TestTaskletStep_Transaction(t *testing.T) {
	t.Run("commit on success", func(t *testing.T) {
		mtx := &batchtest.MockTx{}
		manager := &batchtest.MockTxManager{}
		manager.On("Begin", mock.Anything, mock.Anything).Return(mtx, nil)
		manager.On("Commit", mtx).Return(nil)

		body := port.TaskletFunc(func(ctx context.Context, _ *model.StepExecution) (model.ExitStatus, error) {
			current, ok := tx.FromContext(ctx)
			require.True(t, ok)
			assert.Same(t, mtx, current)
			return "", nil
		})
		se, err := execute(t, context.Background(), tasklet.NewTaskletStep("work", body, tasklet.WithTransactionManager(manager)))
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusCompleted, se.Status)
		manager.AssertExpectations(t)
		manager.AssertNotCalled(t, "Rollback", mock.Anything)
	})

	t.Run("rollback on failure", func(t *testing.T) {
		mtx := &batchtest.MockTx{}
		manager := &batchtest.MockTxManager{}
		manager.On("Begin", mock.Anything, mock.Anything).Return(mtx, nil)
		manager.On("Rollback", mtx).Return(nil)

		body := port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			return model.ExitStatusFailed, errors.New("constraint")
		})
		se, err := execute(t, context.Background(), tasklet.NewTaskletStep("work", body, tasklet.WithTransactionManager(manager)))
		require.Error(t, err)
		assert.Equal(t, model.BatchStatusFailed, se.Status)
		manager.AssertExpectations(t)
		manager.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("begin failure", func(t *testing.T) {
		manager := &batchtest.MockTxManager{}
		manager.On("Begin", mock.Anything, mock.Anything).Return(nil, errors.New("pool exhausted"))

		called := false
		body := port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) {
			called = true
			return "", nil
		})
		se, err := execute(t, context.Background(), tasklet.NewTaskletStep("work", body, tasklet.WithTransactionManager(manager)))
		require.Error(t, err)
		assert.True(t, exception.IsTemporary(err))
		assert.False(t, called)
		assert.Equal(t, model.BatchStatusFailed, se.Status)
	})
}

func TestTaskletStep_ClosesTasklet(t *testing.T) {
	closeErr := errors.New("close failed")
	c := &closingTasklet{
		TaskletFunc: func(context.Context, *model.StepExecution) (model.ExitStatus, error) { return "", nil },
		closeErr:    closeErr,
	}
	se, err := execute(t, context.Background(), tasklet.NewTaskletStep("work", c))
	assert.True(t, c.closed)
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
}

func TestTaskletStep_Validate(t *testing.T) {
	assert.NoError(t, tasklet.NewTaskletStep("work", port.TaskletFunc(func(context.Context, *model.StepExecution) (model.ExitStatus, error) { return "", nil })).Validate())
	err := tasklet.NewTaskletStep("work", nil).Validate()
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}
