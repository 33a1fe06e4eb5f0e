package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

type mockLauncher struct{ mock.Mock }

func (m *mockLauncher) Launch(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	args := m.Called(jobName, params)
	je, _ := args.Get(0).(*model.JobExecution)
	return je, args.Error(1)
}

func (m *mockLauncher) Run(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	args := m.Called(jobName, params)
	je, _ := args.Get(0).(*model.JobExecution)
	return je, args.Error(1)
}

type mockOperator struct{ mock.Mock }

func (m *mockOperator) Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	args := m.Called(jobName, params)
	je, _ := args.Get(0).(*model.JobExecution)
	return je, args.Error(1)
}

func (m *mockOperator) StartNextInstance(ctx context.Context, jobName string) (*model.JobExecution, error) {
	args := m.Called(jobName)
	je, _ := args.Get(0).(*model.JobExecution)
	return je, args.Error(1)
}

func (m *mockOperator) Stop(ctx context.Context, executionID string) error {
	return m.Called(executionID).Error(0)
}

func (m *mockOperator) Restart(ctx context.Context, executionID string) (*model.JobExecution, error) {
	args := m.Called(executionID)
	je, _ := args.Get(0).(*model.JobExecution)
	return je, args.Error(1)
}

func (m *mockOperator) Abandon(ctx context.Context, executionID string) (*model.JobExecution, error) {
	args := m.Called(executionID)
	je, _ := args.Get(0).(*model.JobExecution)
	return je, args.Error(1)
}

// stubExplorer answers GetJobExecution with polls, one per call.
type stubExplorer struct {
	polls []*model.JobExecution
}

func (s *stubExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	if len(s.polls) == 0 {
		return nil, errors.New("no more polls")
	}
	je := s.polls[0]
	s.polls = s.polls[1:]
	return je, nil
}

func (s *stubExplorer) GetJobExecutions(context.Context, string) ([]*model.JobExecution, error) {
	return nil, nil
}
func (s *stubExplorer) GetLastJobExecution(context.Context, string) (*model.JobExecution, error) {
	return nil, nil
}
func (s *stubExplorer) GetJobInstance(context.Context, string) (*model.JobInstance, error) {
	return nil, nil
}
func (s *stubExplorer) FindJobInstances(context.Context, string) ([]*model.JobInstance, error) {
	return nil, nil
}
func (s *stubExplorer) FindRunningJobExecutions(context.Context, string) ([]*model.JobExecution, error) {
	return nil, nil
}
func (s *stubExplorer) GetJobNames(context.Context) ([]string, error) { return nil, nil }

func execution(status model.JobStatus) *model.JobExecution {
	je := model.NewJobExecution("inst-1", "simpleJob", model.NewJobParameters())
	je.Status = status
	return je
}

func TestParseCommandLine(t *testing.T) {
	cl, err := ParseCommandLine([]string{"-async", "simpleJob", "requestDate(date)=2024-01-31", "amount(long)=2000"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "simpleJob", cl.JobName)
	assert.True(t, cl.Async)
	assert.Equal(t, ".env", cl.EnvFile)
	amount, ok := cl.Params.GetInt("amount")
	require.True(t, ok)
	assert.Equal(t, int64(2000), amount)
	_, ok = cl.Params.GetDate("requestDate")
	assert.True(t, ok)

	cl, err = ParseCommandLine([]string{"name=value"}, io.Discard)
	require.NoError(t, err)
	assert.Empty(t, cl.JobName)
	v := cl.Params.Get("name")
	assert.Equal(t, "value", v)

	_, err = ParseCommandLine([]string{"job", "broken"}, io.Discard)
	assert.Error(t, err)
	_, err = ParseCommandLine([]string{"-next", "job", "a=b"}, io.Discard)
	assert.Error(t, err)
	_, err = ParseCommandLine([]string{"-unknown"}, io.Discard)
	assert.Error(t, err)
}

func hookParams(cl CommandLine) (RunHookParams, *mockLauncher, *mockOperator, *stubExplorer) {
	launcher, operator, explorer := &mockLauncher{}, &mockOperator{}, &stubExplorer{}
	return RunHookParams{
		Cfg:         config.NewConfig(),
		Launcher:    launcher,
		Operator:    operator,
		Explorer:    explorer,
		CommandLine: cl,
	}, launcher, operator, explorer
}

func TestRun_Synchronous(t *testing.T) {
	params := model.NewJobParameters()
	p, launcher, _, _ := hookParams(CommandLine{Params: params})

	launcher.On("Run", "simpleJob", params).Return(execution(model.BatchStatusCompleted), nil).Once()
	assert.Equal(t, ExitCompleted, p.run(context.Background(), "simpleJob"))

	launcher.On("Run", "failingJob", params).Return(execution(model.BatchStatusFailed), nil).Once()
	assert.Equal(t, ExitFailed, p.run(context.Background(), "failingJob"))

	launcher.On("Run", "doneJob", params).Return(nil, errors.New("already completed")).Once()
	assert.Equal(t, ExitRejected, p.run(context.Background(), "doneJob"))
	launcher.AssertExpectations(t)
}

func TestRun_NextInstanceIsMonitored(t *testing.T) {
	p, _, operator, explorer := hookParams(CommandLine{Next: true})
	started := execution(model.BatchStatusStarting)
	operator.On("StartNextInstance", "simpleJob").Return(started, nil).Once()
	explorer.polls = []*model.JobExecution{execution(model.BatchStatusStarted), execution(model.BatchStatusCompleted)}

	assert.Equal(t, ExitCompleted, p.run(context.Background(), "simpleJob"))
	assert.Empty(t, explorer.polls)
	operator.AssertExpectations(t)
}

func TestRun_CancelledMonitorRequestsStop(t *testing.T) {
	params := model.NewJobParameters()
	p, launcher, operator, _ := hookParams(CommandLine{Async: true, Params: params})
	started := execution(model.BatchStatusStarting)
	launcher.On("Launch", "simpleJob", params).Return(started, nil).Once()
	operator.On("Stop", started.ID).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ExitFailed, p.run(ctx, "simpleJob"))
	operator.AssertExpectations(t)
}
