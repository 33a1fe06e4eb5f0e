// Package logging provides listeners that write job, step and chunk progress to the
// application log.
package logging

import (
	"context"
	"strings"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// --- Job Execution Listener ---

type LoggingJobListener struct{}

func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.Infof("JobExecutionListener: BeforeJob - JobName: %s, ID: %s, Params: %s, RestartCount: %d",
		jobExecution.JobName, jobExecution.ID, jobExecution.Parameters.String(), jobExecution.RestartCount)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	if jobExecution.Status == model.BatchStatusCompleted {
		logger.Infof("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s",
			jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus)
		return
	}
	logger.Warnf("JobExecutionListener: AfterJob - JobName: %s, Status: %s, ExitStatus: %s, Failures: %v",
		jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus, jobExecution.Failures)
}

var _ port.JobExecutionListener = (*LoggingJobListener)(nil)

// --- Step Execution Listener ---

// LoggingStepListener logs step boundaries. It also observes chunks, excluded items and
// retries of chunk steps; chunk boundaries are logged at debug level unless verbose.
type LoggingStepListener struct {
	verbose bool
}

// NewLoggingStepListener creates a LoggingStepListener. The property "level" set to
// "info" logs chunk boundaries at info level.
func NewLoggingStepListener(properties map[string]string) *LoggingStepListener {
	return &LoggingStepListener{verbose: strings.EqualFold(properties["level"], "info")}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: BeforeStep - StepName: %s, ID: %s", stepExecution.StepName, stepExecution.ID)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Infof("StepExecutionListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s, Read: %d, Write: %d, Filter: %d, Skip: %d, Commit: %d, Rollback: %d",
		stepExecution.StepName, stepExecution.Status, stepExecution.ExitStatus,
		stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount,
		stepExecution.ProcessErrorCount, stepExecution.CommitCount, stepExecution.RollbackCount)
}

func (l *LoggingStepListener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	l.chunkf("ChunkListener: BeforeChunk - StepName: %s, Commit: %d", stepExecution.StepName, stepExecution.CommitCount)
}

func (l *LoggingStepListener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	l.chunkf("ChunkListener: AfterChunk - StepName: %s, Read: %d, Write: %d", stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount)
}

func (l *LoggingStepListener) OnProcessError(ctx context.Context, item interface{}, err error) {
	logger.Warnf("ItemProcessListener: OnProcessError - Item: %+v, Error: %v", item, err)
}

func (l *LoggingStepListener) OnRetry(ctx context.Context, attempt int, err error) {
	logger.Warnf("RetryListener: OnRetry - Attempt: %d, Error: %v", attempt, err)
}

func (l *LoggingStepListener) chunkf(format string, args ...interface{}) {
	if l.verbose {
		logger.Infof(format, args...)
		return
	}
	logger.Debugf(format, args...)
}

var (
	_ port.StepExecutionListener = (*LoggingStepListener)(nil)
	_ port.ChunkListener         = (*LoggingStepListener)(nil)
	_ port.ItemProcessListener   = (*LoggingStepListener)(nil)
	_ port.RetryListener         = (*LoggingStepListener)(nil)
)
