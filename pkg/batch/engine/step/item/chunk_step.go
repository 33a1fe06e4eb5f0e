package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// Config holds the settings of a ChunkStep. Zero values select the defaults: no retry,
// item-level isolation without limit, no transaction backend.
type Config struct {
	ChunkSize int
	// FailFast makes the first item error abort the chunk.
	FailFast bool
	// SkipLimit caps the items isolated per step execution; 0 means unlimited.
	SkipLimit int
	// FatalExceptions lists error type names that are never isolated.
	FatalExceptions []string
	// IsolationPolicy replaces the policy derived from FailFast, SkipLimit and
	// FatalExceptions.
	IsolationPolicy skip.Policy
	// ReadRetry applies to every ItemReader.Read call.
	ReadRetry retry.Policy
	// WriteRetry applies to the whole-chunk write transaction.
	WriteRetry retry.Policy
	// IsolationLevel is the chunk transaction isolation, e.g. "READ_COMMITTED".
	IsolationLevel string

	TxManager tx.TransactionManager
	// JobRepository persists the checkpoint after every commit. Without it the
	// checkpoint is only kept in memory until the runner stores the final state.
	JobRepository repository.JobRepository

	StepListeners    []port.StepExecutionListener
	ChunkListeners   []port.ChunkListener
	ProcessListeners []port.ItemProcessListener
	RetryListeners   []port.RetryListener
	MetricRecorder   metrics.MetricRecorder
	Tracer           metrics.Tracer
}

// ChunkStep reads items, groups them into chunks of ChunkSize, processes and writes each
// chunk in its own transaction and checkpoints the reader position after every commit.
type ChunkStep[I, O any] struct {
	lifecycle      step.Lifecycle
	reader         port.ItemReader[I]
	writer         port.ItemWriter[O]
	chunk          *ChunkProcessor[I, O]
	chunkSize      int
	readRetry      retry.Policy
	jobRepository  repository.JobRepository
	chunkListeners []port.ChunkListener
	retryListeners []port.RetryListener
}

// NewChunkStep creates a ChunkStep. processor may be nil when I and O are the same type.
func NewChunkStep[I, O any](name string, reader port.ItemReader[I], processor port.ItemProcessor[I, O], writer port.ItemWriter[O], cfg Config) *ChunkStep[I, O] {
	lc := step.NewLifecycle(name)
	lc.Listeners = cfg.StepListeners
	if cfg.MetricRecorder != nil {
		lc.MetricRecorder = cfg.MetricRecorder
	}
	if cfg.Tracer != nil {
		lc.Tracer = cfg.Tracer
	}

	chunk := NewChunkProcessor(name, processor, writer, cfg.TxManager)
	chunk.metricRecorder = lc.MetricRecorder
	chunk.processLsnrs = cfg.ProcessListeners
	chunk.retryLsnrs = cfg.RetryListeners
	switch {
	case cfg.IsolationPolicy != nil:
		chunk.isolation = cfg.IsolationPolicy
	case cfg.FailFast:
		chunk.isolation = skip.NewFailFastPolicy()
	default:
		chunk.isolation = skip.NewIsolatingPolicy(cfg.SkipLimit, cfg.FatalExceptions...)
	}
	if cfg.WriteRetry.MaxAttempts > 0 {
		chunk.writeRetry = cfg.WriteRetry
	}
	if level := parseIsolationLevel(cfg.IsolationLevel); level != sql.LevelDefault {
		chunk.txOptions = &sql.TxOptions{Isolation: level}
	}

	readRetry := retry.NoRetry()
	if cfg.ReadRetry.MaxAttempts > 0 {
		readRetry = cfg.ReadRetry
	}

	return &ChunkStep[I, O]{
		lifecycle:      lc,
		reader:         reader,
		writer:         writer,
		chunk:          chunk,
		chunkSize:      cfg.ChunkSize,
		readRetry:      readRetry,
		jobRepository:  cfg.JobRepository,
		chunkListeners: cfg.ChunkListeners,
		retryListeners: cfg.RetryListeners,
	}
}

// parseIsolationLevel converts a configuration string to sql.IsolationLevel.
func parseIsolationLevel(level string) sql.IsolationLevel {
	switch strings.ToUpper(level) {
	case "READ_UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ_COMMITTED":
		return sql.LevelReadCommitted
	case "WRITE_COMMITTED":
		return sql.LevelWriteCommitted
	case "REPEATABLE_READ":
		return sql.LevelRepeatableRead
	case "SERIALIZABLE":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.lifecycle.Name
}

// ChunkSize returns the number of items per chunk.
func (s *ChunkStep[I, O]) ChunkSize() int {
	return s.chunkSize
}

// Validate implements port.Validator.
func (s *ChunkStep[I, O]) Validate() error {
	if s.chunkSize <= 0 {
		return exception.NewConfigurationError("chunk_step", "step '%s': chunk size must be a positive integer, got %d", s.StepName(), s.chunkSize)
	}
	if port.IsNil(s.reader) {
		return exception.NewConfigurationError("chunk_step", "step '%s' has no reader", s.StepName())
	}
	if port.IsNil(s.writer) {
		return exception.NewConfigurationError("chunk_step", "step '%s' has no writer", s.StepName())
	}
	return nil
}

// Execute runs the read-process-write loop until the reader is exhausted.
// Cancelling ctx rolls back the chunk in flight and leaves the step STOPPED.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	logger.Infof("ChunkStep '%s' executing (chunk size %d).", s.StepName(), s.chunkSize)
	if err := s.Validate(); err != nil {
		stepExecution.MarkAsFailed(err)
		return err
	}
	err := s.lifecycle.Run(ctx, stepExecution, func(ctx context.Context) (model.ExitStatus, error) {
		return model.ExitStatusCompleted, s.run(port.WithStepExecution(ctx, stepExecution), stepExecution)
	})
	logger.Infof("ChunkStep '%s' finished. ExitStatus: %s (read %d, written %d, filtered %d, isolated %d, commits %d, rollbacks %d)",
		s.StepName(), stepExecution.ExitStatus, stepExecution.ReadCount, stepExecution.WriteCount,
		stepExecution.FilterCount, stepExecution.ProcessErrorCount, stepExecution.CommitCount, stepExecution.RollbackCount)
	return err
}

func (s *ChunkStep[I, O]) run(ctx context.Context, stepExecution *model.StepExecution) (err error) {
	checkpoint := stepExecution.ExecutionContext
	if checkpoint == nil {
		checkpoint = model.NewExecutionContext()
		stepExecution.ExecutionContext = checkpoint
	}
	if err := s.reader.Open(ctx, checkpoint.Copy()); err != nil {
		return exception.NewBatchError("reader", fmt.Sprintf("failed to open reader of step '%s'", s.StepName()), err, false, false)
	}
	defer func() {
		if closeErr := s.reader.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warnf("ChunkStep '%s': Failed to close ItemReader: %v", s.StepName(), closeErr)
			err = errors.Join(err, closeErr)
		}
	}()
	if err := s.writer.Open(ctx, checkpoint.Copy()); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("failed to open writer of step '%s'", s.StepName()), err, false, false)
	}
	defer func() {
		if closeErr := s.writer.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warnf("ChunkStep '%s': Failed to close ItemWriter: %v", s.StepName(), closeErr)
			err = errors.Join(err, closeErr)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := s.runChunk(ctx, stepExecution)
		if err != nil || done {
			return err
		}
	}
}

// runChunk reads, processes, writes and checkpoints one chunk. done is true once the
// reader is exhausted.
func (s *ChunkStep[I, O]) runChunk(ctx context.Context, stepExecution *model.StepExecution) (done bool, err error) {
	for _, l := range s.chunkListeners {
		l.BeforeChunk(ctx, stepExecution)
	}
	defer func() {
		for _, l := range s.chunkListeners {
			l.AfterChunk(ctx, stepExecution)
		}
	}()

	items, eof, err := s.readChunk(ctx, stepExecution)
	if err != nil {
		return true, err
	}
	if len(items) == 0 {
		return true, nil
	}

	result, err := s.chunk.ProcessChunk(ctx, items)
	stepExecution.FilterCount += result.Filtered
	stepExecution.ProcessErrorCount += result.Isolated
	if result.Errors != nil {
		for _, itemErr := range result.Errors.Errors {
			stepExecution.AddFailureException(itemErr)
		}
	}
	if err != nil {
		return true, err
	}

	stepExecution.WriteCount += len(result.Outputs)
	stepExecution.CommitCount++
	s.lifecycle.MetricRecorder.RecordItemWrite(ctx, s.StepName(), len(result.Outputs))

	if err := s.checkpoint(ctx, stepExecution); err != nil {
		return true, err
	}
	return eof, nil
}

// readChunk reads up to chunkSize items. eof reports the end of the stream.
func (s *ChunkStep[I, O]) readChunk(ctx context.Context, stepExecution *model.StepExecution) (items []I, eof bool, err error) {
	items = make([]I, 0, s.chunkSize)
	for len(items) < s.chunkSize {
		item, err := retry.Do(ctx, s.readRetry, func(int) (I, error) {
			return s.reader.Read(ctx)
		}, func(attempt int, err error, wait time.Duration) {
			logger.Warnf("ChunkStep '%s': read failed (attempt %d), retrying in %s: %v", s.StepName(), attempt, wait, err)
			stepExecution.RetryCount++
			s.lifecycle.MetricRecorder.RecordItemRetry(ctx, s.StepName(), "read")
			for _, l := range s.retryListeners {
				l.OnRetry(ctx, attempt, err)
			}
		})
		if errors.Is(err, port.ErrNoMoreItems) {
			eof = true
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return items, true, err
			}
			return items, true, exception.NewBatchError("reader", fmt.Sprintf("read failed in step '%s'", s.StepName()), err, false, false)
		}
		items = append(items, item)
		stepExecution.ReadCount++
	}
	if len(items) > 0 {
		s.lifecycle.MetricRecorder.RecordItemRead(ctx, s.StepName(), len(items))
	}
	return items, eof, nil
}

// checkpoint folds the reader position into the step execution context and persists it.
func (s *ChunkStep[I, O]) checkpoint(ctx context.Context, stepExecution *model.StepExecution) error {
	readerEC, err := s.reader.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError("reader", "failed to capture reader position", err, false, false)
	}
	stepExecution.ExecutionContext.Merge(readerEC)
	stepExecution.LastUpdated = time.Now()
	if s.jobRepository == nil {
		return nil
	}
	if err := s.jobRepository.UpdateStepExecution(ctx, stepExecution); err != nil {
		return exception.NewBatchError("chunk_step", "failed to persist checkpoint", err, false, false)
	}
	logger.Debugf("ChunkStep '%s': checkpoint saved (read %d, written %d).", s.StepName(), stepExecution.ReadCount, stepExecution.WriteCount)
	return nil
}

// Verify that ChunkStep implements the port.Step interface.
var (
	_ port.Step      = (*ChunkStep[any, any])(nil)
	_ port.Validator = (*ChunkStep[any, any])(nil)
)
