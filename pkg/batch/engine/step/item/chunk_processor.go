package item

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	tx "github.com/tigerroll/surfin-flow/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/retry"
	"github.com/tigerroll/surfin-flow/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// ChunkResult is the outcome of processing one chunk.
type ChunkResult[O any] struct {
	// Outputs are the transformed items handed to the writer, in input order.
	Outputs []O
	// Filtered counts items the processor mapped to nil.
	Filtered int
	// Isolated counts items excluded because their processing failed.
	Isolated int
	// Errors aggregates the isolated item errors.
	Errors *multierror.Error
	// Attempts is the number of write attempts; more than 1 means the chunk was retried.
	Attempts int
}

// Err returns the aggregated item errors, or nil.
func (r ChunkResult[O]) Err() error {
	return r.Errors.ErrorOrNil()
}

// ChunkProcessor transforms a chunk item by item and writes the survivors in one
// transaction.
type ChunkProcessor[I, O any] struct {
	stepName       string
	processor      port.ItemProcessor[I, O]
	writer         port.ItemWriter[O]
	txManager      tx.TransactionManager
	txOptions      *sql.TxOptions
	isolation      skip.Policy
	writeRetry     retry.Policy
	processLsnrs   []port.ItemProcessListener
	retryLsnrs     []port.RetryListener
	metricRecorder metrics.MetricRecorder
}

// NewChunkProcessor creates a ChunkProcessor. A nil processor passes items through,
// which requires I to be assignable to O.
func NewChunkProcessor[I, O any](stepName string, processor port.ItemProcessor[I, O], writer port.ItemWriter[O], txManager tx.TransactionManager) *ChunkProcessor[I, O] {
	if txManager == nil {
		txManager = tx.NewNoopTransactionManager()
	}
	return &ChunkProcessor[I, O]{
		stepName:       stepName,
		processor:      processor,
		writer:         writer,
		txManager:      txManager,
		isolation:      skip.NewIsolatingPolicy(0),
		writeRetry:     retry.NoRetry(),
		metricRecorder: metrics.NewNoOpMetricRecorder(),
	}
}

// ProcessChunk transforms items and writes the survivors inside one transaction.
//
// An item whose processing fails is excluded and reported in ChunkResult.Errors when the
// isolation policy allows it; otherwise the whole chunk is aborted before anything is
// written. A failed write rolls the transaction back and, when the retry policy allows
// it, the buffered outputs are written again in a fresh transaction.
func (p *ChunkProcessor[I, O]) ProcessChunk(ctx context.Context, items []I) (ChunkResult[O], error) {
	result, err := p.Process(ctx, items)
	if err != nil {
		return result, err
	}
	attempts, err := p.Write(ctx, result.Outputs)
	result.Attempts = attempts
	return result, err
}

// Process applies the processor to every item. The isolation limit counts items already
// isolated by the StepExecution carried in ctx.
func (p *ChunkProcessor[I, O]) Process(ctx context.Context, items []I) (ChunkResult[O], error) {
	result := ChunkResult[O]{Outputs: make([]O, 0, len(items))}
	isolatedBefore := 0
	if se := port.StepExecutionFromContext(ctx); se != nil {
		isolatedBefore = se.ProcessErrorCount
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		out, err := p.transform(ctx, item)
		if err != nil {
			if !p.isolation.ShouldSkip(err, isolatedBefore+result.Isolated) {
				return result, exception.NewBatchError("processor",
					fmt.Sprintf("item %d of chunk in step '%s' failed", i, p.stepName), err, false, false)
			}
			logger.Warnf("ChunkStep '%s': item %d excluded from chunk: %v", p.stepName, i, err)
			result.Isolated++
			result.Errors = multierror.Append(result.Errors, fmt.Errorf("item %d: %w", i, err))
			p.metricRecorder.RecordItemSkip(ctx, p.stepName, "process")
			for _, l := range p.processLsnrs {
				l.OnProcessError(ctx, item, err)
			}
			continue
		}
		if port.IsNil(out) {
			result.Filtered++
			continue
		}
		result.Outputs = append(result.Outputs, out)
	}
	if result.Filtered > 0 {
		p.metricRecorder.RecordItemFilter(ctx, p.stepName, result.Filtered)
	}
	return result, nil
}

func (p *ChunkProcessor[I, O]) transform(ctx context.Context, item I) (out O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	if port.IsNil(p.processor) {
		converted, ok := any(item).(O)
		if !ok {
			return out, exception.NewConfigurationError("processor", "step '%s' has no processor and %T is not the writer's item type", p.stepName, item)
		}
		return converted, nil
	}
	return p.processor.Process(ctx, item)
}

// Write writes outputs in one transaction, retrying the whole chunk under the write
// retry policy. It returns the number of attempts made.
func (p *ChunkProcessor[I, O]) Write(ctx context.Context, outputs []O) (int, error) {
	attempts := 0
	_, err := retry.Do(ctx, p.writeRetry, func(attempt int) (struct{}, error) {
		attempts = attempt
		return struct{}{}, p.writeOnce(ctx, outputs)
	}, func(attempt int, err error, wait time.Duration) {
		logger.Warnf("ChunkStep '%s': chunk write failed (attempt %d), retrying in %s: %v", p.stepName, attempt, wait, err)
		p.metricRecorder.RecordItemRetry(ctx, p.stepName, "write")
		if se := port.StepExecutionFromContext(ctx); se != nil {
			se.RetryCount++
		}
		for _, l := range p.retryLsnrs {
			l.OnRetry(ctx, attempt, err)
		}
	})
	return attempts, err
}

func (p *ChunkProcessor[I, O]) writeOnce(ctx context.Context, outputs []O) error {
	var opts []*sql.TxOptions
	if p.txOptions != nil {
		opts = append(opts, p.txOptions)
	}
	t, err := p.txManager.Begin(ctx, opts...)
	if err != nil {
		return exception.NewBatchError("writer", "failed to begin chunk transaction", err, false, true)
	}
	txCtx := tx.WithTx(ctx, t)

	if len(outputs) > 0 {
		if err := p.writer.Write(txCtx, outputs); err != nil {
			p.rollback(ctx, t)
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		p.rollback(ctx, t)
		return err
	}
	if err := p.txManager.Commit(t); err != nil {
		p.rollback(ctx, t)
		return exception.NewBatchError("writer", "failed to commit chunk transaction", err, false, false)
	}
	p.metricRecorder.RecordChunkCommit(ctx, p.stepName, len(outputs))
	return nil
}

func (p *ChunkProcessor[I, O]) rollback(ctx context.Context, t tx.Tx) {
	if err := p.txManager.Rollback(t); err != nil {
		logger.Errorf("ChunkStep '%s': rollback failed: %v", p.stepName, err)
	}
	p.metricRecorder.RecordChunkRollback(ctx, p.stepName)
	if se := port.StepExecutionFromContext(ctx); se != nil {
		se.RollbackCount++
	}
}
