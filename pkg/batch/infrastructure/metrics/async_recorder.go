package metrics

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-flow/pkg/batch/core/metrics"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// DefaultAsyncBufferSize is the queue length used when none is configured.
const DefaultAsyncBufferSize = 100

// MetricEvent is one recorder call waiting in the queue.
type MetricEvent struct {
	Type          string
	Ctx           context.Context
	JobExecution  *model.JobExecution
	StepExecution *model.StepExecution
	StepName      string
	Count         int
	Reason        string
	Duration      time.Duration
	Tags          map[string]string
}

// Metric event types.
const (
	MetricEventTypeJobStart      = "job_start"
	MetricEventTypeJobEnd        = "job_end"
	MetricEventTypeStepStart     = "step_start"
	MetricEventTypeStepEnd       = "step_end"
	MetricEventTypeItemRead      = "item_read"
	MetricEventTypeItemWrite     = "item_write"
	MetricEventTypeItemFilter    = "item_filter"
	MetricEventTypeItemSkip      = "item_skip"
	MetricEventTypeItemRetry     = "item_retry"
	MetricEventTypeChunkCommit   = "chunk_commit"
	MetricEventTypeChunkRollback = "chunk_rollback"
	MetricEventTypeDuration      = "duration"
)

// AsyncMetricRecorder queues recorder calls and replays them on a worker goroutine, so
// a slow backend never delays a chunk. Events are dropped with a warning when the queue
// is full.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
}

// NewAsyncMetricRecorder starts the worker. bufferSize <= 0 uses DefaultAsyncBufferSize.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	ctx := event.Ctx
	switch event.Type {
	case MetricEventTypeJobStart:
		r.syncRecorder.RecordJobStart(ctx, event.JobExecution)
	case MetricEventTypeJobEnd:
		r.syncRecorder.RecordJobEnd(ctx, event.JobExecution)
	case MetricEventTypeStepStart:
		r.syncRecorder.RecordStepStart(ctx, event.StepExecution)
	case MetricEventTypeStepEnd:
		r.syncRecorder.RecordStepEnd(ctx, event.StepExecution)
	case MetricEventTypeItemRead:
		r.syncRecorder.RecordItemRead(ctx, event.StepName, event.Count)
	case MetricEventTypeItemWrite:
		r.syncRecorder.RecordItemWrite(ctx, event.StepName, event.Count)
	case MetricEventTypeItemFilter:
		r.syncRecorder.RecordItemFilter(ctx, event.StepName, event.Count)
	case MetricEventTypeItemSkip:
		r.syncRecorder.RecordItemSkip(ctx, event.StepName, event.Reason)
	case MetricEventTypeItemRetry:
		r.syncRecorder.RecordItemRetry(ctx, event.StepName, event.Reason)
	case MetricEventTypeChunkCommit:
		r.syncRecorder.RecordChunkCommit(ctx, event.StepName, event.Count)
	case MetricEventTypeChunkRollback:
		r.syncRecorder.RecordChunkRollback(ctx, event.StepName)
	case MetricEventTypeDuration:
		r.syncRecorder.RecordDuration(ctx, event.StepName, event.Duration, event.Tags)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after draining the queue.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *AsyncMetricRecorder) sendEvent(ctx context.Context, event MetricEvent) {
	// the caller's cancellation must not reach the replay, its values must
	event.Ctx = context.WithoutCancel(ctx)
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s). Event discarded.", event.Type)
	}
}

// The executions are copied: the worker reads them after the engine has moved on.
func jobSnapshot(e *model.JobExecution) *model.JobExecution {
	c := *e
	c.StepExecutions = nil
	c.CancelFunc = nil
	return &c
}

func stepSnapshot(e *model.StepExecution) *model.StepExecution {
	c := *e
	if e.JobExecution != nil {
		c.JobExecution = &model.JobExecution{ID: e.JobExecution.ID, JobName: e.JobExecution.JobName}
	}
	return &c
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeJobStart, JobExecution: jobSnapshot(execution)})
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeJobEnd, JobExecution: jobSnapshot(execution)})
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeStepStart, StepExecution: stepSnapshot(execution)})
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeStepEnd, StepExecution: stepSnapshot(execution)})
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, stepName string, count int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemRead, StepName: stepName, Count: count})
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemWrite, StepName: stepName, Count: count})
}

func (r *AsyncMetricRecorder) RecordItemFilter(ctx context.Context, stepName string, count int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemFilter, StepName: stepName, Count: count})
}

func (r *AsyncMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemSkip, StepName: stepName, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeItemRetry, StepName: stepName, Reason: reason})
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeChunkCommit, StepName: stepName, Count: count})
}

func (r *AsyncMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeChunkRollback, StepName: stepName})
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeDuration, StepName: name, Duration: duration, Tags: tags})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
