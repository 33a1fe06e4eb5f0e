package generic

import (
	"context"
	"math/rand"
	"sync"
	"time"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// currentRunKey keeps the number of runs in the step execution context, so that a
// restarted step knows how often it already failed.
const currentRunKey = "random_fail_tasklet.current_run"

// RandomFailTasklet is a [port.Tasklet] that fails with a configured probability, or
// for its first FailCount runs. It is primarily used to exercise restart.
type RandomFailTasklet struct {
	id        string
	failRate  float64
	failCount int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomFailTasklet creates a new instance of [RandomFailTasklet]. rnd may be nil.
func NewRandomFailTasklet(id string, failRate float64, failCount int, rnd *rand.Rand) *RandomFailTasklet {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomFailTasklet{id: id, failRate: failRate, failCount: failCount, rnd: rnd}
}

// Execute fails on purpose according to the configuration.
func (t *RandomFailTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	run, _ := stepExecution.ExecutionContext.GetInt(currentRunKey)
	run++
	stepExecution.ExecutionContext.Put(currentRunKey, run)

	var shouldFail bool
	if t.failCount > 0 {
		shouldFail = run <= t.failCount
	} else {
		t.mu.Lock()
		shouldFail = t.rnd.Float64() < t.failRate
		t.mu.Unlock()
	}

	if shouldFail {
		logger.Errorf("RandomFailTasklet '%s' (Run %d): Intentionally failing (Rate: %.2f, Count: %d).", t.id, run, t.failRate, t.failCount)
		return model.ExitStatusFailed, exception.NewBatchErrorf(t.id, "random failure occurred on run %d", run)
	}
	logger.Infof("RandomFailTasklet '%s' (Run %d): Completed successfully.", t.id, run)
	return model.ExitStatusCompleted, nil
}

// Verify that [RandomFailTasklet] satisfies the [port.Tasklet] interface.
var _ port.Tasklet = (*RandomFailTasklet)(nil)
