package flow

import (
	"context"
	"math/rand"
	"sync"
	"time"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// Exit statuses returned by OddDecider.
const (
	ExitStatusOdd  model.ExitStatus = "ODD"
	ExitStatusEven model.ExitStatus = "EVEN"
)

// OddDecider draws a number in [1, 50] and routes on its parity.
type OddDecider struct {
	id  string
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewOddDecider creates an OddDecider. A nil rnd is seeded from the clock; tests pass a
// fixed source to pin the branch.
func NewOddDecider(id string, rnd *rand.Rand) *OddDecider {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &OddDecider{id: id, rnd: rnd}
}

// DeciderName returns the name of the decider.
func (d *OddDecider) DeciderName() string {
	return d.id
}

// Decide returns ODD or EVEN.
func (d *OddDecider) Decide(ctx context.Context, jobExecution *model.JobExecution, lastStepExecution *model.StepExecution) (model.ExitStatus, error) {
	d.mu.Lock()
	n := d.rnd.Intn(50) + 1
	d.mu.Unlock()

	logger.Infof("Random number: %d", n)
	if n%2 == 0 {
		return ExitStatusEven, nil
	}
	return ExitStatusOdd, nil
}

var _ port.Decider = (*OddDecider)(nil)
