// Package incrementer provides JobParametersIncrementer implementations used by
// JobOperator.StartNextInstance to derive fresh instance identities.
package incrementer

import (
	"fmt"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// DefaultRunIDKey is the parameter name used when none is configured.
const DefaultRunIDKey = "run.id"

// RunIDIncrementer sets the run id parameter to 1, or increments it.
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer creates a new instance of RunIDIncrementer.
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{name: name}
}

// GetNext returns a copy of params with the run id incremented.
func (i *RunIDIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	next := params.Copy()
	current, ok := params.GetInt(i.name)
	if !ok {
		next.Put(i.name, int64(1))
		logger.Debugf("JobParametersIncrementer '%s': not found, setting to 1.", i.name)
		return next
	}
	next.Put(i.name, current+1)
	logger.Debugf("JobParametersIncrementer '%s': Incrementing from %d to %d.", i.name, current, current+1)
	return next
}

// String returns the string representation of RunIDIncrementer.
func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*RunIDIncrementer)(nil)
