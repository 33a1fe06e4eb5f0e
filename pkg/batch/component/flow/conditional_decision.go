// Package flow provides deciders: flow nodes that route on the state of an execution
// instead of doing work.
package flow

import (
	"context"
	"fmt"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// ConditionalDecision compares a value of the job execution context, or of the job
// parameters when the context lacks it, against an expected value.
// It returns COMPLETED on a match and DefaultStatus otherwise.
type ConditionalDecision struct {
	id            string
	conditionKey  string
	expectedValue string
	defaultStatus model.ExitStatus
	staticStatus  model.ExitStatus
}

// NewConditionalDecision creates a new instance of ConditionalDecision from its
// properties: conditionKey, expectedValue, defaultStatus (FAILED when empty) and
// exit.status, a fixed result used when no conditionKey is set.
func NewConditionalDecision(id string, properties map[string]string) *ConditionalDecision {
	d := &ConditionalDecision{
		id:            id,
		conditionKey:  properties["conditionKey"],
		expectedValue: properties["expectedValue"],
		defaultStatus: model.ExitStatusFailed,
		staticStatus:  model.ExitStatus(properties["exit.status"]),
	}
	if s := properties["defaultStatus"]; s != "" {
		d.defaultStatus = model.ExitStatus(s)
	}
	return d
}

// DeciderName returns the name of the decider.
func (d *ConditionalDecision) DeciderName() string {
	return d.id
}

// Decide looks the condition key up and compares its string form.
func (d *ConditionalDecision) Decide(ctx context.Context, jobExecution *model.JobExecution, lastStepExecution *model.StepExecution) (model.ExitStatus, error) {
	if d.conditionKey == "" {
		if d.staticStatus != "" {
			return d.staticStatus, nil
		}
		logger.Warnf("ConditionalDecision '%s': conditionKey is not set. Returning default status '%s'.", d.id, d.defaultStatus)
		return d.defaultStatus, nil
	}

	actual, ok := jobExecution.ExecutionContext.Get(d.conditionKey)
	if !ok {
		actual = jobExecution.Parameters.Get(d.conditionKey)
		ok = actual != nil
	}
	if !ok {
		logger.Warnf("ConditionalDecision '%s': Key '%s' not found. Returning default status '%s'.", d.id, d.conditionKey, d.defaultStatus)
		return d.defaultStatus, nil
	}

	if s := fmt.Sprintf("%v", actual); s == d.expectedValue {
		logger.Infof("ConditionalDecision '%s': Condition matched ('%s' == '%s').", d.id, s, d.expectedValue)
		return model.ExitStatusCompleted, nil
	}
	logger.Infof("ConditionalDecision '%s': Condition did not match (%v != '%s'). Returning '%s'.", d.id, actual, d.expectedValue, d.defaultStatus)
	return d.defaultStatus, nil
}

// Verify that ConditionalDecision implements the port.Decider interface.
var _ port.Decider = (*ConditionalDecision)(nil)
