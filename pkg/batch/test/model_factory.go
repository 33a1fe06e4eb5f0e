package test

import (
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// NewTestJobParameters builds parameters from values. nil yields empty parameters.
func NewTestJobParameters(values map[string]interface{}) model.JobParameters {
	return model.JobParametersOf(values)
}

// NewTestJobInstance creates an unsaved instance of jobName.
func NewTestJobInstance(jobName string, params model.JobParameters) *model.JobInstance {
	return model.NewJobInstance(jobName, params)
}

// NewTestJobExecution creates an unsaved execution of ji carrying a copy of its parameters.
func NewTestJobExecution(ji *model.JobInstance) *model.JobExecution {
	return model.NewJobExecution(ji.ID, ji.JobName, ji.Parameters.Copy())
}

// NewTestStepExecution creates an unsaved step execution attached to je.
func NewTestStepExecution(je *model.JobExecution, stepName string) *model.StepExecution {
	se := model.NewStepExecution(model.NewID(), je, stepName)
	je.AddStepExecution(se)
	return se
}
