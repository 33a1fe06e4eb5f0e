package sql

import (
	"fmt"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/serialization"
)

func fromDomainJobInstance(ji *model.JobInstance) (*JobInstanceEntity, error) {
	params, err := serialization.MarshalJobParameters(ji.Parameters.Params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters of JobInstance %s: %w", ji.ID, err)
	}
	return &JobInstanceEntity{
		ID:             ji.ID,
		JobName:        ji.JobName,
		Parameters:     string(params),
		ParametersHash: ji.ParametersHash,
		CreateTime:     ji.CreateTime,
		Version:        ji.Version,
	}, nil
}

func toDomainJobInstance(entity *JobInstanceEntity) (*model.JobInstance, error) {
	params, err := serialization.UnmarshalJobParameters([]byte(entity.Parameters))
	if err != nil {
		return nil, fmt.Errorf("decode parameters of JobInstance %s: %w", entity.ID, err)
	}
	return &model.JobInstance{
		ID:             entity.ID,
		JobName:        entity.JobName,
		Parameters:     model.JobParametersOf(params),
		ParametersHash: entity.ParametersHash,
		CreateTime:     entity.CreateTime,
		Version:        entity.Version,
	}, nil
}

func fromDomainJobExecution(je *model.JobExecution) (*JobExecutionEntity, error) {
	params, err := serialization.MarshalJobParameters(je.Parameters.Params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters of JobExecution %s: %w", je.ID, err)
	}
	failures, err := serialization.MarshalFailures(je.Failures)
	if err != nil {
		return nil, fmt.Errorf("encode failures of JobExecution %s: %w", je.ID, err)
	}
	ec, err := serialization.MarshalExecutionContext(je.ExecutionContext)
	if err != nil {
		return nil, fmt.Errorf("encode execution context of JobExecution %s: %w", je.ID, err)
	}
	return &JobExecutionEntity{
		ID:               je.ID,
		JobInstanceID:    je.JobInstanceID,
		JobName:          je.JobName,
		Parameters:       string(params),
		StartTime:        je.StartTime,
		EndTime:          je.EndTime,
		Status:           string(je.Status),
		ExitStatus:       string(je.ExitStatus),
		Failures:         string(failures),
		Version:          je.Version,
		CreateTime:       je.CreateTime,
		LastUpdated:      je.LastUpdated,
		ExecutionContext: string(ec),
		CurrentStepName:  je.CurrentStepName,
		RestartCount:     je.RestartCount,
	}, nil
}

// toDomainJobExecution maps the row only; step executions are attached by the repository.
func toDomainJobExecution(entity *JobExecutionEntity) (*model.JobExecution, error) {
	params, err := serialization.UnmarshalJobParameters([]byte(entity.Parameters))
	if err != nil {
		return nil, fmt.Errorf("decode parameters of JobExecution %s: %w", entity.ID, err)
	}
	failures, err := serialization.UnmarshalFailures([]byte(entity.Failures))
	if err != nil {
		return nil, fmt.Errorf("decode failures of JobExecution %s: %w", entity.ID, err)
	}
	ec, err := serialization.UnmarshalExecutionContext([]byte(entity.ExecutionContext))
	if err != nil {
		return nil, fmt.Errorf("decode execution context of JobExecution %s: %w", entity.ID, err)
	}
	return &model.JobExecution{
		ID:               entity.ID,
		JobInstanceID:    entity.JobInstanceID,
		JobName:          entity.JobName,
		Parameters:       model.JobParametersOf(params),
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           model.JobStatus(entity.Status),
		ExitStatus:       model.ExitStatus(entity.ExitStatus),
		Failures:         failures,
		Version:          entity.Version,
		CreateTime:       entity.CreateTime,
		LastUpdated:      entity.LastUpdated,
		ExecutionContext: ec,
		CurrentStepName:  entity.CurrentStepName,
		RestartCount:     entity.RestartCount,
		StepExecutions:   make([]*model.StepExecution, 0),
	}, nil
}

func fromDomainStepExecution(se *model.StepExecution) (*StepExecutionEntity, error) {
	failures, err := serialization.MarshalFailures(se.Failures)
	if err != nil {
		return nil, fmt.Errorf("encode failures of StepExecution %s: %w", se.ID, err)
	}
	ec, err := serialization.MarshalExecutionContext(se.ExecutionContext)
	if err != nil {
		return nil, fmt.Errorf("encode execution context of StepExecution %s: %w", se.ID, err)
	}
	return &StepExecutionEntity{
		ID:                se.ID,
		StepName:          se.StepName,
		JobExecutionID:    se.JobExecutionID,
		StartTime:         se.StartTime,
		EndTime:           se.EndTime,
		Status:            string(se.Status),
		ExitStatus:        string(se.ExitStatus),
		Failures:          string(failures),
		ReadCount:         se.ReadCount,
		WriteCount:        se.WriteCount,
		CommitCount:       se.CommitCount,
		RollbackCount:     se.RollbackCount,
		FilterCount:       se.FilterCount,
		ProcessErrorCount: se.ProcessErrorCount,
		RetryCount:        se.RetryCount,
		ExecutionContext:  string(ec),
		Restored:          se.Restored,
		LastUpdated:       se.LastUpdated,
		Version:           se.Version,
	}, nil
}

func toDomainStepExecution(entity *StepExecutionEntity) (*model.StepExecution, error) {
	failures, err := serialization.UnmarshalFailures([]byte(entity.Failures))
	if err != nil {
		return nil, fmt.Errorf("decode failures of StepExecution %s: %w", entity.ID, err)
	}
	ec, err := serialization.UnmarshalExecutionContext([]byte(entity.ExecutionContext))
	if err != nil {
		return nil, fmt.Errorf("decode execution context of StepExecution %s: %w", entity.ID, err)
	}
	return &model.StepExecution{
		ID:                entity.ID,
		StepName:          entity.StepName,
		JobExecutionID:    entity.JobExecutionID,
		StartTime:         entity.StartTime,
		EndTime:           entity.EndTime,
		Status:            model.JobStatus(entity.Status),
		ExitStatus:        model.ExitStatus(entity.ExitStatus),
		Failures:          failures,
		ReadCount:         entity.ReadCount,
		WriteCount:        entity.WriteCount,
		CommitCount:       entity.CommitCount,
		RollbackCount:     entity.RollbackCount,
		FilterCount:       entity.FilterCount,
		ProcessErrorCount: entity.ProcessErrorCount,
		RetryCount:        entity.RetryCount,
		ExecutionContext:  ec,
		Restored:          entity.Restored,
		LastUpdated:       entity.LastUpdated,
		Version:           entity.Version,
	}, nil
}
