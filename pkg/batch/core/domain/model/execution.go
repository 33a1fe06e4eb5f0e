package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// FailureList holds failure messages recorded on an execution.
type FailureList []string

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// JobInstance is one (job name, parameters) pair. Its identity never changes.
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

// NewJobInstance creates a new JobInstance.
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     params,
		ParametersHash: params.Hash(),
		CreateTime:     time.Now(),
	}
}

// JobExecution is one attempt to run a JobInstance. It exclusively owns its StepExecutions.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	// CurrentStepName is the flow node being (or last) executed; a restart resumes there.
	CurrentStepName string
	RestartCount    int
	CancelFunc      context.CancelFunc `json:"-"`
}

// NewJobExecution creates a new JobExecution in STARTING state.
func NewJobExecution(jobInstanceID string, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         make(FailureList, 0),
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

// NewRestartExecution creates the execution that resumes prev. COMPLETED steps are
// copied forward so the flow skips them. The step prev stopped at is copied in STARTING
// state so the rerun restores its checkpoint. Other unfinished steps are left behind:
// the flow either reaches them again and runs them fresh, or never does. The job
// execution context is carried over.
func NewRestartExecution(prev *JobExecution, params JobParameters) *JobExecution {
	je := NewJobExecution(prev.JobInstanceID, prev.JobName, params)
	je.ExecutionContext = prev.ExecutionContext.Copy()
	je.RestartCount = prev.RestartCount + 1
	je.CurrentStepName = prev.CurrentStepName

	latest := make(map[string]*StepExecution)
	var order []string
	for _, se := range prev.StepExecutions {
		if _, seen := latest[se.StepName]; !seen {
			order = append(order, se.StepName)
		}
		latest[se.StepName] = se
	}
	for _, name := range order {
		se := latest[name]
		if se.Status != BatchStatusCompleted && name != prev.CurrentStepName {
			continue
		}
		je.AddStepExecution(se.CopyForRestart(je.ID))
	}
	return je
}

// TransitionTo moves the execution to newStatus if the lifecycle allows it.
func (je *JobExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

func (je *JobExecution) finish(status JobStatus, exit ExitStatus) {
	if err := je.TransitionTo(status); err != nil {
		logger.Warnf("%v; forcing %s.", err, status)
		je.Status = status
	}
	je.ExitStatus = exit
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
}

// MarkAsStarted moves the execution to STARTED.
func (je *JobExecution) MarkAsStarted() {
	if err := je.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("%v; forcing STARTED.", err)
		je.Status = BatchStatusStarted
	}
	je.StartTime = time.Now()
}

// MarkAsCompleted ends the execution as COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	je.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed ends the execution as FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.finish(BatchStatusFailed, ExitStatusFailed)
	je.AddFailureException(err)
}

// MarkAsStopped ends the execution as STOPPED.
func (je *JobExecution) MarkAsStopped() {
	je.finish(BatchStatusStopped, ExitStatusStopped)
}

// MarkAsAbandoned ends the execution as ABANDONED. Abandoned executions are never restarted.
func (je *JobExecution) MarkAsAbandoned() {
	je.finish(BatchStatusAbandoned, ExitStatusAbandoned)
}

// AddFailureException records err once.
func (je *JobExecution) AddFailureException(err error) {
	je.Failures = appendFailure(je.Failures, err)
	je.LastUpdated = time.Now()
}

// AddStepExecution attaches se to this execution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	se.JobExecution = je
	se.JobExecutionID = je.ID
	je.StepExecutions = append(je.StepExecutions, se)
}

// FindStepExecution returns the most recent StepExecution for stepName.
func (je *JobExecution) FindStepExecution(stepName string) (*StepExecution, bool) {
	for i := len(je.StepExecutions) - 1; i >= 0; i-- {
		if je.StepExecutions[i].StepName == stepName {
			return je.StepExecutions[i], true
		}
	}
	return nil, false
}

// StepExecution is one run of a step within a JobExecution.
type StepExecution struct {
	ID                string
	StepName          string
	JobExecution      *JobExecution `json:"-"`
	JobExecutionID    string
	StartTime         time.Time
	EndTime           *time.Time
	Status            JobStatus
	ExitStatus        ExitStatus
	Failures          FailureList
	ReadCount         int
	WriteCount        int
	CommitCount       int
	RollbackCount     int
	FilterCount       int
	ProcessErrorCount int
	RetryCount        int
	ExecutionContext  ExecutionContext
	LastUpdated       time.Time
	Version           int
	// Restored is set on steps copied forward from a previous execution.
	Restored bool
}

// NewStepExecution creates a StepExecution in STARTING state owned by jobExecution.
func NewStepExecution(id string, jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               id,
		StepName:         stepName,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusExecuting,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	if jobExecution != nil {
		se.JobExecution = jobExecution
		se.JobExecutionID = jobExecution.ID
	}
	return se
}

// CopyForRestart copies the step into newJobExecutionID. A COMPLETED step keeps its
// status, exit status and counts; any other step is reset to STARTING.
func (se *StepExecution) CopyForRestart(newJobExecutionID string) *StepExecution {
	out := &StepExecution{
		ID:               NewID(),
		StepName:         se.StepName,
		JobExecutionID:   newJobExecutionID,
		Failures:         make(FailureList, 0),
		ExecutionContext: se.ExecutionContext.Copy(),
		LastUpdated:      time.Now(),
	}
	if se.Status == BatchStatusCompleted {
		out.Status = BatchStatusCompleted
		out.ExitStatus = se.ExitStatus
		out.StartTime = se.StartTime
		out.EndTime = se.EndTime
		out.ReadCount = se.ReadCount
		out.WriteCount = se.WriteCount
		out.CommitCount = se.CommitCount
		out.RollbackCount = se.RollbackCount
		out.FilterCount = se.FilterCount
		out.ProcessErrorCount = se.ProcessErrorCount
		out.RetryCount = se.RetryCount
		out.Restored = true
		return out
	}
	out.Status = BatchStatusStarting
	out.ExitStatus = ExitStatusExecuting
	out.StartTime = time.Now()
	return out
}

// TransitionTo moves the step to newStatus if the lifecycle allows it.
func (se *StepExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	se.LastUpdated = time.Now()
	return nil
}

func (se *StepExecution) finish(status JobStatus, exit ExitStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("%v; forcing %s.", err, status)
		se.Status = status
	}
	se.ExitStatus = exit
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// MarkAsStarted moves the step to STARTED.
func (se *StepExecution) MarkAsStarted() {
	if err := se.TransitionTo(BatchStatusStarted); err != nil {
		logger.Warnf("%v; forcing STARTED.", err)
		se.Status = BatchStatusStarted
	}
}

// MarkAsCompleted ends the step as COMPLETED with exit. An empty exit means COMPLETED.
func (se *StepExecution) MarkAsCompleted(exit ExitStatus) {
	if exit == "" {
		exit = ExitStatusCompleted
	}
	se.finish(BatchStatusCompleted, exit)
}

// MarkAsFailed ends the step as FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.finish(BatchStatusFailed, ExitStatusFailed)
	se.AddFailureException(err)
}

// MarkAsStopped ends the step as STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped, ExitStatusStopped)
}

// AddFailureException records err once.
func (se *StepExecution) AddFailureException(err error) {
	se.Failures = appendFailure(se.Failures, err)
	se.LastUpdated = time.Now()
}

// JobName returns the owning job's name, or "" for a detached step.
func (se *StepExecution) JobName() string {
	if se.JobExecution == nil {
		return ""
	}
	return se.JobExecution.JobName
}

func appendFailure(list FailureList, err error) FailureList {
	if err == nil {
		return list
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}
