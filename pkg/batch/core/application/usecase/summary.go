package usecase

import (
	"time"

	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// StepSummary reports the counters of one step execution.
type StepSummary struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	ExitStatus string `json:"exitStatus"`
	Read       int    `json:"readCount"`
	Write      int    `json:"writeCount"`
	Filter     int    `json:"filterCount"`
	Skip       int    `json:"skipCount"`
	Commit     int    `json:"commitCount"`
	Rollback   int    `json:"rollbackCount"`
}

// JobExecutionSummary is the externally visible state of a job execution, used by the
// CLI and the HTTP API.
type JobExecutionSummary struct {
	ID            string        `json:"id"`
	JobInstanceID string        `json:"jobInstanceId"`
	JobName       string        `json:"jobName"`
	Status        string        `json:"status"`
	ExitStatus    string        `json:"exitStatus"`
	StartTime     *time.Time    `json:"startTime,omitempty"`
	EndTime       *time.Time    `json:"endTime,omitempty"`
	RestartCount  int           `json:"restartCount"`
	Steps         []StepSummary `json:"steps"`
	Failures      []string      `json:"failures,omitempty"`
}

// NewJobExecutionSummary summarizes je.
func NewJobExecutionSummary(je *model.JobExecution) JobExecutionSummary {
	s := JobExecutionSummary{
		ID:            je.ID,
		JobInstanceID: je.JobInstanceID,
		JobName:       je.JobName,
		Status:        je.Status.String(),
		ExitStatus:    je.ExitStatus.String(),
		EndTime:       je.EndTime,
		RestartCount:  je.RestartCount,
		Steps:         make([]StepSummary, 0, len(je.StepExecutions)),
	}
	if !je.StartTime.IsZero() {
		start := je.StartTime
		s.StartTime = &start
	}
	for _, se := range je.StepExecutions {
		s.Steps = append(s.Steps, StepSummary{
			Name:       se.StepName,
			Status:     se.Status.String(),
			ExitStatus: se.ExitStatus.String(),
			Read:       se.ReadCount,
			Write:      se.WriteCount,
			Filter:     se.FilterCount,
			Skip:       se.ProcessErrorCount,
			Commit:     se.CommitCount,
			Rollback:   se.RollbackCount,
		})
	}
	s.Failures = append(s.Failures, je.Failures...)
	return s
}
