package sql

import (
	"time"
)

// Table names of the history store. The schema is created by the framework migrations
// of the migration tasklet package.
const (
	TableJobInstance   = "batch_job_instance"
	TableJobExecution  = "batch_job_execution"
	TableStepExecution = "batch_step_execution"
	TableJobClaim      = "batch_job_claim"
)

// JobInstanceEntity is the row of batch_job_instance. Parameters hold typed JSON.
type JobInstanceEntity struct {
	ID             string `gorm:"primaryKey"`
	JobName        string
	Parameters     string
	ParametersHash string
	CreateTime     time.Time
	Version        int
}

func (JobInstanceEntity) TableName() string {
	return TableJobInstance
}

// JobExecutionEntity is the row of batch_job_execution.
type JobExecutionEntity struct {
	ID               string `gorm:"primaryKey"`
	JobInstanceID    string
	JobName          string
	Parameters       string
	StartTime        time.Time
	EndTime          *time.Time
	Status           string
	ExitStatus       string
	Failures         string
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	ExecutionContext string
	CurrentStepName  string
	RestartCount     int
}

func (JobExecutionEntity) TableName() string {
	return TableJobExecution
}

// StepExecutionEntity is the row of batch_step_execution.
type StepExecutionEntity struct {
	ID                string `gorm:"primaryKey"`
	StepName          string
	JobExecutionID    string
	StartTime         time.Time
	EndTime           *time.Time
	Status            string
	ExitStatus        string
	Failures          string
	ReadCount         int
	WriteCount        int
	CommitCount       int
	RollbackCount     int
	FilterCount       int
	ProcessErrorCount int
	RetryCount        int
	ExecutionContext  string
	Restored          bool
	LastUpdated       time.Time
	Version           int
}

func (StepExecutionEntity) TableName() string {
	return TableStepExecution
}

// JobClaimEntity is the row of batch_job_claim. The primary key makes the claim exclusive.
type JobClaimEntity struct {
	JobInstanceID string `gorm:"primaryKey"`
	Owner         string
	ClaimedAt     time.Time
}

func (JobClaimEntity) TableName() string {
	return TableJobClaim
}
