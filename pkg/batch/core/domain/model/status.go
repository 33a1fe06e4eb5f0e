package model

// JobStatus is the lifecycle state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting   JobStatus = "STARTING"
	BatchStatusStarted    JobStatus = "STARTED"
	BatchStatusStopping   JobStatus = "STOPPING"
	BatchStatusStopped    JobStatus = "STOPPED"
	BatchStatusCompleted  JobStatus = "COMPLETED"
	BatchStatusFailed     JobStatus = "FAILED"
	BatchStatusAbandoned  JobStatus = "ABANDONED"
	BatchStatusRestarting JobStatus = "RESTARTING"
	BatchStatusUnknown    JobStatus = "UNKNOWN"
)

func (s JobStatus) String() string { return string(s) }

// IsFinished reports whether s is terminal.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	default:
		return false
	}
}

// IsRunning reports whether s belongs to an execution that has not finished.
// UNKNOWN is neither running nor finished.
func (s JobStatus) IsRunning() bool {
	return s != BatchStatusUnknown && !s.IsFinished()
}

// ToExitStatus maps a terminal status onto its default exit status.
func (s JobStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusStopped:
		return ExitStatusStopped
	case BatchStatusAbandoned:
		return ExitStatusAbandoned
	default:
		return ExitStatusUnknown
	}
}

// ExitStatus is the outcome code of a job or step. Flow transitions match against it.
// Step bodies may return any custom code, e.g. "ODD" or "COMPLETED WITH SKIPS".
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusAbandoned ExitStatus = "ABANDONED"
	ExitStatusNoOp      ExitStatus = "NOOP"
)

func (s ExitStatus) String() string { return string(s) }

type statusSet map[JobStatus]struct{}

func setOf(statuses ...JobStatus) statusSet {
	set := make(statusSet, len(statuses))
	for _, st := range statuses {
		set[st] = struct{}{}
	}
	return set
}

// Allowed moves between statuses. ABANDONED is reachable from every non-completed
// status so an operator can retire a stuck execution.
var (
	jobTransitions = map[JobStatus]statusSet{
		BatchStatusStarting:   setOf(BatchStatusStarted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned),
		BatchStatusRestarting: setOf(BatchStatusStarted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned),
		BatchStatusStarted:    setOf(BatchStatusStopping, BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned),
		BatchStatusStopping:   setOf(BatchStatusStopped, BatchStatusFailed, BatchStatusAbandoned),
		BatchStatusStopped:    setOf(BatchStatusAbandoned),
		BatchStatusFailed:     setOf(BatchStatusAbandoned),
	}
	stepTransitions = map[JobStatus]statusSet{
		BatchStatusStarting: setOf(BatchStatusStarted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned),
		BatchStatusStarted:  setOf(BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned),
	}
)

func isValidJobTransition(current, next JobStatus) bool {
	_, ok := jobTransitions[current][next]
	return ok
}

func isValidStepTransition(current, next JobStatus) bool {
	_, ok := stepTransitions[current][next]
	return ok
}
