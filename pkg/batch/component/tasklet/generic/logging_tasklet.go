// Package generic provides general-purpose tasklets that are assembled from job
// definitions by reference.
package generic

import (
	"context"
	"sort"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// LoggingTasklet logs a message and, optionally, selected job parameters. It finishes
// with a fixed exit status, which lets a definition route on a custom outcome.
type LoggingTasklet struct {
	id         string
	message    string
	parameters []string
	exitStatus model.ExitStatus
}

// NewLoggingTasklet creates a new instance of [LoggingTasklet].
//
// Parameters:
//
//	id: The identifier used as log prefix.
//	message: The message to log. Empty logs ">>>>> This is <id>".
//	parameters: Job parameter names whose values are logged.
//	exitStatus: The exit status returned on success. Empty means COMPLETED.
func NewLoggingTasklet(id, message string, parameters []string, exitStatus model.ExitStatus) *LoggingTasklet {
	if message == "" {
		message = ">>>>> This is " + id
	}
	sorted := append([]string(nil), parameters...)
	sort.Strings(sorted)
	return &LoggingTasklet{id: id, message: message, parameters: sorted, exitStatus: exitStatus}
}

// Execute logs the message and the configured parameters.
func (t *LoggingTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	logger.Infof("%s", t.message)
	if je := stepExecution.JobExecution; je != nil {
		for _, name := range t.parameters {
			logger.Infof(">>>>> %s = %v", name, je.Parameters.Get(name))
		}
	}
	return t.exitStatus, nil
}

// Verify that [LoggingTasklet] satisfies the [port.Tasklet] interface.
var _ port.Tasklet = (*LoggingTasklet)(nil)
