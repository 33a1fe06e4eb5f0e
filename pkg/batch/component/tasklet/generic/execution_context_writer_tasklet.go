package generic

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// ExecutionContextWriterTasklet is a [port.Tasklet] that writes typed values to the job
// execution context, where later steps and deciders can read them.
//
// Property keys use the "key.type" format, with type one of string, int, float or bool:
//
//	count.int: "10"
//	name.string: "test"
//	flag.bool: "true"
type ExecutionContextWriterTasklet struct {
	id         string
	properties map[string]string
}

// NewExecutionContextWriterTasklet creates a new [ExecutionContextWriterTasklet] instance.
func NewExecutionContextWriterTasklet(id string, properties map[string]string) *ExecutionContextWriterTasklet {
	return &ExecutionContextWriterTasklet{id: id, properties: properties}
}

// Execute converts and stores every property.
//
// Returns:
//
//	model.ExitStatus: COMPLETED, or FAILED when a value cannot be converted.
//	error: The conversion error.
func (t *ExecutionContextWriterTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	target := stepExecution.ExecutionContext
	if je := stepExecution.JobExecution; je != nil {
		target = je.ExecutionContext
	}

	keys := make([]string, 0, len(t.properties))
	for k := range t.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, keyWithType := range keys {
		raw := t.properties[keyWithType]
		key, typ, ok := strings.Cut(keyWithType, ".")
		if !ok {
			logger.Warnf("Property key '%s' is not in 'key.type' format. Skipping.", keyWithType)
			continue
		}

		var (
			value interface{}
			err   error
		)
		switch strings.ToLower(typ) {
		case "int":
			value, err = strconv.Atoi(raw)
		case "float", "float64":
			value, err = strconv.ParseFloat(raw, 64)
		case "bool":
			value, err = strconv.ParseBool(raw)
		case "string":
			value = raw
		default:
			logger.Warnf("Unknown type '%s' for key '%s'. Treating as string.", typ, key)
			value = raw
		}
		if err != nil {
			return model.ExitStatusFailed, exception.NewBatchError(t.id, fmt.Sprintf("failed to convert '%s' to %s for key '%s'", raw, typ, key), err, false, false)
		}
		target.Put(key, value)
		logger.Debugf("Wrote to EC: %s = %v (Type: %s)", key, value, typ)
	}
	return model.ExitStatusCompleted, nil
}

// Verify that [ExecutionContextWriterTasklet] satisfies the [port.Tasklet] interface.
var _ port.Tasklet = (*ExecutionContextWriterTasklet)(nil)
