package incrementer

import (
	"fmt"
	"time"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
)

// TimestampIncrementer stores the current Unix milliseconds under its parameter name.
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer creates a new instance of TimestampIncrementer.
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	if name == "" {
		name = "timestamp"
	}
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext returns a copy of params with the timestamp replaced.
func (i *TimestampIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	next := params.Copy()
	next.Put(i.name, i.now().UnixMilli())
	return next
}

// String returns the string representation of TimestampIncrementer.
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*TimestampIncrementer)(nil)
