package generic

import (
	"math/rand"

	"go.uber.org/fx"

	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

type loggingProperties struct {
	ID         string   `yaml:"id"`
	Message    string   `yaml:"message"`
	Parameters []string `yaml:"parameters"`
	ExitStatus string   `yaml:"exitStatus"`
}

type randomFailProperties struct {
	ID        string  `yaml:"id"`
	FailRate  float64 `yaml:"failRate"`
	FailCount int     `yaml:"failCount"`
	// Seed pins the random source. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// RegisterGenericTasklets registers loggingTasklet, randomFailTasklet and
// executionContextWriterTasklet.
func RegisterGenericTasklets(registry *jsl.ComponentRegistry) {
	registry.Register(jsl.KindTasklet, "loggingTasklet", func(properties map[string]string) (interface{}, error) {
		p := loggingProperties{ID: "loggingTasklet"}
		if err := configbinder.BindStringProperties(properties, &p); err != nil {
			return nil, exception.NewConfigurationError("tasklet", "loggingTasklet: %v", err)
		}
		return NewLoggingTasklet(p.ID, p.Message, p.Parameters, model.ExitStatus(p.ExitStatus)), nil
	})
	registry.Register(jsl.KindTasklet, "randomFailTasklet", func(properties map[string]string) (interface{}, error) {
		p := randomFailProperties{ID: "randomFailTasklet", FailRate: 0.5}
		if err := configbinder.BindStringProperties(properties, &p); err != nil {
			return nil, exception.NewConfigurationError("tasklet", "randomFailTasklet: %v", err)
		}
		var rnd *rand.Rand
		if p.Seed != 0 {
			rnd = rand.New(rand.NewSource(p.Seed))
		}
		return NewRandomFailTasklet(p.ID, p.FailRate, p.FailCount, rnd), nil
	})
	registry.Register(jsl.KindTasklet, "executionContextWriterTasklet", func(properties map[string]string) (interface{}, error) {
		return NewExecutionContextWriterTasklet("executionContextWriterTasklet", properties), nil
	})
	logger.Debugf("Generic tasklets (loggingTasklet, randomFailTasklet, executionContextWriterTasklet) were registered.")
}

// Module registers the generic tasklets.
var Module = fx.Options(
	fx.Invoke(RegisterGenericTasklets),
)
