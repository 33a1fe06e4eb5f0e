package incrementer

import (
	"go.uber.org/fx"

	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// RegisterIncrementers registers runIdIncrementer and timestampIncrementer. Both accept
// a "name" property naming the parameter they maintain.
func RegisterIncrementers(registry *jsl.ComponentRegistry) {
	registry.Register(jsl.KindIncrementer, "runIdIncrementer", func(properties map[string]string) (interface{}, error) {
		return NewRunIDIncrementer(properties["name"]), nil
	})
	registry.Register(jsl.KindIncrementer, "timestampIncrementer", func(properties map[string]string) (interface{}, error) {
		return NewTimestampIncrementer(properties["name"]), nil
	})
	logger.Debugf("Incrementers 'runIdIncrementer' and 'timestampIncrementer' registered.")
}

// Module is the Fx module for the Incrementer package.
var Module = fx.Options(
	fx.Invoke(RegisterIncrementers),
)
