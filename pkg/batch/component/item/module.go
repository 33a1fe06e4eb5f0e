// Package item provides generic item components: an in-memory reader, no-op readers and
// writers, a pass-through processor and writers that log or count what they receive.
package item

import (
	"go.uber.org/fx"

	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// RegisterGenericItemBuilders registers the generic components with the component registry.
func RegisterGenericItemBuilders(registry *jsl.ComponentRegistry) {
	registry.Register(jsl.KindReader, "noOpItemReader", func(map[string]string) (interface{}, error) {
		return NewNoOpItemReader[any](), nil
	})
	registry.Register(jsl.KindProcessor, "passThroughItemProcessor", func(map[string]string) (interface{}, error) {
		return NewPassThroughItemProcessor[any](), nil
	})
	registry.Register(jsl.KindWriter, "noOpItemWriter", func(map[string]string) (interface{}, error) {
		return NewNoOpItemWriter[any](), nil
	})
	registry.Register(jsl.KindWriter, "loggingItemWriter", func(properties map[string]string) (interface{}, error) {
		name := properties["name"]
		if name == "" {
			name = "loggingItemWriter"
		}
		return NewLoggingItemWriter[any](name), nil
	})
	registry.Register(jsl.KindWriter, "executionContextItemWriter", func(properties map[string]string) (interface{}, error) {
		return NewExecutionContextItemWriter[any](properties["key"]), nil
	})
	logger.Debugf("Generic item components were registered.")
}

// Module registers the generic item components.
var Module = fx.Options(
	fx.Invoke(RegisterGenericItemBuilders),
)
