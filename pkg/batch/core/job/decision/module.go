// Package decision registers the framework's deciders with the component registry, so
// job definitions can reference them from decision nodes.
package decision

import (
	"math/rand"
	"strconv"

	"go.uber.org/fx"

	flowComponent "github.com/tigerroll/surfin-flow/pkg/batch/component/flow"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// NewConditionalDecisionBuilder creates a builder for the generic ConditionalDecision.
func NewConditionalDecisionBuilder() jsl.ComponentBuilder {
	return func(properties map[string]string) (interface{}, error) {
		id := properties["id"]
		if id == "" {
			id = "conditionalDecision"
		}
		return flowComponent.NewConditionalDecision(id, properties), nil
	}
}

// NewOddDeciderBuilder creates a builder for OddDecider. An optional "seed" property
// makes the drawn numbers reproducible.
func NewOddDeciderBuilder() jsl.ComponentBuilder {
	return func(properties map[string]string) (interface{}, error) {
		var rnd *rand.Rand
		if s := properties["seed"]; s != "" {
			seed, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, exception.NewConfigurationError("decision", "oddDecider: invalid seed '%s'", s)
			}
			rnd = rand.New(rand.NewSource(seed))
		}
		return flowComponent.NewOddDecider("oddDecider", rnd), nil
	}
}

// decisionBuilders receives the named builders from Fx.
type decisionBuilders struct {
	fx.In
	Conditional jsl.ComponentBuilder `name:"conditionalDecision"`
	Odd         jsl.ComponentBuilder `name:"oddDecider"`
}

// RegisterDecisionBuilders registers the deciders under the refs used in decision nodes.
func RegisterDecisionBuilders(registry *jsl.ComponentRegistry, builders decisionBuilders) {
	registry.Register(jsl.KindDecider, "conditionalDecision", builders.Conditional)
	registry.Register(jsl.KindDecider, "oddDecider", builders.Odd)
	logger.Debugf("Deciders 'conditionalDecision' and 'oddDecider' registered.")
}

// Module defines Fx options for the generic deciders.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewConditionalDecisionBuilder,
		fx.ResultTags(`name:"conditionalDecision"`),
	)),
	fx.Provide(fx.Annotate(
		NewOddDeciderBuilder,
		fx.ResultTags(`name:"oddDecider"`),
	)),
	fx.Invoke(RegisterDecisionBuilders),
)
