package jsl

import (
	"sort"
	"sync"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

// Kind is the role a registered component plays in a job definition.
type Kind string

const (
	KindReader       Kind = "reader"
	KindProcessor    Kind = "processor"
	KindWriter       Kind = "writer"
	KindTasklet      Kind = "tasklet"
	KindDecider      Kind = "decider"
	KindJobListener  Kind = "jobListener"
	KindStepListener Kind = "stepListener"
	KindIncrementer  Kind = "incrementer"
)

// ComponentBuilder creates a fresh component instance from the properties of its
// reference. Builders are called once per reference, so stateful readers and writers
// are never shared between steps.
type ComponentBuilder func(properties map[string]string) (interface{}, error)

// ComponentRegistry maps (kind, ref) pairs to builders.
type ComponentRegistry struct {
	mu       sync.RWMutex
	builders map[Kind]map[string]ComponentBuilder
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{builders: make(map[Kind]map[string]ComponentBuilder)}
}

// Register adds a builder. Registering a ref twice replaces the earlier builder.
func (r *ComponentRegistry) Register(kind Kind, ref string, builder ComponentBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byRef, ok := r.builders[kind]
	if !ok {
		byRef = make(map[string]ComponentBuilder)
		r.builders[kind] = byRef
	}
	byRef[ref] = builder
}

// Build creates the component ref points to.
func (r *ComponentRegistry) Build(kind Kind, ref ComponentRef) (interface{}, error) {
	r.mu.RLock()
	builder, ok := r.builders[kind][ref.Ref]
	r.mu.RUnlock()
	if !ok {
		return nil, exception.NewConfigurationError(compilerModule, "no %s registered as '%s'", kind, ref.Ref)
	}
	component, err := builder(ref.Properties)
	if err != nil {
		return nil, exception.NewBatchError(compilerModule, "failed to build "+string(kind)+" '"+ref.Ref+"'", err, false, false)
	}
	return component, nil
}

// Refs returns the registered refs of kind, sorted.
func (r *ComponentRegistry) Refs(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.builders[kind]))
	for ref := range r.builders[kind] {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
