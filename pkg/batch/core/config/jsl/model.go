// Package jsl defines the Job Specification Language: YAML documents describing jobs as
// a start node, a list of step and decision nodes and the transitions between them.
// Definitions are compiled into flow.Definition graphs against a registry of named
// components.
package jsl

// JSLDefinitionBytes holds the content of a JSL file.
type JSLDefinitionBytes []byte

// Document is the top level of a JSL file. A file holds one job or a list of jobs.
type Document struct {
	Jobs []Job `yaml:"jobs"`
}

// Job is one batch job definition.
type Job struct {
	// Name is the registry key of the job. Run requests name it.
	Name string `yaml:"name"`
	// Description is an optional description for the job.
	Description string `yaml:"description,omitempty"`
	// Start is the entry node. Defaults to the first node.
	Start string `yaml:"start,omitempty"`
	// RequiredParameters names parameters every run request must carry.
	RequiredParameters []string `yaml:"required-parameters,omitempty"`
	// Incrementer is an optional reference to a JobParametersIncrementer.
	Incrementer *ComponentRef `yaml:"incrementer,omitempty"`
	// Listeners lists JobExecutionListener references applied to this job.
	Listeners []ComponentRef `yaml:"listeners,omitempty"`
	// Nodes are the steps and decisions, in declaration order.
	Nodes []Node `yaml:"nodes"`
}

// Node is a step (tasklet or chunk) or a decision. Exactly one of Tasklet, Chunk and
// Decision is set.
type Node struct {
	ID          string        `yaml:"id"`
	Description string        `yaml:"description,omitempty"`
	Tasklet     *ComponentRef `yaml:"tasklet,omitempty"`
	Chunk       *Chunk        `yaml:"chunk,omitempty"`
	Decision    *ComponentRef `yaml:"decision,omitempty"`
	// Datasource wraps a tasklet in a transaction of the named database.
	Datasource string `yaml:"datasource,omitempty"`
	// Listeners lists StepExecutionListener references applied to this step.
	Listeners []ComponentRef `yaml:"listeners,omitempty"`
	// Next is shorthand for a single COMPLETED transition.
	Next        string       `yaml:"next,omitempty"`
	Transitions []Transition `yaml:"transitions,omitempty"`
}

// ComponentRef refers to a registered component.
type ComponentRef struct {
	// Ref is the registered name of the component.
	Ref string `yaml:"ref"`
	// Properties are bound onto the component's settings struct.
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Chunk describes a chunk-oriented step.
type Chunk struct {
	Reader    ComponentRef  `yaml:"reader"`
	Processor *ComponentRef `yaml:"processor,omitempty"`
	Writer    ComponentRef  `yaml:"writer"`
	// Size is the number of items per chunk. 0 takes batch.chunk_size from the config.
	Size int `yaml:"size,omitempty"`
	// FailFast makes the first item error abort the chunk.
	FailFast bool `yaml:"fail-fast,omitempty"`
	// SkipLimit caps isolated items; 0 means unlimited.
	SkipLimit int `yaml:"skip-limit,omitempty"`
	// FatalExceptions lists error type names never isolated.
	FatalExceptions []string `yaml:"fatal-exceptions,omitempty"`
	// SkippableExceptions restricts isolation to the listed error type names. When set,
	// skip-limit 0 disables isolation.
	SkippableExceptions []string `yaml:"skippable-exceptions,omitempty"`
	// IsolationLevel of the chunk transaction, e.g. "READ_COMMITTED".
	IsolationLevel string `yaml:"isolation-level,omitempty"`
	// Datasource names the database whose transaction wraps each chunk. Empty means
	// the writer runs without a database transaction.
	Datasource string `yaml:"datasource,omitempty"`
	// Retry overrides batch.retry for reads and chunk writes.
	Retry *Retry `yaml:"retry,omitempty"`
}

// Retry overrides the default retry policy of a chunk step.
type Retry struct {
	MaxAttempts         int      `yaml:"max-attempts"`
	InitialInterval     string   `yaml:"initial-interval,omitempty"`
	MaxInterval         string   `yaml:"max-interval,omitempty"`
	RetryableExceptions []string `yaml:"retryable-exceptions,omitempty"`
}

// Transition routes on an exit status. On is an exact exit status or "*".
type Transition struct {
	On   string `yaml:"on"`
	To   string `yaml:"to,omitempty"`
	End  bool   `yaml:"end,omitempty"`
	Fail bool   `yaml:"fail,omitempty"`
	Stop bool   `yaml:"stop,omitempty"`
}
