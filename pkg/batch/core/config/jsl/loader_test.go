package jsl_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

const singleJob = `
name: stepNextConditionalJob
required-parameters: [date]
incrementer:
  ref: runIdIncrementer
nodes:
  - id: step1
    tasklet:
      ref: exitWith
      properties:
        status: FAILED
    transitions:
      - on: FAILED
        to: step3
      - on: "*"
        to: step2
  - id: step2
    tasklet:
      ref: exitWith
    next: step3
  - id: step3
    tasklet:
      ref: exitWith
`

func TestParseSingleJob(t *testing.T) {
	jobs, err := jsl.Parse([]byte(singleJob))
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Equal(t, "stepNextConditionalJob", job.Name)
	assert.Equal(t, []string{"date"}, job.RequiredParameters)
	require.NotNil(t, job.Incrementer)
	assert.Equal(t, "runIdIncrementer", job.Incrementer.Ref)
	require.Len(t, job.Nodes, 3)
	assert.Equal(t, "FAILED", job.Nodes[0].Tasklet.Properties["status"])
	require.Len(t, job.Nodes[0].Transitions, 2)
	assert.Equal(t, "*", job.Nodes[0].Transitions[1].On)
	assert.Equal(t, "step3", job.Nodes[1].Next)
}

func TestParseJobList(t *testing.T) {
	jobs, err := jsl.Parse([]byte(`
jobs:
  - name: a
    nodes:
      - id: s
        tasklet: {ref: exitWith}
  - name: b
    nodes:
      - id: pick
        decision: {ref: always}
        transitions:
          - {on: "*", end: true}
`))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[1].Nodes[0].Transitions[0].End)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := map[string]string{
		"malformed yaml": "name: [",
		"no name":        "nodes: [{id: s, tasklet: {ref: x}}]",
		"no nodes":       "name: empty",
		"node without id": `
name: j
nodes:
  - tasklet: {ref: x}`,
		"two bodies": `
name: j
nodes:
  - id: s
    tasklet: {ref: x}
    decision: {ref: y}`,
		"next and transitions": `
name: j
nodes:
  - id: s
    tasklet: {ref: x}
    next: t
    transitions: [{on: "*", end: true}]`,
		"duplicate job": `
jobs:
  - {name: j, nodes: [{id: s, tasklet: {ref: x}}]}
  - {name: j, nodes: [{id: s, tasklet: {ref: x}}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := jsl.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseAll(t *testing.T) {
	a := jsl.JSLDefinitionBytes("name: a\nnodes: [{id: s, tasklet: {ref: x}}]")
	b := jsl.JSLDefinitionBytes("name: b\nnodes: [{id: s, tasklet: {ref: x}}]")

	jobs, err := jsl.ParseAll(a, nil, b)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	_, err = jsl.ParseAll(a, a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}
