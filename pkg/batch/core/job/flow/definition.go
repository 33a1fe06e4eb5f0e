// Package flow holds the job graph: step and decider nodes keyed by name, and the
// ordered transitions leaving each node. A Definition is assembled once at startup,
// validated, and then only read by the runner.
package flow

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/surfin-flow/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-flow/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
)

const moduleName = "flow"

// Wildcard matches any exit status.
const Wildcard = "*"

// Node is a step or a decider. Exactly one of the two is set.
type Node struct {
	Name    string
	Step    port.Step
	Decider port.Decider
}

// IsDecider reports whether the node is a decider.
func (n *Node) IsDecider() bool {
	return n.Decider != nil
}

// Edge is a transition leaving From when the exit status matches On.
// A plain edge sets To. A terminal edge sets one of End, Fail or Stop; a Stop edge may
// also set To, the node a restart resumes at.
type Edge struct {
	From string `yaml:"from"`
	On   string `yaml:"on"`
	To   string `yaml:"to,omitempty"`
	End  bool   `yaml:"end,omitempty"`
	Fail bool   `yaml:"fail,omitempty"`
	Stop bool   `yaml:"stop,omitempty"`
}

// IsTerminal reports whether following the edge ends the job.
func (e Edge) IsTerminal() bool {
	return e.End || e.Fail || e.Stop
}

// Matches reports whether the edge applies to status.
func (e Edge) Matches(status model.ExitStatus) bool {
	return e.On == Wildcard || e.On == string(status)
}

func (e Edge) String() string {
	switch {
	case e.End:
		return fmt.Sprintf("%s --%s--> END", e.From, e.On)
	case e.Fail:
		return fmt.Sprintf("%s --%s--> FAIL", e.From, e.On)
	case e.Stop:
		return fmt.Sprintf("%s --%s--> STOP(%s)", e.From, e.On, e.To)
	default:
		return fmt.Sprintf("%s --%s--> %s", e.From, e.On, e.To)
	}
}

// Definition is the graph of one job.
type Definition struct {
	name  string
	start string
	nodes map[string]*Node
	order []string
	edges map[string][]Edge
	// errs collects builder misuse (duplicate names, nil components); Validate reports them.
	errs []error
}

// NewDefinition creates an empty graph for the job name.
func NewDefinition(name string) *Definition {
	return &Definition{
		name:  name,
		nodes: make(map[string]*Node),
		edges: make(map[string][]Edge),
	}
}

// Name returns the job name.
func (d *Definition) Name() string {
	return d.name
}

// AddStep adds a step node named after s.StepName(). The first node added becomes the
// start node unless Start is called.
func (d *Definition) AddStep(s port.Step) *Definition {
	if port.IsNil(s) {
		d.errs = append(d.errs, fmt.Errorf("nil step added to job '%s'", d.name))
		return d
	}
	d.addNode(&Node{Name: s.StepName(), Step: s})
	return d
}

// AddDecider adds a decider node named after dec.DeciderName().
func (d *Definition) AddDecider(dec port.Decider) *Definition {
	if port.IsNil(dec) {
		d.errs = append(d.errs, fmt.Errorf("nil decider added to job '%s'", d.name))
		return d
	}
	d.addNode(&Node{Name: dec.DeciderName(), Decider: dec})
	return d
}

func (d *Definition) addNode(n *Node) {
	if n.Name == "" {
		d.errs = append(d.errs, fmt.Errorf("node with empty name in job '%s'", d.name))
		return
	}
	if _, exists := d.nodes[n.Name]; exists {
		d.errs = append(d.errs, fmt.Errorf("duplicate node '%s' in job '%s'", n.Name, d.name))
		return
	}
	d.nodes[n.Name] = n
	d.order = append(d.order, n.Name)
	if d.start == "" {
		d.start = n.Name
	}
}

// Start sets the entry node.
func (d *Definition) Start(name string) *Definition {
	d.start = name
	return d
}

// On begins a transition from the node from, taken when the exit status equals pattern
// (or always, for "*"). Transitions of one node are tried in the order they were added.
func (d *Definition) On(from, pattern string) *EdgeBuilder {
	return &EdgeBuilder{d: d, from: from, on: pattern}
}

// Next adds the transition from --COMPLETED--> to.
func (d *Definition) Next(from, to string) *Definition {
	return d.On(from, string(model.ExitStatusCompleted)).To(to)
}

// AddEdge appends a prepared edge.
func (d *Definition) AddEdge(e Edge) *Definition {
	d.edges[e.From] = append(d.edges[e.From], e)
	return d
}

// EdgeBuilder completes a transition started by Definition.On.
type EdgeBuilder struct {
	d    *Definition
	from string
	on   string
}

// To routes to the node name.
func (b *EdgeBuilder) To(name string) *Definition {
	return b.d.AddEdge(Edge{From: b.from, On: b.on, To: name})
}

// End completes the job.
func (b *EdgeBuilder) End() *Definition {
	return b.d.AddEdge(Edge{From: b.from, On: b.on, End: true})
}

// Fail fails the job.
func (b *EdgeBuilder) Fail() *Definition {
	return b.d.AddEdge(Edge{From: b.from, On: b.on, Fail: true})
}

// Stop stops the job. A restart resumes at the source node.
func (b *EdgeBuilder) Stop() *Definition {
	return b.d.AddEdge(Edge{From: b.from, On: b.on, Stop: true})
}

// StopAndRestart stops the job; a restart resumes at name.
func (b *EdgeBuilder) StopAndRestart(name string) *Definition {
	return b.d.AddEdge(Edge{From: b.from, On: b.on, Stop: true, To: name})
}

// StartNode returns the entry node name.
func (d *Definition) StartNode() string {
	return d.start
}

// Node returns the node called name.
func (d *Definition) Node(name string) (*Node, bool) {
	n, ok := d.nodes[name]
	return n, ok
}

// Nodes returns all nodes in the order they were added.
func (d *Definition) Nodes() []*Node {
	out := make([]*Node, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.nodes[name])
	}
	return out
}

// Edges returns the transitions leaving from, in evaluation order.
func (d *Definition) Edges(from string) []Edge {
	return d.edges[from]
}

// Match returns the first transition leaving from whose pattern matches status.
func (d *Definition) Match(from string, status model.ExitStatus) (Edge, bool) {
	for _, e := range d.edges[from] {
		if e.Matches(status) {
			return e, true
		}
	}
	return Edge{}, false
}

// Validate checks the graph and every step that can validate itself. All problems are
// reported together; the result wraps exception.ErrConfiguration.
func (d *Definition) Validate() error {
	var result *multierror.Error
	result = multierror.Append(result, d.errs...)

	if d.start == "" {
		result = multierror.Append(result, fmt.Errorf("job '%s' has no nodes", d.name))
	} else if _, ok := d.nodes[d.start]; !ok {
		result = multierror.Append(result, fmt.Errorf("start node '%s' does not exist", d.start))
	}

	for from, edges := range d.edges {
		if _, ok := d.nodes[from]; !ok {
			result = multierror.Append(result, fmt.Errorf("transition source '%s' does not exist", from))
		}
		for _, e := range edges {
			if e.On == "" {
				result = multierror.Append(result, fmt.Errorf("transition %s has an empty pattern", e))
			}
			kinds := 0
			for _, set := range []bool{e.End, e.Fail, e.Stop} {
				if set {
					kinds++
				}
			}
			switch {
			case kinds > 1:
				result = multierror.Append(result, fmt.Errorf("transition %s sets more than one terminal kind", e))
			case kinds == 0 && e.To == "":
				result = multierror.Append(result, fmt.Errorf("transition %s has no target", e))
			case (e.End || e.Fail) && e.To != "":
				result = multierror.Append(result, fmt.Errorf("transition %s mixes a target with a terminal kind", e))
			}
			if e.To != "" {
				if _, ok := d.nodes[e.To]; !ok {
					result = multierror.Append(result, fmt.Errorf("transition %s targets unknown node '%s'", e, e.To))
				}
			}
		}
	}

	for _, name := range d.order {
		n := d.nodes[name]
		if n.IsDecider() && len(d.edges[name]) == 0 {
			result = multierror.Append(result, fmt.Errorf("decider '%s' has no transitions", name))
		}
		if v, ok := n.Step.(port.Validator); ok && n.Step != nil {
			if err := v.Validate(); err != nil {
				result = multierror.Append(result, fmt.Errorf("step '%s': %w", name, err))
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return exception.NewConfigurationError(moduleName, "job '%s' is invalid: %v", d.name, err)
	}
	return nil
}
