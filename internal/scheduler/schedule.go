// Package scheduler classifies one hierarchy level's actors and orders them
// into the ten lists the director fires from.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/signal"
	"github.com/roach88/hysim/internal/simerr"
)

// Graph names used in DEPENDENCY_CYCLE errors.
const (
	GraphAlgebraic = "algebraic"
	GraphDynamic   = "dynamic"
	GraphDiscrete  = "discrete"
)

// Schedule is the immutable result of scheduling one composite version.
type Schedule struct {
	Continuous         []*actor.Node
	Discrete           []*actor.Node
	Dynamic            []*actor.Node
	EventGenerators    []*actor.Node
	Output             []*actor.Node
	OutputStepControl  []*actor.Node
	StateTransition    []*actor.Node
	Stateful           []*actor.Node
	StateStepControl   []*actor.Node
	WaveformGenerators []*actor.Node

	// Kinds is the resolved signal kind of every port, by full name.
	Kinds map[string]signal.Kind

	// Version is the composite version this schedule was built from.
	Version uint64
}

// List is one named schedule list.
type List struct {
	Name   string   `json:"name"`
	Actors []string `json:"actors"`
}

// Lists returns the ten lists in a fixed order.
func (s *Schedule) Lists() []List {
	return []List{
		{"continuous", names(s.Continuous)},
		{"discrete", names(s.Discrete)},
		{"dynamic", names(s.Dynamic)},
		{"event-generators", names(s.EventGenerators)},
		{"output", names(s.Output)},
		{"output-step-control", names(s.OutputStepControl)},
		{"state-transition", names(s.StateTransition)},
		{"stateful", names(s.Stateful)},
		{"state-step-control", names(s.StateStepControl)},
		{"waveform-generators", names(s.WaveformGenerators)},
	}
}

// String renders the schedule as nested blocks, one actor per line.
func (s *Schedule) String() string {
	var b strings.Builder
	b.WriteString("schedule {\n")
	for _, l := range s.Lists() {
		fmt.Fprintf(&b, "    %s {\n", l.Name)
		for _, a := range l.Actors {
			fmt.Fprintf(&b, "        %s\n", a)
		}
		b.WriteString("    }\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func names(nodes []*actor.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

// Build resolves signal kinds for c, applies them to its receivers and
// returns the ten ordered lists. On any error nothing is applied.
func Build(c *actor.Composite) (*Schedule, error) {
	kinds, err := resolveKinds(c)
	if err != nil {
		return nil, err
	}

	nodes := c.Nodes()
	links := c.Links()

	var continuous, discrete []*actor.Node
	for _, n := range nodes {
		if hasContinuousPort(n, kinds) {
			continuous = append(continuous, n)
		} else {
			discrete = append(discrete, n)
		}
	}

	owner := func(p *actor.Port) *actor.Node {
		if p.IsBoundary() {
			return nil
		}
		n, _ := c.Node(p.Owner())
		return n
	}

	arith := newDigraph(continuous)
	dyn := newDigraph(filter(continuous, func(n *actor.Node) bool { return n.Caps.Has(actor.CapDynamic) }))
	disc := newDigraph(discrete)
	for _, l := range links {
		from, to := owner(l.From), owner(l.To)
		if from == nil || to == nil {
			continue
		}
		if kinds[l.From.FullName()] == signal.Discrete {
			disc.addEdge(from, to)
			continue
		}
		dyn.addEdge(from, to)
		if from.Caps.Has(actor.CapDynamic) || from.Caps.Has(actor.CapEventGenerator) {
			continue
		}
		arith.addEdge(from, to)
	}

	arithOrder, ok := arith.topoOrder()
	if !ok {
		return nil, simerr.NewDependencyCycle(GraphAlgebraic, arith.cyclePath())
	}
	dynOrder, ok := dyn.topoOrder()
	if !ok {
		return nil, simerr.NewDependencyCycle(GraphDynamic, dyn.cyclePath())
	}
	discOrder, ok := disc.topoOrder()
	if !ok {
		return nil, simerr.NewDependencyCycle(GraphDiscrete, disc.cyclePath())
	}

	s := &Schedule{
		Continuous: arithOrder,
		Discrete:   discOrder,
		Dynamic:    reversed(dynOrder),
		Kinds:      kinds,
		Version:    c.Version(),
	}

	// Event and waveform generators follow data order where they have it.
	all := append(append([]*actor.Node{}, arithOrder...), discOrder...)
	s.EventGenerators = filter(all, func(n *actor.Node) bool { return n.Caps.Has(actor.CapEventGenerator) })
	s.WaveformGenerators = filter(all, func(n *actor.Node) bool { return n.Caps.Has(actor.CapWaveformGenerator) })

	stateRelated := arith.reaches(s.Dynamic)
	evaluated := func(n *actor.Node) bool {
		return !n.Caps.Has(actor.CapDynamic) && !n.Caps.Has(actor.CapEventGenerator)
	}
	s.StateTransition = filter(arithOrder, func(n *actor.Node) bool { return evaluated(n) && stateRelated[n] })
	s.Output = filter(arithOrder, func(n *actor.Node) bool { return evaluated(n) && !stateRelated[n] })

	ssc := func(n *actor.Node) bool { return n.Caps.Has(actor.CapStepSizeControl) }
	s.StateStepControl = append(filter(s.Dynamic, ssc), filter(s.StateTransition, ssc)...)
	s.OutputStepControl = append(filter(s.Output, ssc), filter(s.EventGenerators, ssc)...)

	s.Stateful = filter(nodes, func(n *actor.Node) bool { return n.Caps.Has(actor.CapStateful) })

	c.ApplyKinds(kinds)
	return s, nil
}

// resolveKinds seeds declared kinds, adds the capability defaults (event
// generator outputs and waveform generator inputs are discrete unless
// declared), propagates and defaults the rest to continuous.
func resolveKinds(c *actor.Composite) (map[string]signal.Kind, error) {
	g := signal.Graph{Declared: make(map[string]signal.Kind)}
	for _, p := range c.Ports() {
		name := p.FullName()
		g.Ports = append(g.Ports, name)
		if k := p.Declared(); k != signal.Unknown {
			g.Declared[name] = k
		}
	}
	for _, n := range c.Nodes() {
		for _, p := range n.Actor.Ports() {
			if p.Declared() != signal.Unknown {
				continue
			}
			if (n.Caps.Has(actor.CapEventGenerator) && p.IsOutput()) ||
				(n.Caps.Has(actor.CapWaveformGenerator) && p.IsInput()) {
				g.Declared[p.FullName()] = signal.Discrete
			}
		}
	}
	for _, l := range c.Links() {
		g.Links = append(g.Links, signal.Link{From: l.From.FullName(), To: l.To.FullName()})
	}

	kinds, err := signal.Propagate(g)
	if err != nil {
		return nil, err
	}
	for name, k := range kinds {
		if k == signal.Unknown {
			kinds[name] = signal.Continuous
		}
	}
	if err := signal.Check(kinds, g.Links); err != nil {
		return nil, err
	}
	return kinds, nil
}

func hasContinuousPort(n *actor.Node, kinds map[string]signal.Kind) bool {
	for _, p := range n.Actor.Ports() {
		if kinds[p.FullName()] == signal.Continuous {
			return true
		}
	}
	return false
}

func filter(nodes []*actor.Node, keep func(*actor.Node) bool) []*actor.Node {
	var out []*actor.Node
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func reversed(nodes []*actor.Node) []*actor.Node {
	out := make([]*actor.Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}
