package actor

import (
	"fmt"

	"github.com/roach88/hysim/internal/signal"
)

// Link is one directed connection inside a composite.
type Link struct {
	From *Port
	To   *Port
}

// Composite is one hierarchy level: actors, their links and the boundary
// ports that face an enclosing level.
//
// Boundary ports are seen from the inside: a boundary input is a source
// (Output direction) and a boundary output is a sink (Input direction) whose
// receivers the enclosing actor reads.
//
// Every structural change bumps Version so cached schedules can tell they are
// stale.
type Composite struct {
	name    string
	nodes   []*Node
	byName  map[string]*Node
	inputs  []*Port
	outputs []*Port
	links   []Link
	version uint64
}

// NewComposite creates an empty composite.
func NewComposite(name string) *Composite {
	return &Composite{name: name, byName: make(map[string]*Node)}
}

func (c *Composite) Name() string { return c.name }

// Version increases on every structural mutation.
func (c *Composite) Version() uint64 { return c.version }

// Add places a in the composite and records its capabilities.
func (c *Composite) Add(a Actor) (*Node, error) {
	if a.Name() == "" {
		return nil, fmt.Errorf("composite %s: actor name is empty", c.name)
	}
	if _, dup := c.byName[a.Name()]; dup {
		return nil, fmt.Errorf("composite %s: duplicate actor %q", c.name, a.Name())
	}
	n := &Node{Actor: a, Caps: CapabilitiesOf(a), Index: len(c.nodes)}
	c.nodes = append(c.nodes, n)
	c.byName[a.Name()] = n
	c.version++
	return n, nil
}

// MustAdd is Add for model construction code that cannot fail.
func (c *Composite) MustAdd(a Actor) *Node {
	n, err := c.Add(a)
	if err != nil {
		panic(err)
	}
	return n
}

// Remove deletes the named actor and every link touching it.
func (c *Composite) Remove(name string) error {
	n, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("composite %s: no actor %q", c.name, name)
	}
	delete(c.byName, name)
	c.nodes = append(c.nodes[:n.Index], c.nodes[n.Index+1:]...)
	for i, m := range c.nodes {
		m.Index = i
	}

	kept := c.links[:0]
	for _, l := range c.links {
		if (l.From.owner == name && !l.From.boundary) || (l.To.owner == name && !l.To.boundary) {
			continue
		}
		kept = append(kept, l)
	}
	c.links = kept
	c.rewire()
	c.version++
	return nil
}

// BoundaryInput adds a port through which the enclosing level feeds this one.
func (c *Composite) BoundaryInput(name string, kind signal.Kind) *Port {
	p := newPort(c.name, name, Output, kind)
	p.boundary = true
	c.inputs = append(c.inputs, p)
	c.version++
	return p
}

// BoundaryOutput adds a port through which this level feeds the enclosing one.
func (c *Composite) BoundaryOutput(name string, kind signal.Kind) *Port {
	p := newPort(c.name, name, Input, kind)
	p.boundary = true
	c.outputs = append(c.outputs, p)
	c.version++
	return p
}

// Connect links an output (or boundary input) to an input (or boundary
// output).
func (c *Composite) Connect(from, to *Port) error {
	if from == nil || to == nil {
		return fmt.Errorf("composite %s: connect with nil port", c.name)
	}
	if !c.owns(from) {
		return fmt.Errorf("composite %s: port %s is not in this composite", c.name, from.FullName())
	}
	if !c.owns(to) {
		return fmt.Errorf("composite %s: port %s is not in this composite", c.name, to.FullName())
	}
	if !from.IsOutput() {
		return fmt.Errorf("composite %s: %s cannot drive a link", c.name, from)
	}
	if !to.IsInput() {
		return fmt.Errorf("composite %s: %s cannot receive a link", c.name, to)
	}
	c.links = append(c.links, Link{From: from, To: to})
	c.attach(from, to)
	c.version++
	return nil
}

// Nodes returns the actors in declaration order.
func (c *Composite) Nodes() []*Node {
	out := make([]*Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Node returns the named actor record.
func (c *Composite) Node(name string) (*Node, bool) {
	n, ok := c.byName[name]
	return n, ok
}

// Links returns the connections in creation order.
func (c *Composite) Links() []Link {
	out := make([]Link, len(c.links))
	copy(out, c.links)
	return out
}

func (c *Composite) BoundaryInputs() []*Port  { return c.inputs }
func (c *Composite) BoundaryOutputs() []*Port { return c.outputs }

// Ports returns every port in the composite: boundary inputs, actor ports in
// declaration order, then boundary outputs.
func (c *Composite) Ports() []*Port {
	var out []*Port
	out = append(out, c.inputs...)
	for _, n := range c.nodes {
		out = append(out, n.Actor.Ports()...)
	}
	return append(out, c.outputs...)
}

// ApplyKinds records resolved signal kinds and rebuilds every receiver to
// match. Buffered tokens are dropped.
func (c *Composite) ApplyKinds(kinds map[string]signal.Kind) {
	for _, p := range c.Ports() {
		if k, ok := kinds[p.FullName()]; ok {
			p.resolved = k
		}
		p.buildReceivers()
	}
}

// ClearDiscrete drops every pending discrete event at this level.
func (c *Composite) ClearDiscrete() {
	for _, p := range c.Ports() {
		p.ClearDiscrete()
	}
}

// ResetReceivers empties every receiver at this level.
func (c *Composite) ResetReceivers() {
	for _, p := range c.Ports() {
		p.Reset()
	}
}

func (c *Composite) owns(p *Port) bool {
	if p.boundary {
		for _, b := range c.inputs {
			if b == p {
				return true
			}
		}
		for _, b := range c.outputs {
			if b == p {
				return true
			}
		}
		return false
	}
	n, ok := c.byName[p.owner]
	if !ok {
		return false
	}
	for _, q := range n.Actor.Ports() {
		if q == p {
			return true
		}
	}
	return false
}

func (c *Composite) attach(from, to *Port) {
	ch := len(to.peers)
	from.peers = append(from.peers, to)
	from.sinks = append(from.sinks, sink{port: to, channel: ch})
	to.peers = append(to.peers, from)
	to.receivers = nil
}

func (c *Composite) rewire() {
	for _, p := range c.Ports() {
		p.clearLinks()
	}
	for _, l := range c.links {
		c.attach(l.From, l.To)
	}
}
