package actor

import "strings"

// Capability is the set of optional roles an actor plays. It is computed once
// when the actor joins a composite.
type Capability uint8

const (
	CapDynamic Capability = 1 << iota
	CapStateful
	CapEventGenerator
	CapWaveformGenerator
	CapStepSizeControl
	CapTransparent
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapDynamic, "dynamic"},
	{CapStateful, "stateful"},
	{CapEventGenerator, "event-generator"},
	{CapWaveformGenerator, "waveform-generator"},
	{CapStepSizeControl, "step-size-control"},
	{CapTransparent, "transparent"},
}

// CapabilitiesOf inspects a for every capability interface.
func CapabilitiesOf(a Actor) Capability {
	var c Capability
	if _, ok := a.(Dynamic); ok {
		c |= CapDynamic
	}
	if _, ok := a.(Stateful); ok {
		c |= CapStateful
	}
	if _, ok := a.(EventGenerator); ok {
		c |= CapEventGenerator
	}
	if _, ok := a.(WaveformGenerator); ok {
		c |= CapWaveformGenerator
	}
	if _, ok := a.(StepSizeControl); ok {
		c |= CapStepSizeControl
	}
	if _, ok := a.(TransparentSubsystem); ok {
		c |= CapTransparent
	}
	return c
}

// Has reports whether every bit of x is set.
func (c Capability) Has(x Capability) bool { return c&x == x }

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c.Has(n.c) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Node is an actor record inside a composite.
type Node struct {
	Actor Actor
	Caps  Capability

	// Index is the declaration order within the composite.
	Index int
}

func (n *Node) Name() string { return n.Actor.Name() }

func (n *Node) Dynamic() Dynamic {
	d, _ := n.Actor.(Dynamic)
	return d
}

func (n *Node) Stateful() Stateful {
	s, _ := n.Actor.(Stateful)
	return s
}

func (n *Node) EventGenerator() EventGenerator {
	e, _ := n.Actor.(EventGenerator)
	return e
}

func (n *Node) WaveformGenerator() WaveformGenerator {
	w, _ := n.Actor.(WaveformGenerator)
	return w
}

func (n *Node) StepSizeControl() StepSizeControl {
	s, _ := n.Actor.(StepSizeControl)
	return s
}
