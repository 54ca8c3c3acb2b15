// Package actor is the actor/port boundary the scheduler and director
// consume: the lifecycle interface, the optional capability interfaces, ports
// with per-link receivers, and the Composite that holds one hierarchy level.
package actor

import (
	"context"
	"log/slog"

	"github.com/roach88/hysim/internal/signal"
	"github.com/roach88/hysim/internal/simtime"
	"github.com/roach88/hysim/internal/solver"
)

// Env is the director's view handed to every actor call.
type Env interface {
	Now() simtime.Time
	StepSize() float64
	Resolution() simtime.Resolution

	// Solver returns the active solver, or nil outside an iteration.
	Solver() solver.Solver

	// IsDiscretePhase reports whether the director is resolving the discrete
	// fixed point at a frozen instant.
	IsDiscretePhase() bool

	// IsBreakpointIteration reports whether the current instant is a
	// breakpoint (states may be discontinuous).
	IsBreakpointIteration() bool

	// FireAt registers a mandatory firing time. Times in the past fail.
	FireAt(a Actor, t simtime.Time) error

	// Context is done once the run is cancelled or stopped. Actors hosting
	// nested models hand it down.
	Context() context.Context

	Logger() *slog.Logger
}

// Actor is the lifecycle every node in a composite implements.
//
// Prefire returning false skips Fire for this round. Postfire commits the
// round's effects; returning false asks the director not to fire the actor
// again.
type Actor interface {
	Name() string
	Ports() []*Port
	Initialize(env Env) error
	Prefire(env Env) (bool, error)
	Fire(env Env) error
	Postfire(env Env) (bool, error)
}

// Dynamic actors integrate their input. Their state output must exist before
// any actor consuming it fires.
type Dynamic interface {
	Actor
	EmitTentativeOutputs(env Env) error
}

// Handle is an opaque saved state returned by Stateful.Save.
type Handle any

// Stateful actors can be checkpointed and rolled back.
type Stateful interface {
	Actor
	Save() Handle
	Restore(h Handle) error
}

// EventGenerator actors turn continuous behaviour into discrete events.
// Fire detects; Emit publishes a detected event during the discrete phase.
type EventGenerator interface {
	Actor
	HasEvent(env Env) bool
	Emit(env Env) error
}

// WaveformGenerator actors turn discrete events into continuous waveforms.
type WaveformGenerator interface {
	Actor
	Consume(env Env) error
}

// StepSizeControl actors take part in step-size selection.
type StepSizeControl interface {
	Actor
	IsAccurate(env Env) bool
	Refine(env Env) float64
	Predict(env Env) float64
}

// TransparentSubsystem actors wrap an inner director and forward its
// step-size opinions upward.
type TransparentSubsystem interface {
	StepSizeControl
	Inner() *Composite
}

// Base supplies names, ports and no-op lifecycle methods. Concrete actors
// embed it and override what they need.
type Base struct {
	name  string
	ports []*Port
}

// NewBase creates a Base for an actor called name.
func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Ports() []*Port { return b.ports }

// Input adds an input port.
func (b *Base) Input(name string, kind signal.Kind) *Port {
	p := newPort(b.name, name, Input, kind)
	b.ports = append(b.ports, p)
	return p
}

// Output adds an output port.
func (b *Base) Output(name string, kind signal.Kind) *Port {
	p := newPort(b.name, name, Output, kind)
	b.ports = append(b.ports, p)
	return p
}

// Port returns the named port, or nil.
func (b *Base) Port(name string) *Port {
	for _, p := range b.ports {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (b *Base) Initialize(Env) error { return nil }

func (b *Base) Prefire(Env) (bool, error) { return true, nil }

func (b *Base) Fire(Env) error { return nil }

func (b *Base) Postfire(Env) (bool, error) { return true, nil }
