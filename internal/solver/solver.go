// Package solver defines the pluggable numeric integration strategy the
// director drives, and a small registry of concrete methods.
//
// A solver plays one of two roles. A normal solver advances model time by
// the director's step size. A breakpoint solver resolves states at a frozen
// instant: it never advances time and needs no history.
package solver

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/hysim/internal/simtime"
)

// NoOpinion is returned by step-size queries that have nothing to say.
var NoOpinion = math.Inf(1)

// Executor is the director-side surface a solver drives during one step.
type Executor interface {
	IterationBeginTime() simtime.Time
	StepSize() float64
	InitialStepSize() float64

	// SetModelTime moves model time within the current iteration.
	SetModelTime(t simtime.Time)

	// FireDynamicActors fires the dynamic list in reversed topological order.
	FireDynamicActors() error

	// EmitDynamicStates has each dynamic actor publish its tentative state.
	EmitDynamicStates() error

	// FireStateTransitionActors fires the state-transition list.
	FireStateTransitionActors() error

	MaxIterations() int
	ValueResolution() float64
	ErrorTolerance() float64
}

// HistoryPoint is one committed (state, derivative) sample and the step that
// ended at it.
type HistoryPoint struct {
	State      float64
	Derivative float64
	Step       float64
}

// Integrable is the view of a dynamic actor a solver needs.
type Integrable interface {
	Name() string

	// State is the committed state at the iteration begin time.
	State() float64
	TentativeState() float64
	SetTentativeState(v float64)

	// BeginDerivative is the input sampled when State was committed. Solvers
	// use it for the first stage so a rejected attempt cannot leak into the
	// retry.
	BeginDerivative() float64

	// Derivative reads the current input.
	Derivative() (float64, error)

	// AuxVariables is scratch storage sized by AuxVariableCount.
	AuxVariables() []float64

	// History returns committed samples, newest first, at most
	// HistoryCapacity long. Each holds the state and input at the end of a
	// committed step and the length of that step.
	History() []HistoryPoint
}

// Solver is one numeric integration method bound to an executor.
type Solver interface {
	Name() string
	IsBreakpointSolver() bool
	AuxVariableCount() int
	HistoryCapacity() int

	// ResolveStates attempts to resolve every dynamic state for the current
	// step. False means the method did not converge and the step should be
	// refined.
	ResolveStates() (bool, error)

	// IntegratorFire computes the tentative state of one dynamic actor for
	// the solver's current round.
	IntegratorFire(i Integrable) error

	IntegratorIsAccurate(i Integrable) bool
	IntegratorRefinedStepSize(i Integrable) float64
	IntegratorPredictedStepSize(i Integrable) float64

	// Round is the number of evaluation rounds since the last ResetRound.
	Round() int
	ResetRound()
}

// Factory creates a solver bound to an executor.
type Factory func(exec Executor) Solver

var registry = map[string]Factory{
	ForwardEulerName:       func(e Executor) Solver { return &ForwardEuler{base: base{exec: e}} },
	BackwardEulerName:      func(e Executor) Solver { return &BackwardEuler{base: base{exec: e}} },
	HeunEulerName:          func(e Executor) Solver { return &HeunEuler{base: base{exec: e}} },
	AdamsBashforth2Name:    func(e Executor) Solver { return &AdamsBashforth2{base: base{exec: e}} },
	DerivativeResolverName: func(e Executor) Solver { return &DerivativeResolver{base: base{exec: e}} },
}

// New creates the named solver bound to exec.
func New(name string, exec Executor) (Solver, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown solver %q (known: %v)", name, Names())
	}
	return f(exec), nil
}

// Names lists registered solver names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// base carries the executor and round counter shared by every method.
type base struct {
	exec  Executor
	round int
}

func (b *base) Round() int { return b.round }

func (b *base) ResetRound() { b.round = 0 }

func (b *base) incrementRound() { b.round++ }

// explicit step-size answers for methods without an error estimate.
func (b *base) IntegratorIsAccurate(Integrable) bool { return true }

func (b *base) IntegratorRefinedStepSize(Integrable) float64 { return b.exec.StepSize() }

func (b *base) IntegratorPredictedStepSize(Integrable) float64 { return b.exec.InitialStepSize() }

// endOfStep moves model time to the end of the step.
func (b *base) endOfStep() {
	b.exec.SetModelTime(b.exec.IterationBeginTime().Add(b.exec.StepSize()))
}
