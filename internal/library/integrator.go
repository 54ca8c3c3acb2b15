package library

import (
	"fmt"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/signal"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/solver"
)

// defaultHistory is kept when no solver is active at commit time.
const defaultHistory = 2

// Integrator outputs the integral of its input. The active solver computes
// the tentative state; Postfire commits it together with the input sampled
// at the new time.
type Integrator struct {
	actor.Base
	In      *actor.Port
	Out     *actor.Port
	Initial float64

	state      float64
	tentative  float64
	beginDeriv float64
	aux        []float64
	history    []solver.HistoryPoint
}

func NewIntegrator(name string, initial float64) *Integrator {
	i := &Integrator{Base: actor.NewBase(name), Initial: initial}
	i.In = i.Base.Input("input", signal.Continuous)
	i.Out = i.Base.Output("output", signal.Continuous)
	return i
}

func (i *Integrator) Initialize(actor.Env) error {
	i.state = i.Initial
	i.tentative = i.Initial
	i.beginDeriv = 0
	i.aux = nil
	i.history = nil
	return nil
}

// Fire asks the active solver for this round's tentative state.
func (i *Integrator) Fire(env actor.Env) error {
	s := env.Solver()
	if s == nil {
		return simerr.NewMisconfigured(i.Name(), "integrator fired with no active solver")
	}
	if n := s.AuxVariableCount(); len(i.aux) < n {
		i.aux = make([]float64, n)
	}
	return s.IntegratorFire(i)
}

func (i *Integrator) EmitTentativeOutputs(actor.Env) error {
	i.Out.Send(i.tentative)
	return nil
}

func (i *Integrator) Postfire(env actor.Env) (bool, error) {
	d, err := i.Derivative()
	if err != nil {
		return false, err
	}
	switch {
	case env.IsBreakpointIteration():
		// States may jump here; older samples no longer describe them.
		i.history = nil
	case !env.IsDiscretePhase():
		limit := defaultHistory
		if s := env.Solver(); s != nil {
			limit = s.HistoryCapacity()
		}
		i.pushHistory(solver.HistoryPoint{State: i.tentative, Derivative: d, Step: env.StepSize()}, limit)
	}
	i.state = i.tentative
	i.beginDeriv = d
	return true, nil
}

func (i *Integrator) pushHistory(p solver.HistoryPoint, limit int) {
	if limit <= 0 {
		i.history = nil
		return
	}
	i.history = append([]solver.HistoryPoint{p}, i.history...)
	if len(i.history) > limit {
		i.history = i.history[:limit]
	}
}

// solver.Integrable.

func (i *Integrator) State() float64                 { return i.state }
func (i *Integrator) TentativeState() float64        { return i.tentative }
func (i *Integrator) SetTentativeState(v float64)    { i.tentative = v }
func (i *Integrator) BeginDerivative() float64       { return i.beginDeriv }
func (i *Integrator) AuxVariables() []float64        { return i.aux }
func (i *Integrator) History() []solver.HistoryPoint { return i.history }

// Derivative reads the current input; an unconnected input integrates zero.
func (i *Integrator) Derivative() (float64, error) {
	return read(i.In)
}

// Step-size control is delegated to the active solver.

func (i *Integrator) IsAccurate(env actor.Env) bool {
	if s := env.Solver(); s != nil {
		return s.IntegratorIsAccurate(i)
	}
	return true
}

func (i *Integrator) Refine(env actor.Env) float64 {
	if s := env.Solver(); s != nil {
		return s.IntegratorRefinedStepSize(i)
	}
	return env.StepSize()
}

func (i *Integrator) Predict(env actor.Env) float64 {
	if s := env.Solver(); s != nil {
		return s.IntegratorPredictedStepSize(i)
	}
	return solver.NoOpinion
}

type integratorState struct {
	state      float64
	beginDeriv float64
	history    []solver.HistoryPoint
}

func (i *Integrator) Save() actor.Handle {
	h := integratorState{state: i.state, beginDeriv: i.beginDeriv}
	h.history = append(h.history, i.history...)
	return h
}

func (i *Integrator) Restore(h actor.Handle) error {
	s, ok := h.(integratorState)
	if !ok {
		return errBadHandle(i, h)
	}
	i.state = s.state
	i.tentative = s.state
	i.beginDeriv = s.beginDeriv
	i.history = append([]solver.HistoryPoint(nil), s.history...)
	return nil
}

func errBadHandle(a actor.Actor, h actor.Handle) error {
	return simerr.NewInternal(a.Name(), fmt.Sprintf("cannot restore from %T", h))
}
