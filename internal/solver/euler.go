package solver

import "math"

const (
	ForwardEulerName  = "forward-euler"
	BackwardEulerName = "backward-euler"
)

// ForwardEuler is the explicit one-round method x(t+h) = x(t) + h*x'(t).
type ForwardEuler struct {
	base
}

func (s *ForwardEuler) Name() string             { return ForwardEulerName }
func (s *ForwardEuler) IsBreakpointSolver() bool { return false }
func (s *ForwardEuler) AuxVariableCount() int    { return 0 }
func (s *ForwardEuler) HistoryCapacity() int     { return 0 }

// ResolveStates fires the dynamic actors once with inputs from the
// iteration begin time, then moves time to the end of the step.
func (s *ForwardEuler) ResolveStates() (bool, error) {
	if err := s.exec.FireDynamicActors(); err != nil {
		return false, err
	}
	s.incrementRound()
	s.endOfStep()
	return true, nil
}

func (s *ForwardEuler) IntegratorFire(i Integrable) error {
	i.SetTentativeState(i.State() + s.exec.StepSize()*i.BeginDerivative())
	return nil
}

// BackwardEuler is the implicit method x(t+h) = x(t) + h*x'(t+h), solved by
// fixed-point iteration until every tentative state moves by less than the
// value resolution between rounds.
type BackwardEuler struct {
	base
	pass      int
	converged bool
}

func (s *BackwardEuler) Name() string             { return BackwardEulerName }
func (s *BackwardEuler) IsBreakpointSolver() bool { return false }
func (s *BackwardEuler) AuxVariableCount() int    { return 0 }
func (s *BackwardEuler) HistoryCapacity() int     { return 0 }

func (s *BackwardEuler) ResolveStates() (bool, error) {
	s.endOfStep()
	limit := s.exec.MaxIterations()
	if limit < 2 {
		limit = 2
	}
	for s.pass = 0; s.pass < limit; s.pass++ {
		s.converged = true
		if err := s.exec.FireDynamicActors(); err != nil {
			return false, err
		}
		s.incrementRound()
		if err := s.exec.EmitDynamicStates(); err != nil {
			return false, err
		}
		if err := s.exec.FireStateTransitionActors(); err != nil {
			return false, err
		}
		if s.converged {
			return true, nil
		}
	}
	return false, nil
}

// IntegratorFire on the first pass uses the begin-time derivative as a
// predictor; later passes use the derivative re-evaluated at the tentative
// end state.
func (s *BackwardEuler) IntegratorFire(i Integrable) error {
	f := i.BeginDerivative()
	if s.pass > 0 {
		var err error
		if f, err = i.Derivative(); err != nil {
			return err
		}
	}
	next := i.State() + s.exec.StepSize()*f
	if s.pass == 0 || math.Abs(next-i.TentativeState()) > s.exec.ValueResolution() {
		s.converged = false
	}
	i.SetTentativeState(next)
	return nil
}
