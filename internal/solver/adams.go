package solver

const AdamsBashforth2Name = "adams-bashforth-2"

// AdamsBashforth2 is the variable-step two-step explicit method. It needs the
// input sample from one step back; without it (at start-up or right after a
// breakpoint cleared the history) it takes a forward Euler step.
type AdamsBashforth2 struct {
	base
}

func (s *AdamsBashforth2) Name() string             { return AdamsBashforth2Name }
func (s *AdamsBashforth2) IsBreakpointSolver() bool { return false }
func (s *AdamsBashforth2) AuxVariableCount() int    { return 0 }
func (s *AdamsBashforth2) HistoryCapacity() int     { return 2 } // current point and the one before

func (s *AdamsBashforth2) ResolveStates() (bool, error) {
	if err := s.exec.FireDynamicActors(); err != nil {
		return false, err
	}
	s.incrementRound()
	s.endOfStep()
	return true, nil
}

// IntegratorFire uses the two newest history samples: hist[0] is the
// current state and hist[1] the one before, hist[0].Step apart.
func (s *AdamsBashforth2) IntegratorFire(i Integrable) error {
	f := i.BeginDerivative()
	h := s.exec.StepSize()
	hist := i.History()
	if len(hist) < 2 || hist[0].Step <= 0 {
		i.SetTentativeState(i.State() + h*f)
		return nil
	}
	prev := hist[1].Derivative
	hp := hist[0].Step
	i.SetTentativeState(i.State() + h*(f+h/(2*hp)*(f-prev)))
	return nil
}
