package solver

import "math"

const HeunEulerName = "heun-euler"

// Auxiliary slots used by HeunEuler.
const (
	heunK1 = iota
	heunK2
	heunErr
	heunAuxCount
)

// HeunEuler is the two-stage explicit trapezoid method with the Euler
// predictor as an embedded error estimate. It is the only registered normal
// solver that participates in step-size control.
type HeunEuler struct {
	base
	stage int
}

func (s *HeunEuler) Name() string             { return HeunEulerName }
func (s *HeunEuler) IsBreakpointSolver() bool { return false }
func (s *HeunEuler) AuxVariableCount() int    { return heunAuxCount }
func (s *HeunEuler) HistoryCapacity() int     { return 0 }

func (s *HeunEuler) ResolveStates() (bool, error) {
	s.stage = 0
	if err := s.exec.FireDynamicActors(); err != nil {
		return false, err
	}
	s.incrementRound()

	s.endOfStep()
	if err := s.exec.EmitDynamicStates(); err != nil {
		return false, err
	}
	if err := s.exec.FireStateTransitionActors(); err != nil {
		return false, err
	}

	s.stage = 1
	if err := s.exec.FireDynamicActors(); err != nil {
		return false, err
	}
	s.incrementRound()
	return true, nil
}

func (s *HeunEuler) IntegratorFire(i Integrable) error {
	f := i.BeginDerivative()
	if s.stage > 0 {
		var err error
		if f, err = i.Derivative(); err != nil {
			return err
		}
	}
	aux := i.AuxVariables()
	if len(aux) < heunAuxCount {
		return errAuxTooSmall(s, i, len(aux))
	}
	h := s.exec.StepSize()
	switch s.stage {
	case 0:
		aux[heunK1] = f
		i.SetTentativeState(i.State() + h*f)
	default:
		aux[heunK2] = f
		aux[heunErr] = math.Abs(h / 2 * (f - aux[heunK1]))
		i.SetTentativeState(i.State() + h/2*(aux[heunK1]+f))
	}
	return nil
}

func (s *HeunEuler) IntegratorIsAccurate(i Integrable) bool {
	aux := i.AuxVariables()
	if len(aux) < heunAuxCount {
		return true
	}
	return aux[heunErr] <= s.exec.ErrorTolerance()
}

func (s *HeunEuler) IntegratorRefinedStepSize(i Integrable) float64 {
	h := s.exec.StepSize()
	aux := i.AuxVariables()
	if len(aux) < heunAuxCount || aux[heunErr] <= 0 {
		return h
	}
	factor := 0.9 * math.Sqrt(s.exec.ErrorTolerance()/aux[heunErr])
	return h * math.Max(0.2, math.Min(factor, 0.9))
}

func (s *HeunEuler) IntegratorPredictedStepSize(i Integrable) float64 {
	h := s.exec.StepSize()
	aux := i.AuxVariables()
	if len(aux) < heunAuxCount || aux[heunErr] <= 0 {
		return 2 * h
	}
	factor := 0.9 * math.Sqrt(s.exec.ErrorTolerance()/aux[heunErr])
	return h * math.Max(0.5, math.Min(factor, 2))
}
