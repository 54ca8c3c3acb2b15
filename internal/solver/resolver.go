package solver

import (
	"fmt"

	"github.com/roach88/hysim/internal/simerr"
)

const DerivativeResolverName = "derivative-resolver"

// DerivativeResolver is the breakpoint solver. It holds every state at its
// committed value and re-evaluates the state-transition actors so that
// derivatives and outputs are consistent at a frozen instant.
type DerivativeResolver struct {
	base
}

func (s *DerivativeResolver) Name() string             { return DerivativeResolverName }
func (s *DerivativeResolver) IsBreakpointSolver() bool { return true }
func (s *DerivativeResolver) AuxVariableCount() int    { return 0 }
func (s *DerivativeResolver) HistoryCapacity() int     { return 0 }

func (s *DerivativeResolver) ResolveStates() (bool, error) {
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
	return true, nil
}

func (s *DerivativeResolver) IntegratorFire(i Integrable) error {
	i.SetTentativeState(i.State())
	return nil
}

// Breakpoint iterations have no step to judge or predict.
func (s *DerivativeResolver) IntegratorPredictedStepSize(Integrable) float64 { return NoOpinion }

func errAuxTooSmall(s Solver, i Integrable, have int) error {
	return simerr.NewMisconfigured(i.Name(),
		fmt.Sprintf("solver %s needs %d auxiliary variables, actor has %d", s.Name(), s.AuxVariableCount(), have))
}
