package director

// Phase names what the director is doing right now. Actors may query it
// through their Env indirectly (IsDiscretePhase); logs and errors carry it.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCreatingStartingStates
	PhasePrefiringDynamicActors
	PhaseFiringStateTransitionActors
	PhaseFiringDynamicActors
	PhaseFiringEventGenerators
	PhaseGeneratingEvents
	PhaseGeneratingWaveforms
	PhaseProducingOutputs
	PhaseUpdatingContinuousStates
	PhasePostfiringEventGenerators
	PhaseSolvingStates
	PhaseFiringPurelyDiscrete
)

var phaseNames = [...]string{
	PhaseIdle:                        "idle",
	PhaseCreatingStartingStates:      "creating-starting-states",
	PhasePrefiringDynamicActors:      "prefiring-dynamic-actors",
	PhaseFiringStateTransitionActors: "firing-state-transition-actors",
	PhaseFiringDynamicActors:         "firing-dynamic-actors",
	PhaseFiringEventGenerators:       "firing-event-generators",
	PhaseGeneratingEvents:            "generating-events",
	PhaseGeneratingWaveforms:         "generating-waveforms",
	PhaseProducingOutputs:            "producing-outputs",
	PhaseUpdatingContinuousStates:    "updating-continuous-states",
	PhasePostfiringEventGenerators:   "postfiring-event-generators",
	PhaseSolvingStates:               "solving-states",
	PhaseFiringPurelyDiscrete:        "firing-purely-discrete",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
