package engine

import (
	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/library"
)

// stateProbe reports the state of every top-level integrator and of the
// integrators inside subsystems, keyed by their path.
func stateProbe(c *actor.Composite) func() map[string]float64 {
	return func() map[string]float64 {
		states := make(map[string]float64)
		collectStates(c, "", states)
		if len(states) == 0 {
			return nil
		}
		return states
	}
}

func collectStates(c *actor.Composite, prefix string, into map[string]float64) {
	for _, n := range c.Nodes() {
		switch a := n.Actor.(type) {
		case *library.Integrator:
			into[prefix+a.Name()] = a.State()
		case *library.Subsystem:
			collectStates(a.Inner(), prefix+a.Name()+".", into)
		}
	}
}
