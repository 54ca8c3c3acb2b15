package director

import (
	"context"
	"math"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/simtime"
	"github.com/roach88/hysim/internal/solver"
	"github.com/roach88/hysim/internal/trace"
)

// resolveDiscrete repeats discrete passes at the current instant until no
// breakpoint is due and no event generator has a pending event. Time does
// not move.
func (d *Director) resolveDiscrete(ctx context.Context) error {
	d.discretePhase = true
	d.current = d.breakpoint
	d.stepEnd = d.Now()
	defer func() {
		d.discretePhase = false
		d.breakpointIteration = false
		d.current = nil
		d.phase = PhaseIdle
	}()

	for micro := 0; ; micro++ {
		if d.halted(ctx) {
			return nil
		}
		due := d.breakpoints.ConsumeAt(d.Now())
		pending := d.pendingEvent()
		if !due && pending == nil {
			return nil
		}
		if micro >= d.cfg.MaxMicrosteps {
			name := d.composite.Name()
			if pending != nil {
				name = pending.Name()
			}
			err := simerr.NewDiscreteLivelock(name, micro).At(d.Now().Float())
			d.logger.Error("discrete phase did not settle", "time", d.Now().Float(), "error", err)
			return err
		}
		if due {
			d.logger.Debug("breakpoint reached", "time", d.Now().Float())
			if err := d.recordEvent(trace.EventBreakpoint, "", d.Now(), 0); err != nil {
				return err
			}
		}
		d.breakpointIteration = true
		d.stats.Microsteps++
		if err := d.discretePass(); err != nil {
			return err
		}
	}
}

// discretePass is one microstep of the discrete fixed point.
func (d *Director) discretePass() error {
	d.phase = PhaseGeneratingEvents
	for _, n := range d.schedule.EventGenerators {
		if d.disabled[n] || !n.EventGenerator().HasEvent(d) {
			continue
		}
		if err := n.EventGenerator().Emit(d); err != nil {
			return d.fail(n, err)
		}
		if err := d.recordEvent(trace.EventEmitted, n.Name(), d.Now(), 0); err != nil {
			return err
		}
	}

	d.phase = PhaseFiringPurelyDiscrete
	for _, n := range d.schedule.Discrete {
		if err := d.fire(n); err != nil {
			return err
		}
		if err := d.postfire(n); err != nil {
			return err
		}
	}

	d.phase = PhaseGeneratingWaveforms
	for _, n := range d.schedule.WaveformGenerators {
		if d.disabled[n] {
			continue
		}
		if err := n.WaveformGenerator().Consume(d); err != nil {
			return d.fail(n, err)
		}
	}

	d.phase = PhaseSolvingStates
	d.breakpoint.ResetRound()
	if _, err := d.breakpoint.ResolveStates(); err != nil {
		return d.fail(nil, err)
	}
	d.stats.Rounds += d.breakpoint.Round()
	if err := d.produceOutputs(); err != nil {
		return err
	}
	if err := d.fireEventGenerators(); err != nil {
		return err
	}
	if err := d.postfireContinuous(); err != nil {
		return err
	}
	d.composite.ClearDiscrete()
	return nil
}

func (d *Director) pendingEvent() *actor.Node {
	for _, n := range d.schedule.EventGenerators {
		if !d.disabled[n] && n.EventGenerator().HasEvent(d) {
			return n
		}
	}
	return nil
}

// step integrates from the current time to a later one and commits. It
// returns false without committing if the director was stopped or ctx was
// cancelled mid-step; time is then back at the iteration begin.
func (d *Director) step(ctx context.Context) (bool, error) {
	begin := d.Now()
	d.iterationBegin = begin
	d.current = d.normal
	d.breakpointIteration = false
	defer func() {
		d.current = nil
		d.phase = PhaseIdle
	}()

	h, end := d.trialStep(begin)
	retries, rounds := 0, 0
	for {
		if d.halted(ctx) {
			d.clock.Rewind(begin)
			return false, nil
		}
		d.stepSize = h
		d.stepEnd = end
		d.clock.Rewind(begin)

		d.phase = PhaseSolvingStates
		d.normal.ResetRound()
		ok, err := d.normal.ResolveStates()
		rounds += d.normal.Round()
		if err != nil {
			return false, d.fail(nil, err)
		}
		if !ok {
			d.logger.Debug("solver did not converge", "solver", d.normal.Name(), "time", begin.Float(), "step", h)
			if h, err = d.refine(begin, h, h/2, nil); err != nil {
				return false, err
			}
			end = begin.Add(h)
			retries++
			continue
		}
		if accurate, proposal, culprit := d.accuracy(d.schedule.StateStepControl); !accurate {
			if h, err = d.refine(begin, h, proposal, culprit); err != nil {
				return false, err
			}
			end = begin.Add(h)
			retries++
			continue
		}

		if err := d.produceOutputs(); err != nil {
			return false, err
		}
		if err := d.fireEventGenerators(); err != nil {
			return false, err
		}
		if accurate, proposal, culprit := d.accuracy(d.schedule.OutputStepControl); !accurate {
			if h, err = d.refine(begin, h, proposal, culprit); err != nil {
				return false, err
			}
			end = begin.Add(h)
			retries++
			continue
		}
		break
	}

	if err := d.postfireContinuous(); err != nil {
		return false, err
	}
	d.refined = retries > 0
	d.suggestedStepSize = d.predict(h)

	d.stats.Steps++
	d.stats.FailedSteps += retries
	d.stats.Rounds += rounds
	rec := trace.StepRecord{
		Seq:      d.seq.Next(),
		Begin:    begin.Float(),
		End:      d.Now().Float(),
		StepSize: h,
		Solver:   d.normal.Name(),
		Rounds:   rounds,
		Retries:  retries,
	}
	if d.probe != nil {
		rec.States = d.probe()
	}
	if err := d.recorder.RecordStep(rec); err != nil {
		return false, err
	}
	d.logger.Debug("step committed",
		"begin", begin.Float(),
		"end", d.Now().Float(),
		"step", h,
		"retries", retries,
		"next", d.suggestedStepSize)
	return true, nil
}

// trialStep picks the first step to try from begin and its exact end time.
// A step clipped to a breakpoint or the horizon ends exactly there.
func (d *Director) trialStep(begin simtime.Time) (float64, simtime.Time) {
	h := math.Min(d.suggestedStepSize, d.cfg.MaxStepSize)
	end := begin.Add(h)
	if bp, ok := d.breakpoints.Next(begin); ok && !d.resolution.Before(end, bp) {
		h, end = bp.Sub(begin), bp
	}
	if !d.horizon.IsInf() && !d.resolution.Before(end, d.horizon) {
		h, end = d.horizon.Sub(begin), d.horizon
	}
	return h, end
}

// accuracy asks every step-size control actor in nodes whether the current
// step is acceptable. When one is not, it returns the smallest refinement and
// the actor that asked for it.
func (d *Director) accuracy(nodes []*actor.Node) (bool, float64, *actor.Node) {
	accurate := true
	proposal := solver.NoOpinion
	var culprit *actor.Node
	for _, n := range nodes {
		if d.disabled[n] {
			continue
		}
		c := n.StepSizeControl()
		if c.IsAccurate(d) {
			continue
		}
		accurate = false
		if r := c.Refine(d); r < proposal || culprit == nil {
			proposal, culprit = math.Min(r, proposal), n
		}
	}
	return accurate, proposal, culprit
}

// refine returns the step to retry with. Proposals that do not shrink the
// step halve it instead; anything below half the minimum step is fatal.
func (d *Director) refine(begin simtime.Time, h, proposal float64, culprit *actor.Node) (float64, error) {
	next := proposal
	if !(next < h) || next <= 0 {
		next = h / 2
	}
	floor := d.cfg.MinStepSize / 2
	if next < floor {
		name := d.composite.Name()
		if culprit != nil {
			name = culprit.Name()
		}
		err := simerr.NewAccuracyExhausted(name, next, floor).At(begin.Float())
		d.logger.Error("step size exhausted", "time", begin.Float(), "error", err)
		return 0, err
	}
	by := ""
	if culprit != nil {
		by = culprit.Name()
	}
	d.logger.Debug("step refined", "time", begin.Float(), "from", h, "to", next, "actor", by)
	return next, nil
}

// predict is the smallest prediction of any step-size control actor, or
// five times the last step when none has an opinion, within [min, max].
func (d *Director) predict(h float64) float64 {
	p := solver.NoOpinion
	for _, list := range [][]*actor.Node{d.schedule.StateStepControl, d.schedule.OutputStepControl} {
		for _, n := range list {
			if d.disabled[n] {
				continue
			}
			p = math.Min(p, n.StepSizeControl().Predict(d))
		}
	}
	if math.IsInf(p, 1) {
		p = 5 * h
	}
	return math.Max(d.cfg.MinStepSize, math.Min(p, d.cfg.MaxStepSize))
}

// produceOutputs publishes tentative states and evaluates everything that
// depends on them.
func (d *Director) produceOutputs() error {
	d.phase = PhaseProducingOutputs
	if err := d.EmitDynamicStates(); err != nil {
		return err
	}
	if err := d.FireStateTransitionActors(); err != nil {
		return err
	}
	d.phase = PhaseProducingOutputs
	for _, n := range d.schedule.Output {
		if err := d.fire(n); err != nil {
			return err
		}
	}
	return nil
}

func (d *Director) fireEventGenerators() error {
	d.phase = PhaseFiringEventGenerators
	for _, n := range d.schedule.EventGenerators {
		if err := d.fire(n); err != nil {
			return err
		}
	}
	return nil
}

// postfireContinuous commits the continuous actors, then the event
// generators.
func (d *Director) postfireContinuous() error {
	d.phase = PhaseUpdatingContinuousStates
	for _, n := range d.schedule.Continuous {
		if n.Caps.Has(actor.CapEventGenerator) {
			continue
		}
		if err := d.postfire(n); err != nil {
			return err
		}
	}
	d.phase = PhasePostfiringEventGenerators
	for _, n := range d.schedule.EventGenerators {
		if err := d.postfire(n); err != nil {
			return err
		}
	}
	return nil
}
