package director

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/simtime"
	"github.com/roach88/hysim/internal/solver"
)

// TimeAuthority is the outer executive an embedded director synchronises
// to. It is read-only apart from FireAt.
type TimeAuthority interface {
	CurrentTime() simtime.Time

	// IterationBeginTime is the last time the authority committed.
	IterationBeginTime() simtime.Time

	// NextIterationTime is the authority's own guess of its next time.
	NextIterationTime() simtime.Time

	// FireAt asks the authority to fire the embedded director again at t.
	FireAt(t simtime.Time) error
}

// iterationClock is implemented by environments that know their iteration
// boundaries. *Director is one.
type iterationClock interface {
	IterationBeginTime() simtime.Time
	NextIterationTime() simtime.Time
}

// AuthorityFor adapts an actor environment into the time authority of a
// director embedded in self.
func AuthorityFor(env actor.Env, self actor.Actor) TimeAuthority {
	return envAuthority{env: env, self: self}
}

type envAuthority struct {
	env  actor.Env
	self actor.Actor
}

func (a envAuthority) CurrentTime() simtime.Time { return a.env.Now() }

func (a envAuthority) IterationBeginTime() simtime.Time {
	if c, ok := a.env.(iterationClock); ok {
		return c.IterationBeginTime()
	}
	return a.env.Now()
}

func (a envAuthority) NextIterationTime() simtime.Time {
	if c, ok := a.env.(iterationClock); ok {
		return c.NextIterationTime()
	}
	return simtime.Time(math.Inf(1))
}

// FireAt ignores requests for the current instant: the parent is firing
// the subsystem right now.
func (a envAuthority) FireAt(t simtime.Time) error {
	if !a.env.Resolution().After(t, a.env.Now()) {
		return nil
	}
	return a.env.FireAt(a.self, t)
}

// Embedded runs a director under an outer time authority. Each Fire
// synchronises local time to the authority, rolling back to the last
// committed checkpoint when the authority is behind, then runs ahead by at
// most RunAheadLength and asks to be fired again where it stopped.
type Embedded struct {
	dir   *Director
	outer TimeAuthority

	// candidate is the state at the last fire target; Postfire commits it.
	candidate *Checkpoint

	onSync func(now simtime.Time) error

	accurate   bool
	refineTo   float64
	predictTo  float64
	lastTarget simtime.Time

	// requested is the last time passed to the authority's FireAt.
	requested *simtime.Time
}

// NewEmbedded creates an embedded director. A nil authority is a
// MISCONFIGURED error.
func NewEmbedded(c *actor.Composite, cfg Config, outer TimeAuthority, opts ...Option) (*Embedded, error) {
	if outer == nil {
		name := ""
		if c != nil {
			name = c.Name()
		}
		return nil, simerr.NewMisconfigured(name, "embedded director has no outer time authority")
	}
	d, err := New(c, cfg, opts...)
	if err != nil {
		return nil, err
	}
	e := &Embedded{dir: d, outer: outer, accurate: true, refineTo: solver.NoOpinion, predictTo: solver.NoOpinion}
	d.fireAtHook = e.forward
	return e, nil
}

// Director returns the inner director.
func (e *Embedded) Director() *Director { return e.dir }

// OnSynchronized registers fn to run each time local time has been brought
// to the outer time and the discrete phase there has settled, before any
// run-ahead. Subsystems publish their outputs from it.
func (e *Embedded) OnSynchronized(fn func(now simtime.Time) error) {
	e.onSync = fn
}

// Initialize starts local time at the authority's current time and commits
// the first checkpoint there.
func (e *Embedded) Initialize() error {
	d := e.dir
	now := e.outer.CurrentTime()
	d.cfg.StartTime = now.Float()
	if d.cfg.StopTime < d.cfg.StartTime {
		d.cfg.StopTime = d.cfg.StartTime
	}
	d.clock.Rewind(now)
	e.requested = nil
	if err := d.Initialize(); err != nil {
		return err
	}
	e.accurate, e.refineTo, e.predictTo = true, solver.NoOpinion, solver.NoOpinion
	e.candidate = nil
	e.lastTarget = now
	return d.Mark()
}

// Fire brings local time to the authority's current time, settles the
// discrete phase there and runs ahead.
func (e *Embedded) Fire(ctx context.Context) error {
	d := e.dir
	if !d.initialized {
		return simerr.NewMisconfigured(d.composite.Name(), "embedded director is not initialized")
	}
	release := d.enter(ctx)
	defer release()
	if err := d.refreshSchedule(); err != nil {
		return err
	}
	target := e.outer.CurrentTime()
	e.lastTarget = target
	e.accurate, e.refineTo = true, solver.NoOpinion
	d.stats.Iterations++

	if d.resolution.Equal(target, d.Now()) {
		d.clock.Rewind(target)
	} else if target < d.Now() {
		if err := e.rollbackTo(ctx, target); err != nil {
			return err
		}
	} else {
		reached, err := e.advanceTo(ctx, target)
		if err != nil {
			return err
		}
		if !reached {
			return nil
		}
	}

	if err := d.resolveDiscrete(ctx); err != nil {
		return err
	}
	if err := d.refreshOutputs(); err != nil {
		return err
	}
	if e.onSync != nil {
		if err := e.onSync(target); err != nil {
			return err
		}
	}
	cp, err := d.snapshot()
	if err != nil {
		return err
	}
	e.candidate = cp

	outerNext := e.outer.NextIterationTime()
	gap := outerNext.Sub(target)
	if gap > 0 && gap < d.cfg.TimeResolution {
		d.logger.Debug("next outer iteration too near, requesting refire", "time", target.Float(), "next", outerNext.Float())
		return e.request(outerNext)
	}
	if err := e.runAhead(ctx, target.Add(e.runLength(gap))); err != nil {
		return err
	}
	e.predictTo = e.prediction(target)
	if !d.resolution.After(d.Now(), target) {
		return nil
	}
	return e.request(d.Now())
}

// forward passes an inner breakpoint ahead of the outer time up to the
// authority, so the subsystem is woken there.
func (e *Embedded) forward(t simtime.Time) error {
	if !e.dir.resolution.After(t, e.outer.CurrentTime()) {
		return nil
	}
	return e.request(t)
}

func (e *Embedded) request(t simtime.Time) error {
	if e.requested != nil && e.dir.resolution.Equal(*e.requested, t) {
		return nil
	}
	e.requested = &t
	return e.outer.FireAt(t)
}

// Postfire commits the state saved at the last fire target as the rollback
// point.
func (e *Embedded) Postfire() {
	if e.candidate != nil {
		e.dir.checkpoint = e.candidate
		e.candidate = nil
	}
}

// IsAccurate is false when the last fire found an inner breakpoint or event
// before the outer time.
func (e *Embedded) IsAccurate() bool { return e.accurate }

// RefinedStepSize is the outer step that ends at the inner breakpoint that
// made the last fire inaccurate.
func (e *Embedded) RefinedStepSize() float64 { return e.refineTo }

// PredictedStepSize bounds the next outer step so it does not pass the
// point the inner director has reached, or its next breakpoint.
func (e *Embedded) PredictedStepSize() float64 { return e.predictTo }

func (e *Embedded) runLength(gap float64) float64 {
	limit := e.dir.cfg.RunAheadLength
	if gap <= 0 || math.IsInf(gap, 1) {
		if limit > 0 {
			return limit
		}
		return e.dir.suggestedStepSize
	}
	if limit > 0 && gap > limit {
		return limit
	}
	return gap
}

func (e *Embedded) prediction(target simtime.Time) float64 {
	d := e.dir
	if d.resolution.After(d.Now(), target) {
		return d.Now().Sub(target)
	}
	if p := d.NextIterationTime().Sub(target); p > 0 {
		return p
	}
	return solver.NoOpinion
}

// rollbackTo restores the committed checkpoint and replays to target. The
// replay must not meet a breakpoint.
func (e *Embedded) rollbackTo(ctx context.Context, target simtime.Time) error {
	d := e.dir
	cp := d.checkpoint
	if cp == nil {
		return simerr.NewInternal(d.composite.Name(), "rollback without a checkpoint").At(d.Now().Float())
	}
	if d.resolution.Before(target, cp.Time) {
		return simerr.NewInternal(d.composite.Name(),
			fmt.Sprintf("time collapse: outer time %v is before the checkpoint at %v", target, cp.Time)).At(d.Now().Float())
	}
	if err := d.rollback(target); err != nil {
		return err
	}
	// A checkpoint taken before its own instant settled still owes that
	// discrete phase.
	if err := d.resolveDiscrete(ctx); err != nil {
		return err
	}
	stop, err := e.catchUp(ctx, target)
	if err != nil {
		return err
	}
	if stop != nil {
		return simerr.NewInternal(d.composite.Name(),
			fmt.Sprintf("breakpoint at %v while catching up from %v to %v", *stop, cp.Time, target)).At(d.Now().Float())
	}
	return nil
}

// advanceTo integrates forward to target. An inner breakpoint or event on
// the way stops it there and marks the fire inaccurate; it reports whether
// target was reached.
func (e *Embedded) advanceTo(ctx context.Context, target simtime.Time) (bool, error) {
	d := e.dir
	stop, err := e.catchUp(ctx, target)
	if err != nil {
		return false, err
	}
	if stop == nil {
		return true, nil
	}
	e.accurate = false
	e.refineTo = stop.Sub(e.outer.IterationBeginTime())
	d.logger.Debug("inner breakpoint before outer time", "breakpoint", stop.Float(), "outer", target.Float())
	return false, nil
}

// catchUp steps from the current time to exactly target. It returns the
// first inner breakpoint or event time met before target, if any, and stops
// there.
func (e *Embedded) catchUp(ctx context.Context, target simtime.Time) (*simtime.Time, error) {
	d := e.dir
	d.horizon = target
	defer func() { d.horizon = simtime.Time(math.Inf(1)) }()

	for d.resolution.Before(d.Now(), target) {
		if bp, ok := d.breakpoints.First(); ok && d.resolution.Before(bp, target) {
			return &bp, nil
		}
		if d.pendingEvent() != nil {
			now := d.Now()
			return &now, nil
		}
		committed, err := d.step(ctx)
		if err != nil {
			return nil, err
		}
		if !committed {
			return nil, e.interrupted(ctx)
		}
	}
	d.clock.Rewind(target)
	return nil, nil
}

// runAhead steps toward end, stopping early at a due breakpoint, a pending
// event, the stop time or cancellation. Running ahead is speculative, so
// cancellation ends it without an error.
func (e *Embedded) runAhead(ctx context.Context, end simtime.Time) error {
	d := e.dir
	if stop := simtime.Time(d.cfg.StopTime); stop < end {
		end = stop
	}
	d.horizon = end
	defer func() { d.horizon = simtime.Time(math.Inf(1)) }()

	for d.resolution.Before(d.Now(), end) {
		if bp, ok := d.breakpoints.First(); ok && !d.resolution.After(bp, d.Now()) {
			break
		}
		if d.pendingEvent() != nil {
			break
		}
		committed, err := d.step(ctx)
		if err != nil {
			return err
		}
		if !committed {
			if ctx.Err() != nil {
				d.logger.Debug("run-ahead cancelled", "time", d.Now().Float())
				break
			}
			return e.interrupted(ctx)
		}
	}
	d.logger.Debug("ran ahead", "from", e.lastTarget.Float(), "to", d.Now().Float(), "end", end.Float())
	return nil
}

func (e *Embedded) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return simerr.NewMisconfigured(e.dir.composite.Name(), "embedded director stopped mid-fire")
}

// refreshOutputs re-evaluates outputs at the current instant from the
// committed states, so new boundary inputs are reflected without a step.
func (d *Director) refreshOutputs() error {
	d.discretePhase = true
	d.current = d.breakpoint
	d.stepEnd = d.Now()
	defer func() {
		d.discretePhase = false
		d.current = nil
		d.phase = PhaseIdle
	}()
	return d.produceOutputs()
}
