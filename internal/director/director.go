// Package director drives one hierarchy level of a hybrid-time model.
//
// Each iteration resolves the discrete fixed point at the current instant,
// then integrates to a later time with adaptive step-size control. The
// Embedded variant runs a director under an outer time authority with
// run-ahead and checkpoint rollback.
//
// Thread-safety: a Director is single-threaded. Stop may be called from any
// goroutine; everything else must be called from the goroutine running the
// model.
package director

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/scheduler"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/simtime"
	"github.com/roach88/hysim/internal/solver"
	"github.com/roach88/hysim/internal/trace"
)

// Stats counts work done since Initialize.
type Stats struct {
	Iterations  int `json:"iterations"`
	Steps       int `json:"steps"`
	FailedSteps int `json:"failed_steps"`
	Rounds      int `json:"rounds"`
	Microsteps  int `json:"microsteps"`
	Rollbacks   int `json:"rollbacks"`
}

// Director executes one composite.
type Director struct {
	cfg       Config
	composite *actor.Composite
	scheduler *scheduler.Scheduler
	schedule  *scheduler.Schedule

	clock       *simtime.Clock
	resolution  simtime.Resolution
	breakpoints *simtime.BreakpointTable

	normal     solver.Solver
	breakpoint solver.Solver
	current    solver.Solver

	phase               Phase
	stepSize            float64
	suggestedStepSize   float64
	iterationBegin      simtime.Time
	discretePhase       bool
	breakpointIteration bool

	// stepEnd is the exact end time of the step being attempted. Solver time
	// moves that land within resolution of it snap to it.
	stepEnd simtime.Time

	// horizon caps continuous steps; the embedded variant sets it to the
	// fire end time.
	horizon simtime.Time

	// refined records whether the last committed step was shrunk by an
	// accuracy refinement rather than a breakpoint.
	refined bool

	checkpoint *Checkpoint
	disabled   map[*actor.Node]bool
	fireAtHook func(t simtime.Time) error

	stopRequested atomic.Bool
	runCtx        context.Context
	cancelRun     atomic.Pointer[context.CancelFunc]
	initialized   bool
	finished      bool

	stats    Stats
	logger   *slog.Logger
	recorder trace.Recorder
	seq      *trace.Sequence
	pacer    Pacer
	probe    func() map[string]float64
	sync     realTimeSync
}

// New creates a director for c. The configuration is validated here;
// scheduling errors surface from Initialize.
func New(c *actor.Composite, cfg Config, opts ...Option) (*Director, error) {
	if c == nil {
		return nil, simerr.NewMisconfigured("", "director has no composite")
	}
	if err := cfg.Validate(); err != nil {
		e := simerr.NewMisconfigured(c.Name(), "invalid director configuration")
		e.Err = err
		return nil, e
	}

	d := &Director{
		cfg:        cfg,
		composite:  c,
		resolution: simtime.Resolution(cfg.TimeResolution),
		logger:     slog.Default(),
		recorder:   trace.Nop{},
		seq:        trace.NewSequence(),
		pacer:      wallPacer{},
		horizon:    simtime.Time(math.Inf(1)),
		disabled:   make(map[*actor.Node]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.scheduler = scheduler.New(c, d.logger)
	d.clock = simtime.NewClock(simtime.Time(cfg.StartTime), d.resolution)
	d.breakpoints = simtime.NewBreakpointTable(d.resolution)

	var err error
	if d.normal, err = solver.New(cfg.Solver, d); err != nil {
		return nil, simerr.NewMisconfigured(c.Name(), err.Error())
	}
	if d.breakpoint, err = solver.New(cfg.BreakpointSolver, d); err != nil {
		return nil, simerr.NewMisconfigured(c.Name(), err.Error())
	}
	if d.normal.IsBreakpointSolver() {
		return nil, simerr.NewMisconfigured(c.Name(), fmt.Sprintf("solver %s cannot be the normal solver", d.normal.Name()))
	}
	if !d.breakpoint.IsBreakpointSolver() {
		return nil, simerr.NewMisconfigured(c.Name(), fmt.Sprintf("solver %s is not a breakpoint solver", d.breakpoint.Name()))
	}
	return d, nil
}

// Initialize schedules the composite, resets time and initializes every
// actor. It may be called again to restart the model.
func (d *Director) Initialize() error {
	d.phase = PhaseCreatingStartingStates
	defer func() { d.phase = PhaseIdle }()

	d.scheduler.Invalidate()
	sched, err := d.scheduler.Schedule()
	if err != nil {
		d.logger.Error("scheduling failed", "composite", d.composite.Name(), "error", err)
		return err
	}
	d.schedule = sched

	start := simtime.Time(d.cfg.StartTime)
	d.clock.Rewind(start)
	d.iterationBegin = start
	d.breakpoints.Clear()
	d.breakpoints.Insert(start)
	if !math.IsInf(d.cfg.StopTime, 1) {
		d.breakpoints.Insert(simtime.Time(d.cfg.StopTime))
	}
	d.stepSize = d.cfg.InitStepSize
	d.suggestedStepSize = d.cfg.InitStepSize
	d.checkpoint = nil
	d.disabled = make(map[*actor.Node]bool)
	d.stats = Stats{}
	d.stopRequested.Store(false)
	d.finished = false
	d.current = nil

	d.composite.ResetReceivers()
	for _, n := range d.composite.Nodes() {
		if err := n.Actor.Initialize(d); err != nil {
			return d.fail(n, err)
		}
	}
	d.sync.start(d.pacer.Now(), start)
	d.initialized = true

	d.logger.Info("director initialized",
		"composite", d.composite.Name(),
		"start", d.cfg.StartTime,
		"stop", d.cfg.StopTime,
		"solver", d.normal.Name(),
		"actors", len(sched.Continuous)+len(sched.Discrete))
	return nil
}

// Iterate runs one full iteration: the discrete fixed point at the current
// time, then, unless the stop time is reached, one committed continuous step.
// It returns false when the model should not be iterated again.
func (d *Director) Iterate(ctx context.Context) (bool, error) {
	if !d.initialized {
		return false, simerr.NewMisconfigured(d.composite.Name(), "director is not initialized")
	}
	release := d.enter(ctx)
	defer release()
	if d.finished || d.halted(ctx) {
		return false, ctx.Err()
	}
	if err := d.refreshSchedule(); err != nil {
		return false, err
	}
	d.stats.Iterations++

	if err := d.resolveDiscrete(ctx); err != nil {
		return false, err
	}
	if d.reachedStop() {
		d.finished = true
		return false, nil
	}
	if d.halted(ctx) {
		return false, ctx.Err()
	}

	committed, err := d.step(ctx)
	if err != nil {
		return false, err
	}
	if !committed {
		return false, ctx.Err()
	}
	if err := d.sync.pace(ctx, d); err != nil {
		return false, err
	}
	return true, nil
}

// Run initializes the director if needed and iterates until the stop time,
// Stop, cancellation or an error.
func (d *Director) Run(ctx context.Context) error {
	if !d.initialized {
		if err := d.Initialize(); err != nil {
			return err
		}
	}
	for {
		more, err := d.Iterate(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.logger.Info("run cancelled", "time", d.Now().Float())
			}
			return err
		}
		if !more {
			break
		}
	}
	d.logger.Info("run finished",
		"composite", d.composite.Name(),
		"time", d.Now().Float(),
		"steps", d.stats.Steps,
		"failed_steps", d.stats.FailedSteps,
		"rollbacks", d.stats.Rollbacks)
	return nil
}

// Stop asks the director to exit at the next phase boundary. Safe to call
// from any goroutine.
func (d *Director) Stop() {
	d.stopRequested.Store(true)
	if cancel := d.cancelRun.Load(); cancel != nil {
		(*cancel)()
	}
}

// Context is the context of the iteration in progress. It is done when that
// iteration's ctx is, or once Stop is called. Outside an iteration it is
// context.Background().
func (d *Director) Context() context.Context {
	if d.runCtx == nil {
		return context.Background()
	}
	return d.runCtx
}

// enter makes a child of ctx, also cancelled by Stop, the context actors
// see until release is called.
func (d *Director) enter(ctx context.Context) (release func()) {
	prev := d.runCtx
	runCtx, cancel := context.WithCancel(ctx)
	d.runCtx = runCtx
	d.cancelRun.Store(&cancel)
	if d.stopRequested.Load() {
		cancel()
	}
	return func() {
		d.cancelRun.Store(nil)
		cancel()
		d.runCtx = prev
	}
}

// Stopped reports whether Stop was called since the last Initialize.
func (d *Director) Stopped() bool {
	return d.stopRequested.Load()
}

// FireAt registers t as a breakpoint on behalf of a. Requests in the past
// are a MISCONFIGURED error naming the actor.
func (d *Director) FireAt(a actor.Actor, t simtime.Time) error {
	name := ""
	if a != nil {
		name = a.Name()
	}
	if d.resolution.Before(t, d.Now()) {
		return simerr.NewMisconfigured(name,
			fmt.Sprintf("fireAt time %v is before the current time %v", t, d.Now())).At(d.Now().Float())
	}
	if d.breakpoints.Insert(t) {
		d.logger.Debug("breakpoint registered", "actor", name, "time", t.Float())
		if err := d.recordEvent(trace.EventFireAt, name, t, 0); err != nil {
			return err
		}
	}
	if d.fireAtHook != nil {
		return d.fireAtHook(t)
	}
	return nil
}

// Accessors.

func (d *Director) Now() simtime.Time                { return d.clock.Now() }
func (d *Director) Resolution() simtime.Resolution   { return d.resolution }
func (d *Director) Logger() *slog.Logger             { return d.logger }
func (d *Director) Config() Config                   { return d.cfg }
func (d *Director) Phase() Phase                     { return d.phase }
func (d *Director) Stats() Stats                     { return d.stats }
func (d *Director) Composite() *actor.Composite      { return d.composite }
func (d *Director) IsDiscretePhase() bool            { return d.discretePhase }
func (d *Director) IsBreakpointIteration() bool      { return d.breakpointIteration }
func (d *Director) IterationBeginTime() simtime.Time { return d.iterationBegin }
func (d *Director) SuggestedStepSize() float64       { return d.suggestedStepSize }
func (d *Director) Breakpoints() []simtime.Time      { return d.breakpoints.Points() }

// Solver returns the active solver, or nil between iterations.
func (d *Director) Solver() solver.Solver {
	return d.current
}

// StepSize is the current step. It is zero while the discrete phase holds
// time frozen.
func (d *Director) StepSize() float64 {
	if d.discretePhase {
		return 0
	}
	return d.stepSize
}

// Schedule returns the schedule in use, rebuilding it first if the composite
// changed since the last iteration.
func (d *Director) Schedule() (*scheduler.Schedule, error) {
	if err := d.refreshSchedule(); err != nil {
		return nil, err
	}
	return d.schedule, nil
}

// NextIterationTime is the time this director next needs to run: the end of
// a suggested step, clipped to the next breakpoint and the stop time.
func (d *Director) NextIterationTime() simtime.Time {
	now := d.Now()
	next := now.Add(d.suggestedStepSize)
	if bp, ok := d.breakpoints.Next(now); ok && bp < next {
		next = bp
	}
	if bp, ok := d.breakpoints.First(); ok && d.resolution.Equal(bp, now) {
		next = now
	}
	if stop := simtime.Time(d.cfg.StopTime); stop < next {
		next = stop
	}
	return next
}

// Executor surface used by the solvers.

func (d *Director) InitialStepSize() float64 { return d.cfg.InitStepSize }
func (d *Director) MaxIterations() int       { return d.cfg.MaxIterations }
func (d *Director) ValueResolution() float64 { return d.cfg.ValueResolution }
func (d *Director) ErrorTolerance() float64  { return d.cfg.ErrorTolerance }

// SetModelTime moves time inside the current iteration. Solvers use it to
// reach the end of a step; retries and rollback rewind through it.
func (d *Director) SetModelTime(t simtime.Time) {
	if d.resolution.Equal(t, d.stepEnd) {
		t = d.stepEnd
	}
	d.clock.Rewind(t)
}

func (d *Director) FireDynamicActors() error {
	d.phase = PhaseFiringDynamicActors
	for _, n := range d.schedule.Dynamic {
		if err := d.fire(n); err != nil {
			return err
		}
	}
	return nil
}

func (d *Director) EmitDynamicStates() error {
	for _, n := range d.schedule.Dynamic {
		if d.disabled[n] {
			continue
		}
		if err := n.Dynamic().EmitTentativeOutputs(d); err != nil {
			return d.fail(n, err)
		}
	}
	return nil
}

func (d *Director) FireStateTransitionActors() error {
	d.phase = PhaseFiringStateTransitionActors
	for _, n := range d.schedule.StateTransition {
		if err := d.fire(n); err != nil {
			return err
		}
	}
	return nil
}

// fire runs prefire then fire on one actor.
func (d *Director) fire(n *actor.Node) error {
	if d.disabled[n] {
		return nil
	}
	ok, err := n.Actor.Prefire(d)
	if err != nil {
		return d.fail(n, err)
	}
	if !ok {
		return nil
	}
	if err := n.Actor.Fire(d); err != nil {
		return d.fail(n, err)
	}
	return nil
}

// postfire commits one actor. An actor that returns false is not fired again.
func (d *Director) postfire(n *actor.Node) error {
	if d.disabled[n] {
		return nil
	}
	ok, err := n.Actor.Postfire(d)
	if err != nil {
		return d.fail(n, err)
	}
	if !ok {
		d.disabled[n] = true
		d.logger.Debug("actor finished", "actor", n.Name(), "time", d.Now().Float())
	}
	return nil
}

// fail stamps err with the actor and current time when it is a simulation
// error without one, and logs it.
func (d *Director) fail(n *actor.Node, err error) error {
	var se *simerr.Error
	if errors.As(err, &se) {
		stamped := se
		if se.Actor == "" && n != nil {
			c := *se
			c.Actor = n.Name()
			stamped = &c
		}
		if stamped.Time == nil {
			stamped = stamped.At(d.Now().Float())
		}
		if stamped != se {
			err = stamped
		}
	} else if n != nil {
		err = fmt.Errorf("actor %s at time %v: %w", n.Name(), d.Now(), err)
	}
	d.logger.Error("execution failed", "phase", d.phase.String(), "time", d.Now().Float(), "error", err)
	return err
}

func (d *Director) refreshSchedule() error {
	if d.scheduler.Valid() && d.schedule != nil {
		return nil
	}
	sched, err := d.scheduler.Schedule()
	if err != nil {
		return err
	}
	for n := range d.disabled {
		if _, ok := d.composite.Node(n.Name()); !ok {
			delete(d.disabled, n)
		}
	}
	d.schedule = sched
	return nil
}

func (d *Director) halted(ctx context.Context) bool {
	return d.stopRequested.Load() || ctx.Err() != nil
}

func (d *Director) reachedStop() bool {
	return !d.resolution.Before(d.Now(), simtime.Time(d.cfg.StopTime))
}

func (d *Director) recordEvent(kind trace.EventKind, actorName string, t simtime.Time, v float64) error {
	return d.recorder.RecordEvent(trace.EventRecord{
		Seq:   d.seq.Next(),
		Time:  t.Float(),
		Kind:  kind,
		Actor: actorName,
		Value: v,
	})
}
