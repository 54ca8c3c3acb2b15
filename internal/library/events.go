package library

import (
	"fmt"
	"math"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/signal"
	"github.com/roach88/hysim/internal/solver"
)

// Direction selects which crossings a LevelCrossing reports.
type Direction int

const (
	Both Direction = iota
	Rising
	Falling
)

func (d Direction) String() string {
	switch d {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return "both"
	}
}

// ParseDirection reads "rising", "falling" or "both".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "both", "":
		return Both, nil
	case "rising":
		return Rising, nil
	case "falling":
		return Falling, nil
	}
	return Both, fmt.Errorf("unknown crossing direction %q", s)
}

// LevelCrossing emits Value when its continuous input crosses Level. A step
// that lands within Tolerance of the level counts as reaching it; any step
// that jumps further past it is rejected, so the committed step ends on the
// crossing and the event is emitted at that instant.
type LevelCrossing struct {
	actor.Base
	In        *actor.Port
	Out       *actor.Port
	Level     float64
	Direction Direction
	Value     float64
	Tolerance float64

	// side is -1 below the level band, +1 above it, 0 while unknown or
	// inside the band after a crossing. Detection is armed only off 0.
	side    int
	last    float64
	current float64
	crossed int
	pending bool
}

func NewLevelCrossing(name string, level float64, dir Direction) *LevelCrossing {
	lc := &LevelCrossing{
		Base:      actor.NewBase(name),
		Level:     level,
		Direction: dir,
		Value:     1,
		Tolerance: 1e-4,
	}
	lc.In = lc.Base.Input("input", signal.Continuous)
	lc.Out = lc.Base.Output("output", signal.Discrete)
	return lc
}

func (lc *LevelCrossing) Initialize(actor.Env) error {
	lc.side, lc.crossed, lc.pending = 0, 0, false
	return nil
}

// Fire detects a crossing between the last committed input and the current
// one. Breakpoint iterations only re-sample.
func (lc *LevelCrossing) Fire(env actor.Env) error {
	v, err := read(lc.In)
	if err != nil {
		return err
	}
	lc.current = v
	lc.crossed = 0
	if env.IsBreakpointIteration() {
		return nil
	}
	up := lc.side < 0 && v >= lc.Level-lc.Tolerance
	down := lc.side > 0 && v <= lc.Level+lc.Tolerance
	switch {
	case up && lc.Direction != Falling:
		lc.crossed = 1
	case down && lc.Direction != Rising:
		lc.crossed = -1
	}
	return nil
}

func (lc *LevelCrossing) sideOf(v float64) int {
	switch {
	case v > lc.Level+lc.Tolerance:
		return 1
	case v < lc.Level-lc.Tolerance:
		return -1
	}
	return 0
}

func (lc *LevelCrossing) Postfire(env actor.Env) (bool, error) {
	lc.last = lc.current
	if lc.crossed == 0 {
		if s := lc.sideOf(lc.current); s != 0 {
			lc.side = s
		}
		return true, nil
	}
	// Re-armed once the input leaves the band.
	lc.side = 0
	lc.crossed = 0
	lc.pending = true
	env.Logger().Debug("level crossed", "actor", lc.Name(), "level", lc.Level, "time", env.Now().Float())
	return true, env.FireAt(lc, env.Now())
}

func (lc *LevelCrossing) HasEvent(actor.Env) bool { return lc.pending }

func (lc *LevelCrossing) Emit(actor.Env) error {
	lc.pending = false
	lc.Out.Send(lc.Value)
	return nil
}

// IsAccurate accepts steps without a crossing and steps that end on one.
func (lc *LevelCrossing) IsAccurate(actor.Env) bool {
	return lc.crossed == 0 || math.Abs(lc.current-lc.Level) <= lc.Tolerance
}

// Refine interpolates the crossing time linearly within the step.
func (lc *LevelCrossing) Refine(env actor.Env) float64 {
	h := env.StepSize()
	span := lc.current - lc.last
	if span == 0 {
		return h / 2
	}
	frac := (lc.Level - lc.last) / span
	if frac <= 0 || frac >= 1 {
		return h / 2
	}
	return h * frac
}

func (lc *LevelCrossing) Predict(actor.Env) float64 { return solver.NoOpinion }

type crossingState struct {
	side    int
	last    float64
	pending bool
}

func (lc *LevelCrossing) Save() actor.Handle {
	return crossingState{side: lc.side, last: lc.last, pending: lc.pending}
}

func (lc *LevelCrossing) Restore(h actor.Handle) error {
	s, ok := h.(crossingState)
	if !ok {
		return errBadHandle(lc, h)
	}
	lc.side, lc.last, lc.pending = s.side, s.last, s.pending
	lc.current, lc.crossed = s.last, 0
	return nil
}

// SampleHold turns discrete events into a piecewise-constant waveform: the
// output holds the value of the most recent event on any input channel.
type SampleHold struct {
	actor.Base
	In      *actor.Port
	Out     *actor.Port
	Initial float64

	held float64
}

func NewSampleHold(name string, initial float64) *SampleHold {
	s := &SampleHold{Base: actor.NewBase(name), Initial: initial}
	s.In = s.Base.Input("input", signal.Discrete)
	s.Out = s.Base.Output("output", signal.Continuous)
	return s
}

func (s *SampleHold) Initialize(actor.Env) error {
	s.held = s.Initial
	return nil
}

func (s *SampleHold) Consume(actor.Env) error {
	for ch := 0; ch < s.In.Width(); ch++ {
		if !s.In.HasToken(ch) {
			continue
		}
		v, err := s.In.Get(ch)
		if err != nil {
			return err
		}
		s.held = v
	}
	return nil
}

func (s *SampleHold) Fire(actor.Env) error {
	s.Out.Send(s.held)
	return nil
}

// Held returns the value currently held.
func (s *SampleHold) Held() float64 { return s.held }

func (s *SampleHold) Save() actor.Handle { return s.held }

func (s *SampleHold) Restore(h actor.Handle) error {
	v, ok := h.(float64)
	if !ok {
		return errBadHandle(s, h)
	}
	s.held = v
	return nil
}

// Counter counts events and emits the running count with each one.
type Counter struct {
	actor.Base
	In  *actor.Port
	Out *actor.Port

	count   int
	pending int
}

func NewCounter(name string) *Counter {
	c := &Counter{Base: actor.NewBase(name)}
	c.In = c.Base.Input("input", signal.Discrete)
	c.Out = c.Base.Output("output", signal.Discrete)
	return c
}

func (c *Counter) Initialize(actor.Env) error {
	c.count, c.pending = 0, 0
	return nil
}

func (c *Counter) Prefire(actor.Env) (bool, error) {
	for ch := 0; ch < c.In.Width(); ch++ {
		if c.In.HasToken(ch) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Counter) Fire(actor.Env) error {
	c.pending = c.count
	for ch := 0; ch < c.In.Width(); ch++ {
		if !c.In.HasToken(ch) {
			continue
		}
		if _, err := c.In.Get(ch); err != nil {
			return err
		}
		c.pending++
	}
	if c.pending != c.count {
		c.Out.Send(float64(c.pending))
	}
	return nil
}

func (c *Counter) Postfire(actor.Env) (bool, error) {
	c.count = c.pending
	return true, nil
}

// Count returns the committed count.
func (c *Counter) Count() int { return c.count }

func (c *Counter) Save() actor.Handle { return c.count }

func (c *Counter) Restore(h actor.Handle) error {
	n, ok := h.(int)
	if !ok {
		return errBadHandle(c, h)
	}
	c.count, c.pending = n, n
	return nil
}
