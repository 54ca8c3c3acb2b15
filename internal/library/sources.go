package library

import (
	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/signal"
	"github.com/roach88/hysim/internal/simtime"
)

// Const outputs a fixed value.
type Const struct {
	actor.Base
	Out   *actor.Port
	Value float64
}

func NewConst(name string, v float64) *Const {
	c := &Const{Base: actor.NewBase(name), Value: v}
	c.Out = c.Base.Output("output", signal.Continuous)
	return c
}

func (c *Const) Fire(actor.Env) error {
	c.Out.Send(c.Value)
	return nil
}

// Ramp outputs Init + Slope*(t - start).
type Ramp struct {
	actor.Base
	Out   *actor.Port
	Init  float64
	Slope float64
	start simtime.Time
}

func NewRamp(name string, init, slope float64) *Ramp {
	r := &Ramp{Base: actor.NewBase(name), Init: init, Slope: slope}
	r.Out = r.Base.Output("output", signal.Continuous)
	return r
}

func (r *Ramp) Initialize(env actor.Env) error {
	r.start = env.Now()
	return nil
}

func (r *Ramp) Fire(env actor.Env) error {
	r.Out.Send(r.Init + r.Slope*env.Now().Sub(r.start))
	return nil
}

// PeriodicPulse emits Value every Period starting at Offset after the start
// time. It is purely discrete and relies on FireAt to be woken.
type PeriodicPulse struct {
	actor.Base
	Out    *actor.Port
	Period float64
	Offset float64
	Value  float64

	next  simtime.Time
	fired bool
}

func NewPeriodicPulse(name string, period, offset, value float64) *PeriodicPulse {
	p := &PeriodicPulse{Base: actor.NewBase(name), Period: period, Offset: offset, Value: value}
	p.Out = p.Base.Output("output", signal.Discrete)
	return p
}

func (p *PeriodicPulse) Initialize(env actor.Env) error {
	p.next = env.Now().Add(p.Offset)
	p.fired = false
	return env.FireAt(p, p.next)
}

func (p *PeriodicPulse) Fire(env actor.Env) error {
	p.fired = false
	if !env.Resolution().Equal(env.Now(), p.next) {
		return nil
	}
	p.Out.Send(p.Value)
	p.fired = true
	return nil
}

func (p *PeriodicPulse) Postfire(env actor.Env) (bool, error) {
	if !p.fired {
		return true, nil
	}
	p.fired = false
	p.next = p.next.Add(p.Period)
	return true, env.FireAt(p, p.next)
}

type pulseState struct {
	next simtime.Time
}

func (p *PeriodicPulse) Save() actor.Handle { return pulseState{next: p.next} }

func (p *PeriodicPulse) Restore(h actor.Handle) error {
	s, ok := h.(pulseState)
	if !ok {
		return errBadHandle(p, h)
	}
	p.next = s.next
	p.fired = false
	return nil
}
