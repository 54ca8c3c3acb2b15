package library

import (
	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/signal"
)

// Gain multiplies its input by K.
type Gain struct {
	actor.Base
	In  *actor.Port
	Out *actor.Port
	K   float64
}

func NewGain(name string, k float64) *Gain {
	g := &Gain{Base: actor.NewBase(name), K: k}
	g.In = g.Base.Input("input", signal.Continuous)
	g.Out = g.Base.Output("output", signal.Continuous)
	return g
}

func (g *Gain) Fire(actor.Env) error {
	v, err := read(g.In)
	if err != nil {
		return err
	}
	g.Out.Send(g.K * v)
	return nil
}

// Adder sums every channel of its multiport input.
type Adder struct {
	actor.Base
	In  *actor.Port
	Out *actor.Port
}

func NewAdder(name string) *Adder {
	a := &Adder{Base: actor.NewBase(name)}
	a.In = a.Base.Input("input", signal.Continuous)
	a.Out = a.Base.Output("output", signal.Continuous)
	return a
}

func (a *Adder) Fire(actor.Env) error {
	var sum float64
	for ch := 0; ch < a.In.Width(); ch++ {
		v, err := a.In.Get(ch)
		if err != nil {
			return err
		}
		sum += v
	}
	a.Out.Send(sum)
	return nil
}
