package library

import (
	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/simtime"
)

// Subsystem nests a composite under an embedded director. From the outside
// it is one continuous actor whose step-size opinions are those of the inner
// director. Each boundary port of the inner composite is mirrored by an outer
// port of the same name.
type Subsystem struct {
	actor.Base
	inner *actor.Composite
	cfg   director.Config
	opts  []director.Option

	embedded *director.Embedded
	inputs   []portPair
	outputs  []portPair
}

// portPair maps an outer port to its inner boundary port.
type portPair struct {
	outer *actor.Port
	inner *actor.Port
}

func NewSubsystem(name string, inner *actor.Composite, cfg director.Config, opts ...director.Option) *Subsystem {
	s := &Subsystem{Base: actor.NewBase(name), inner: inner, cfg: cfg, opts: opts}
	for _, p := range inner.BoundaryInputs() {
		s.inputs = append(s.inputs, portPair{outer: s.Base.Input(p.Name(), p.Declared()), inner: p})
	}
	for _, p := range inner.BoundaryOutputs() {
		s.outputs = append(s.outputs, portPair{outer: s.Base.Output(p.Name(), p.Declared()), inner: p})
	}
	return s
}

func (s *Subsystem) Inner() *actor.Composite { return s.inner }

// Embedded returns the inner director once initialized.
func (s *Subsystem) Embedded() *director.Embedded { return s.embedded }

func (s *Subsystem) Initialize(env actor.Env) error {
	opts := append([]director.Option{director.WithLogger(env.Logger().With("subsystem", s.Name()))}, s.opts...)
	e, err := director.NewEmbedded(s.inner, s.cfg, director.AuthorityFor(env, s), opts...)
	if err != nil {
		return err
	}
	e.OnSynchronized(s.publish)
	s.embedded = e
	return e.Initialize()
}

// Fire hands the outer inputs to the inner composite and fires the inner
// director at the outer time under the outer run's context.
func (s *Subsystem) Fire(env actor.Env) error {
	for _, p := range s.inputs {
		if p.outer.Width() == 0 || !p.outer.HasToken(0) {
			continue
		}
		v, err := p.outer.Get(0)
		if err != nil {
			return err
		}
		p.inner.Send(v)
	}
	return s.embedded.Fire(env.Context())
}

// publish copies inner boundary outputs to the outer ports.
func (s *Subsystem) publish(simtime.Time) error {
	for _, p := range s.outputs {
		if p.inner.Width() == 0 || !p.inner.HasToken(0) {
			continue
		}
		v, err := p.inner.Get(0)
		if err != nil {
			return err
		}
		p.outer.Send(v)
	}
	return nil
}

func (s *Subsystem) Postfire(actor.Env) (bool, error) {
	s.embedded.Postfire()
	return true, nil
}

func (s *Subsystem) IsAccurate(actor.Env) bool { return s.embedded.IsAccurate() }

func (s *Subsystem) Refine(actor.Env) float64 { return s.embedded.RefinedStepSize() }

func (s *Subsystem) Predict(actor.Env) float64 { return s.embedded.PredictedStepSize() }
