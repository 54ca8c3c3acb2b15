package library

import (
	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/signal"
)

// Sample is one recorded value.
type Sample struct {
	Time    float64 `json:"time" yaml:"time"`
	Channel int     `json:"channel" yaml:"channel"`
	Value   float64 `json:"value" yaml:"value"`
}

// Recorder keeps every committed value that reaches its input. Continuous
// inputs are sampled at each commit; discrete inputs when an event is
// present.
type Recorder struct {
	actor.Base
	In *actor.Port

	samples []Sample
}

func NewRecorder(name string) *Recorder {
	r := &Recorder{Base: actor.NewBase(name)}
	r.In = r.Base.Input("input", signal.Unknown)
	return r
}

func (r *Recorder) Initialize(actor.Env) error {
	r.samples = nil
	return nil
}

func (r *Recorder) Postfire(env actor.Env) (bool, error) {
	for ch := 0; ch < r.In.Width(); ch++ {
		if !r.In.HasToken(ch) {
			continue
		}
		v, err := r.In.Get(ch)
		if err != nil {
			return false, err
		}
		r.samples = append(r.samples, Sample{Time: env.Now().Float(), Channel: ch, Value: v})
	}
	return true, nil
}

// Samples returns a copy of everything recorded.
func (r *Recorder) Samples() []Sample {
	return append([]Sample(nil), r.samples...)
}

// Last returns the most recent sample.
func (r *Recorder) Last() (Sample, bool) {
	if len(r.samples) == 0 {
		return Sample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

// Recorder is stateful so an embedded rollback forgets samples taken while
// running ahead.

func (r *Recorder) Save() actor.Handle { return len(r.samples) }

func (r *Recorder) Restore(h actor.Handle) error {
	n, ok := h.(int)
	if !ok || n > len(r.samples) {
		return errBadHandle(r, h)
	}
	r.samples = r.samples[:n]
	return nil
}
