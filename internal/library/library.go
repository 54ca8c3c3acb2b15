// Package library provides the stock actors models are built from.
//
// Sources (Const, Ramp, PeriodicPulse), arithmetic (Gain, Adder), the
// Integrator, the LevelCrossing event detector, the SampleHold waveform
// generator, a Counter, a Recorder sink and Subsystem, which nests a
// composite under its own embedded director.
package library

import (
	"fmt"
	"sort"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/receiver"
)

// Params are the settings of one actor instance, as decoded from a model
// file.
type Params map[string]any

// Float returns the named number, def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", key, v)
	}
}

// String returns the named string, def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, v)
	}
	return s, nil
}

// Factory builds an actor called name.
type Factory func(name string, p Params) (actor.Actor, error)

var registry = map[string]Factory{
	"const": func(name string, p Params) (actor.Actor, error) {
		v, err := p.Float("value", 0)
		if err != nil {
			return nil, err
		}
		return NewConst(name, v), nil
	},
	"ramp": func(name string, p Params) (actor.Actor, error) {
		init, err := p.Float("init", 0)
		if err != nil {
			return nil, err
		}
		slope, err := p.Float("slope", 1)
		if err != nil {
			return nil, err
		}
		return NewRamp(name, init, slope), nil
	},
	"gain": func(name string, p Params) (actor.Actor, error) {
		k, err := p.Float("gain", 1)
		if err != nil {
			return nil, err
		}
		return NewGain(name, k), nil
	},
	"adder": func(name string, _ Params) (actor.Actor, error) {
		return NewAdder(name), nil
	},
	"integrator": func(name string, p Params) (actor.Actor, error) {
		init, err := p.Float("initial", 0)
		if err != nil {
			return nil, err
		}
		return NewIntegrator(name, init), nil
	},
	"level_crossing": func(name string, p Params) (actor.Actor, error) {
		level, err := p.Float("level", 0)
		if err != nil {
			return nil, err
		}
		dir, err := p.String("direction", "both")
		if err != nil {
			return nil, err
		}
		d, err := ParseDirection(dir)
		if err != nil {
			return nil, err
		}
		lc := NewLevelCrossing(name, level, d)
		if lc.Value, err = p.Float("value", 1); err != nil {
			return nil, err
		}
		if lc.Tolerance, err = p.Float("tolerance", lc.Tolerance); err != nil {
			return nil, err
		}
		return lc, nil
	},
	"sample_hold": func(name string, p Params) (actor.Actor, error) {
		init, err := p.Float("initial", 0)
		if err != nil {
			return nil, err
		}
		return NewSampleHold(name, init), nil
	},
	"periodic_pulse": func(name string, p Params) (actor.Actor, error) {
		period, err := p.Float("period", 1)
		if err != nil {
			return nil, err
		}
		if period <= 0 {
			return nil, fmt.Errorf("period must be positive, got %v", period)
		}
		value, err := p.Float("value", 1)
		if err != nil {
			return nil, err
		}
		offset, err := p.Float("offset", 0)
		if err != nil {
			return nil, err
		}
		return NewPeriodicPulse(name, period, offset, value), nil
	},
	"counter": func(name string, _ Params) (actor.Actor, error) {
		return NewCounter(name), nil
	},
	"recorder": func(name string, _ Params) (actor.Actor, error) {
		return NewRecorder(name), nil
	},
}

// New builds an actor of the registered kind.
func New(kind, name string, p Params) (actor.Actor, error) {
	f, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown actor kind %q", kind)
	}
	a, err := f(name, p)
	if err != nil {
		return nil, fmt.Errorf("actor %s (%s): %w", name, kind, err)
	}
	return a, nil
}

// Kinds lists the registered actor kinds in sorted order.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// read returns the token on channel 0, or 0 when the port is unconnected.
func read(p *actor.Port) (receiver.Token, error) {
	if p.Width() == 0 {
		return 0, nil
	}
	return p.Get(0)
}
