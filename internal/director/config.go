package director

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/hysim/internal/solver"
	"github.com/roach88/hysim/internal/trace"
)

// Config holds every tunable of a director.
//
// Zero values are not defaults; start from DefaultConfig and override.
type Config struct {
	StartTime float64 `json:"start_time"`
	StopTime  float64 `json:"stop_time"` // +Inf runs until stopped

	InitStepSize float64 `json:"init_step_size"`
	MinStepSize  float64 `json:"min_step_size"`
	MaxStepSize  float64 `json:"max_step_size"`

	// MaxIterations bounds the rounds of an implicit solver per step.
	MaxIterations int `json:"max_iterations"`

	ErrorTolerance  float64 `json:"error_tolerance"`
	ValueResolution float64 `json:"value_resolution"`
	TimeResolution  float64 `json:"time_resolution"`

	Solver           string `json:"solver"`
	BreakpointSolver string `json:"breakpoint_solver"`

	// RunAheadLength bounds how far an embedded director may lead its outer
	// time authority. Zero disables run-ahead.
	RunAheadLength float64 `json:"run_ahead_length"`

	SynchronizeToRealTime bool `json:"synchronize_to_real_time"`

	// MaxMicrosteps bounds discrete fixed-point passes at one instant.
	MaxMicrosteps int `json:"max_microsteps"`
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		StartTime:        0,
		StopTime:         math.Inf(1),
		InitStepSize:     0.1,
		MinStepSize:      1e-5,
		MaxStepSize:      1.0,
		MaxIterations:    20,
		ErrorTolerance:   1e-4,
		ValueResolution:  1e-6,
		TimeResolution:   1e-10,
		Solver:           solver.ForwardEulerName,
		BreakpointSolver: solver.DerivativeResolverName,
		RunAheadLength:   1.0,
		MaxMicrosteps:    1000,
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if math.IsNaN(c.StartTime) || math.IsInf(c.StartTime, 0) {
		errs = append(errs, fmt.Errorf("start_time must be finite, got %v", c.StartTime))
	}
	if c.StopTime < c.StartTime {
		errs = append(errs, fmt.Errorf("stop_time %v is before start_time %v", c.StopTime, c.StartTime))
	}
	if c.MinStepSize <= 0 {
		errs = append(errs, fmt.Errorf("min_step_size must be positive, got %v", c.MinStepSize))
	}
	if c.MaxStepSize < c.MinStepSize {
		errs = append(errs, fmt.Errorf("max_step_size %v is below min_step_size %v", c.MaxStepSize, c.MinStepSize))
	}
	if c.InitStepSize < c.MinStepSize || c.InitStepSize > c.MaxStepSize {
		errs = append(errs, fmt.Errorf("init_step_size %v is outside [%v, %v]", c.InitStepSize, c.MinStepSize, c.MaxStepSize))
	}
	if c.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations))
	}
	if c.ErrorTolerance <= 0 {
		errs = append(errs, fmt.Errorf("error_tolerance must be positive, got %v", c.ErrorTolerance))
	}
	if c.ValueResolution <= 0 {
		errs = append(errs, fmt.Errorf("value_resolution must be positive, got %v", c.ValueResolution))
	}
	if c.TimeResolution <= 0 || c.TimeResolution >= c.MinStepSize {
		errs = append(errs, fmt.Errorf("time_resolution %v must be positive and below min_step_size", c.TimeResolution))
	}
	if c.RunAheadLength < 0 {
		errs = append(errs, fmt.Errorf("run_ahead_length must not be negative, got %v", c.RunAheadLength))
	}
	if c.MaxMicrosteps < 1 {
		errs = append(errs, fmt.Errorf("max_microsteps must be at least 1, got %d", c.MaxMicrosteps))
	}
	if !knownSolver(c.Solver) {
		errs = append(errs, fmt.Errorf("unknown solver %q", c.Solver))
	}
	if !knownSolver(c.BreakpointSolver) {
		errs = append(errs, fmt.Errorf("unknown breakpoint_solver %q", c.BreakpointSolver))
	}
	return errors.Join(errs...)
}

// MarshalJSON writes an unbounded stop time as "inf", which a JSON number
// cannot hold.
func (c Config) MarshalJSON() ([]byte, error) {
	type plain Config
	out := struct {
		plain
		StopTime any `json:"stop_time"`
	}{plain: plain(c), StopTime: c.StopTime}
	if math.IsInf(c.StopTime, 1) {
		out.StopTime = "inf"
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts stop_time as a number or "inf".
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	aux := struct {
		*plain
		StopTime json.RawMessage `json:"stop_time"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.StopTime) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(aux.StopTime, &s) == nil {
		if s != "inf" {
			return fmt.Errorf("stop_time: %q is not a number or \"inf\"", s)
		}
		c.StopTime = math.Inf(1)
		return nil
	}
	return json.Unmarshal(aux.StopTime, &c.StopTime)
}

func knownSolver(name string) bool {
	for _, n := range solver.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Option configures a Director.
type Option func(*Director)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Director) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder sets the trace recorder. Default: trace.Nop.
func WithRecorder(r trace.Recorder) Option {
	return func(d *Director) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithPacer replaces the wall clock used for real-time synchronisation.
func WithPacer(p Pacer) Option {
	return func(d *Director) {
		if p != nil {
			d.pacer = p
		}
	}
}

// WithSequence shares a trace sequence between directors so nested traces
// interleave in one order.
func WithSequence(s *trace.Sequence) Option {
	return func(d *Director) {
		if s != nil {
			d.seq = s
		}
	}
}

// WithStateProbe records the named values with every committed step.
func WithStateProbe(probe func() map[string]float64) Option {
	return func(d *Director) {
		d.probe = probe
	}
}
