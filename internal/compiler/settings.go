package compiler

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/hysim/internal/director"
)

// setting assigns one model-file director key onto a Config.
type setting func(cfg *director.Config, v any) error

var directorSettings = map[string]setting{
	"start_time":               floatSetting(func(c *director.Config, f float64) { c.StartTime = f }),
	"stop_time":                timeSetting(func(c *director.Config, f float64) { c.StopTime = f }),
	"init_step_size":           floatSetting(func(c *director.Config, f float64) { c.InitStepSize = f }),
	"min_step_size":            floatSetting(func(c *director.Config, f float64) { c.MinStepSize = f }),
	"max_step_size":            floatSetting(func(c *director.Config, f float64) { c.MaxStepSize = f }),
	"max_iterations":           intSetting(func(c *director.Config, n int) { c.MaxIterations = n }),
	"error_tolerance":          floatSetting(func(c *director.Config, f float64) { c.ErrorTolerance = f }),
	"value_resolution":         floatSetting(func(c *director.Config, f float64) { c.ValueResolution = f }),
	"time_resolution":          floatSetting(func(c *director.Config, f float64) { c.TimeResolution = f }),
	"solver":                   stringSetting(func(c *director.Config, s string) { c.Solver = s }),
	"breakpoint_solver":        stringSetting(func(c *director.Config, s string) { c.BreakpointSolver = s }),
	"run_ahead_length":         floatSetting(func(c *director.Config, f float64) { c.RunAheadLength = f }),
	"synchronize_to_real_time": boolSetting(func(c *director.Config, b bool) { c.SynchronizeToRealTime = b }),
	"max_microsteps":           intSetting(func(c *director.Config, n int) { c.MaxMicrosteps = n }),
}

// DirectorKeys lists the accepted director settings in sorted order.
func DirectorKeys() []string {
	keys := make([]string, 0, len(directorSettings))
	for k := range directorSettings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyDirector overlays model-file settings onto cfg. Keys are applied in
// sorted order and every problem is reported.
func ApplyDirector(cfg *director.Config, settings map[string]any) []error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		set, ok := directorSettings[k]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown director setting %q", k))
			continue
		}
		if err := set(cfg, settings[k]); err != nil {
			errs = append(errs, fmt.Errorf("director setting %q: %w", k, err))
		}
	}
	return errs
}

func floatSetting(assign func(*director.Config, float64)) setting {
	return func(c *director.Config, v any) error {
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("must be a number, got %T", v)
		}
		assign(c, f)
		return nil
	}
}

// timeSetting also accepts "inf" for an unbounded time.
func timeSetting(assign func(*director.Config, float64)) setting {
	return func(c *director.Config, v any) error {
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "inf", "+inf", "infinity":
				assign(c, math.Inf(1))
				return nil
			}
			return fmt.Errorf("must be a number or \"inf\", got %q", s)
		}
		return floatSetting(assign)(c, v)
	}
}

func intSetting(assign func(*director.Config, int)) setting {
	return func(c *director.Config, v any) error {
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("must be an integer, got %v", v)
		}
		assign(c, int(f))
		return nil
	}
}

func stringSetting(assign func(*director.Config, string)) setting {
	return func(c *director.Config, v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("must be a string, got %T", v)
		}
		assign(c, s)
		return nil
	}
}

func boolSetting(assign func(*director.Config, bool)) setting {
	return func(c *director.Config, v any) error {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("must be a bool, got %T", v)
		}
		assign(c, b)
		return nil
	}
}
