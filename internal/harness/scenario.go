package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hysim/internal/scheduler"
	"github.com/roach88/hysim/internal/trace"
)

// Scenario defines one scripted run of a model and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the path to the CUE model file or directory. Relative paths
	// are resolved against the scenario file's directory.
	Model string `yaml:"model"`

	// RunID is the fixed run ID for deterministic traces.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// StopTime overrides the model's director stop time.
	StopTime *float64 `yaml:"stop_time,omitempty"`

	// ExpectError is the error code the run must fail with: a runtime code
	// such as ACCURACY_EXHAUSTED or a validation code such as E204.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the finished run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Assertion validates one property of a finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_time": the run ended at Value
	// - "recorder_last": Recorder's last sample equals Value
	// - "event_count": Count events of Kind, optionally from Actor
	// - "schedule_contains": List holds Actors in relative order
	Type string `yaml:"type"`

	// Value is the expected number (final_time, recorder_last).
	Value *float64 `yaml:"value,omitempty"`

	// Tolerance is the allowed absolute difference from Value.
	// Zero means DefaultTolerance.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Recorder names a top-level recorder actor (recorder_last).
	Recorder string `yaml:"recorder,omitempty"`

	// Kind is the event kind: event, breakpoint or fire_at (event_count).
	Kind string `yaml:"kind,omitempty"`

	// Actor filters events by actor (event_count).
	Actor string `yaml:"actor,omitempty"`

	// Count is the expected number of events (event_count).
	Count *int `yaml:"count,omitempty"`

	// List names a schedule list (schedule_contains).
	List string `yaml:"list,omitempty"`

	// Actors must appear in List in this order (schedule_contains).
	// Other actors may be interleaved.
	Actors []string `yaml:"actors,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalTime        = "final_time"
	AssertRecorderLast     = "recorder_last"
	AssertEventCount       = "event_count"
	AssertScheduleContains = "schedule_contains"
)

// DefaultTolerance is used when an assertion gives no tolerance.
const DefaultTolerance = 1e-9

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the model path BEFORE validation so existence is checked
	// against the right file.
	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) {
		scenario.Model = filepath.Join(filepath.Dir(path), scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files directly inside dir,
// sorted by path.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Model == "" {
		return fmt.Errorf("model is required")
	}

	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model not found: %s", s.Model)
	}

	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}

	if s.StopTime != nil && *s.StopTime < 0 {
		return fmt.Errorf("stop_time must be non-negative")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Tolerance < 0 {
		return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
	}

	switch a.Type {
	case AssertFinalTime:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for final_time", index)
		}
	case AssertRecorderLast:
		if a.Recorder == "" {
			return fmt.Errorf("assertions[%d]: recorder is required for recorder_last", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for recorder_last", index)
		}
	case AssertEventCount:
		if !validEventKind(a.Kind) {
			return fmt.Errorf("assertions[%d]: kind must be event, breakpoint or fire_at for event_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertScheduleContains:
		if !validListName(a.List) {
			return fmt.Errorf("assertions[%d]: unknown schedule list %q", index, a.List)
		}
		if len(a.Actors) == 0 {
			return fmt.Errorf("assertions[%d]: actors list is required for schedule_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validEventKind(kind string) bool {
	switch trace.EventKind(kind) {
	case trace.EventEmitted, trace.EventBreakpoint, trace.EventFireAt:
		return true
	}
	return false
}

func validListName(name string) bool {
	for _, l := range (&scheduler.Schedule{}).Lists() {
		if l.Name == name {
			return true
		}
	}
	return false
}
