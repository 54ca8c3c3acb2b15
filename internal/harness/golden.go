package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/hysim/internal/trace"
)

// Snapshot renders a scenario result as its golden trace: one canonical JSON
// header line followed by one line per trace record in seq order.
//
// All lines use canonical JSON, so the same scenario always renders to the
// same bytes.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	header := map[string]any{
		"scenario_name": scenario.Name,
		"run_id":        result.RunID,
		"final_time":    result.FinalTime,
	}
	if result.Status != "" {
		header["status"] = string(result.Status)
	}
	if result.Err != "" {
		header["error"] = result.Err
	}

	line, err := trace.MarshalCanonical(header)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot header: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(line)
	buf.WriteByte('\n')

	if result.Trace != nil {
		body, err := result.Trace.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot trace: %w", err)
		}
		buf.Write(body)
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its trace against a golden
// file. By default the golden file is testdata/golden/{scenario.Name}.golden;
// opts may override goldie's defaults, for example the fixture directory.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check assertions. Test failure
// (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario, result, opts...); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result, opts ...goldie.Option) error {
	t.Helper()

	snapshot, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := newGoldie(t, opts...)
	g.Assert(t, scenario.Name, snapshot)
	return nil
}

func newGoldie(t *testing.T, opts ...goldie.Option) *goldie.Goldie {
	base := []goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}
	return goldie.New(t, append(base, opts...)...)
}
