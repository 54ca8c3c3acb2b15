package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/hysim/internal/compiler"
	"github.com/roach88/hysim/internal/engine"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/store"
	"github.com/roach88/hysim/internal/testutil"
)

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a fixed run ID.
//
// Execution flow:
// 1. Compile the scenario's model
// 2. Run it through the engine into the in-memory store
// 3. Check the run error against expect_error
// 4. Evaluate assertions against the run and the stored trace
//
// The returned error reports only problems running the harness itself, such
// as an unreadable model. Run failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	spec, err := compiler.LoadFile(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	runIDs := testutil.NewFixedRunIDGenerator(scenario.RunID)
	opts := []engine.EngineOption{
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if scenario.StopTime != nil {
		opts = append(opts, engine.WithStopTime(*scenario.StopTime))
	}

	eng := engine.New(st, spec, runIDs, opts...)
	run, runErr := eng.Run(ctx)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := NewResult(runIDs.Generate())
	if runErr != nil {
		result.Err = runErr.Error()
	}
	if run != nil {
		result.RunID = run.RunID
		result.Status = run.Status
		result.FinalTime = run.FinalTime
		result.Stats = run.Stats
		result.Trace = run.Trace
	}

	switch {
	case scenario.ExpectError != "" && runErr == nil:
		result.AddError(fmt.Sprintf("expected error %s, run completed", scenario.ExpectError))
	case scenario.ExpectError != "" && !matchesCode(runErr, scenario.ExpectError):
		result.AddError(fmt.Sprintf("expected error %s, got: %v", scenario.ExpectError, runErr))
	case scenario.ExpectError == "" && runErr != nil:
		result.AddError(fmt.Sprintf("run failed: %v", runErr))
	}

	if run == nil {
		if len(scenario.Assertions) > 0 {
			result.AddError("assertions skipped: model did not start")
		}
		return result, nil
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
		Run:   run,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// matchesCode reports whether err carries code, either as a runtime error
// code or as the code of any model validation error.
func matchesCode(err error, code string) bool {
	if string(simerr.CodeOf(err)) == code {
		return true
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		for _, v := range verrs {
			if v.Code == code {
				return true
			}
		}
	}
	return false
}
