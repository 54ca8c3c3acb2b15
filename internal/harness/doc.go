// Package harness runs scenario files against the hysim engine.
//
// A scenario names a CUE model, optionally overrides its stop time, and
// lists assertions over the finished run:
//
//	name: bouncing_threshold
//	description: "Detector fires once the integrator crosses 1"
//	model: models/threshold.cue
//	run_id: "test-run-threshold"
//	stop_time: 2
//	assertions:
//	  - type: final_time
//	    value: 2
//	  - type: event_count
//	    kind: event
//	    actor: det
//	    count: 1
//	  - type: schedule_contains
//	    list: dynamic
//	    actors: [x]
//
// The following assertion types are supported:
//
//   - final_time: the run ended at value (within tolerance)
//   - recorder_last: the last sample of a top-level recorder equals value
//   - event_count: the stored trace holds count events of kind, optionally
//     filtered by actor
//   - schedule_contains: the named schedule list holds actors in this
//     relative order
//
// A scenario may instead expect the run to fail with expect_error, which
// matches either a runtime error code (ACCURACY_EXHAUSTED) or a model
// validation code (E204).
//
// Every scenario runs in a fresh in-memory store with a fixed run ID, so the
// same scenario always produces a byte-identical trace. RunWithGolden
// compares that trace against testdata/golden/<name>.golden.
//
// Example usage:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/threshold.yaml")
//	if err != nil {
//	    return err
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    return err
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        fmt.Println(e)
//	    }
//	}
package harness
