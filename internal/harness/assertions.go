package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/hysim/internal/engine"
	"github.com/roach88/hysim/internal/store"
	"github.com/roach88/hysim/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes enough context to debug the failure without rerunning.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Context  []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)

	if len(e.Context) > 0 {
		fmt.Fprintf(&buf, "\n\nContext:")
		for i, line := range e.Context {
			fmt.Fprintf(&buf, "\n  [%d] %s", i+1, line)
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions read: the finished run and the
// store it was persisted to.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	Run   *engine.Result
}

// EvaluateAssertions evaluates all assertions against the run.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalTime:
			err = assertFinalTime(actx.Run, assertion)
		case AssertRecorderLast:
			err = assertRecorderLast(actx.Run, assertion)
		case AssertEventCount:
			if actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: event_count requires database context", i)
			} else {
				err = assertEventCount(actx.Ctx, actx.Store, actx.Run.RunID, assertion)
			}
		case AssertScheduleContains:
			err = assertScheduleContains(actx.Run, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func tolerance(a Assertion) float64 {
	if a.Tolerance > 0 {
		return a.Tolerance
	}
	return DefaultTolerance
}

func within(got, want, tol float64) bool {
	if math.IsInf(want, 0) {
		return got == want
	}
	return math.Abs(got-want) <= tol
}

// assertFinalTime checks the time the director stopped at.
func assertFinalTime(run *engine.Result, a Assertion) error {
	if within(run.FinalTime, *a.Value, tolerance(a)) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalTime,
		Expected: fmt.Sprintf("%g (±%g)", *a.Value, tolerance(a)),
		Actual:   fmt.Sprintf("%g", run.FinalTime),
		Context:  []string{fmt.Sprintf("status %s after %d steps", run.Status, run.Stats.Steps)},
	}
}

// assertRecorderLast checks the last sample a top-level recorder kept.
func assertRecorderLast(run *engine.Result, a Assertion) error {
	var names []string
	for _, r := range run.Model.Recorders() {
		names = append(names, r.Name())
		if r.Name() != a.Recorder {
			continue
		}
		last, ok := r.Last()
		if !ok {
			return &AssertionError{
				Type:     AssertRecorderLast,
				Expected: fmt.Sprintf("%s last value %g", a.Recorder, *a.Value),
				Actual:   "no samples recorded",
			}
		}
		if within(last.Value, *a.Value, tolerance(a)) {
			return nil
		}
		return &AssertionError{
			Type:     AssertRecorderLast,
			Expected: fmt.Sprintf("%s last value %g (±%g)", a.Recorder, *a.Value, tolerance(a)),
			Actual:   fmt.Sprintf("%g at time %g", last.Value, last.Time),
		}
	}
	return &AssertionError{
		Type:     AssertRecorderLast,
		Expected: fmt.Sprintf("recorder %s", a.Recorder),
		Actual:   "not found",
		Context:  names,
	}
}

// assertEventCount counts stored events of one kind, optionally from one
// actor.
func assertEventCount(ctx context.Context, st *store.Store, runID string, a Assertion) error {
	events, err := st.ReadEvents(ctx, runID, trace.EventKind(a.Kind))
	if err != nil {
		return fmt.Errorf("event_count: %w", err)
	}

	var matched []string
	for _, e := range events {
		if a.Actor != "" && e.Actor != a.Actor {
			continue
		}
		matched = append(matched, fmt.Sprintf("seq %d time %g %s %s", e.Seq, e.Time, e.Kind, e.Actor))
	}

	if len(matched) == *a.Count {
		return nil
	}
	subject := a.Kind
	if a.Actor != "" {
		subject = fmt.Sprintf("%s from %s", a.Kind, a.Actor)
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s events", *a.Count, subject),
		Actual:   fmt.Sprintf("%d", len(matched)),
		Context:  matched,
	}
}

// assertScheduleContains checks that actors appear in a schedule list in
// the given relative order. Actors don't need to be consecutive.
func assertScheduleContains(run *engine.Result, a Assertion) error {
	sched, err := run.Director.Schedule()
	if err != nil {
		return fmt.Errorf("schedule_contains: %w", err)
	}

	var actual []string
	for _, l := range sched.Lists() {
		if l.Name == a.List {
			actual = l.Actors
			break
		}
	}

	next := 0
	for _, name := range actual {
		if next < len(a.Actors) && name == a.Actors[next] {
			next++
		}
	}
	if next == len(a.Actors) {
		return nil
	}
	return &AssertionError{
		Type:     AssertScheduleContains,
		Expected: fmt.Sprintf("%s list with %v in order", a.List, a.Actors),
		Actual:   fmt.Sprintf("%v", actual),
	}
}
