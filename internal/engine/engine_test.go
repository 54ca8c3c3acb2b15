package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/compiler"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/store"
	"github.com/roach88/hysim/internal/testutil"
	"github.com/roach88/hysim/internal/trace"
)

const rampModel = `
model: "ramp"
director: {stop_time: 1}
actors: {
	one: {kind: "const", params: {value: 1}}
	x:   {kind: "integrator"}
	rec: {kind: "recorder"}
}
connections: [
	{from: "one.output", to: "x.input"},
	{from: "x.output", to: "rec.input"},
]
`

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func compile(t *testing.T, src string) *compiler.ModelSpec {
	t.Helper()
	spec, err := compiler.CompileModel(cuecontext.New().CompileString(src))
	require.NoError(t, err)
	return spec
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEngine_RunPersistsTrace(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	e := New(st, compile(t, rampModel), testutil.NewFixedRunIDGenerator("run-1"), WithLogger(quiet()))

	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, store.StatusCompleted, res.Status)
	assert.InDelta(t, 1.0, res.FinalTime, 1e-12)
	assert.Positive(t, res.Stats.Steps)

	run, err := st.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "ramp", run.Model)
	assert.Equal(t, store.StatusCompleted, run.Status)
	require.NotNil(t, run.FinalTime)
	assert.InDelta(t, 1.0, *run.FinalTime, 1e-12)

	loaded, err := st.LoadTrace(ctx, "run-1")
	require.NoError(t, err)
	want, err := res.Trace.Snapshot()
	require.NoError(t, err)
	got, err := loaded.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestEngine_StateProbe(t *testing.T) {
	res, err := New(nil, compile(t, rampModel), testutil.NewFixedRunIDGenerator(""), WithLogger(quiet())).Run(context.Background())
	require.NoError(t, err)

	steps := res.Trace.Steps()
	require.NotEmpty(t, steps)
	last := steps[len(steps)-1]
	assert.InDelta(t, 1.0, last.States["x"], 1e-9)

	res, err = New(nil, compile(t, rampModel), testutil.NewFixedRunIDGenerator(""), WithLogger(quiet()), WithoutStateProbe()).Run(context.Background())
	require.NoError(t, err)
	for _, s := range res.Trace.Steps() {
		assert.Nil(t, s.States)
	}
}

func TestEngine_StopTimeOverride(t *testing.T) {
	res, err := New(nil, compile(t, rampModel), testutil.NewFixedRunIDGenerator(""), WithLogger(quiet()), WithStopTime(0.5)).Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.FinalTime, 1e-12)
	assert.Equal(t, 0.5, res.Model.Config.StopTime)
}

func TestEngine_ExtraRecorder(t *testing.T) {
	mem := trace.NewMemory()
	res, err := New(nil, compile(t, rampModel), testutil.NewFixedRunIDGenerator(""), WithLogger(quiet()), WithRecorder(mem)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.Trace.Steps(), mem.Steps())
	assert.Equal(t, res.Trace.Events(), mem.Events())
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() []byte {
		res, err := New(nil, compile(t, rampModel), testutil.NewFixedRunIDGenerator("r"), WithLogger(quiet())).Run(context.Background())
		require.NoError(t, err)
		snap, err := res.Trace.Snapshot()
		require.NoError(t, err)
		return snap
	}
	assert.Equal(t, string(run()), string(run()))
}

func TestEngine_StopBeforeRun(t *testing.T) {
	st := openStore(t)
	e := New(st, compile(t, rampModel), testutil.NewFixedRunIDGenerator("run-1"), WithLogger(quiet()))
	e.Stop()

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.StatusStopped, res.Status)
	assert.Equal(t, 0.0, res.FinalTime)

	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusStopped, run.Status)
}

// cancelOnStep cancels the run's context once the first step is committed.
type cancelOnStep struct {
	trace.Nop
	cancel context.CancelFunc
}

func (c cancelOnStep) RecordStep(trace.StepRecord) error {
	c.cancel()
	return nil
}

func TestEngine_CancelledRunIsRecordedAsStopped(t *testing.T) {
	st := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := New(st, compile(t, rampModel), testutil.NewFixedRunIDGenerator("run-1"),
		WithLogger(quiet()), WithRecorder(cancelOnStep{cancel: cancel}))
	res, err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, store.StatusStopped, res.Status)
	assert.Equal(t, 1, res.Stats.Steps)

	run, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusStopped, run.Status)
	assert.Contains(t, run.Error, "canceled")

	steps, err := st.ReadSteps(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, steps, 1)
}

func TestEngine_SchedulingErrorIsNotRecorded(t *testing.T) {
	st := openStore(t)
	spec := compile(t, `
model: "loop"
actors: {g: {kind: "gain"}}
connections: [{from: "g.output", to: "g.input"}]
`)

	res, err := New(st, spec, testutil.NewFixedRunIDGenerator("run-1"), WithLogger(quiet())).Run(context.Background())
	assert.Nil(t, res)
	assert.True(t, simerr.IsSchedulingError(err))

	runs, err := st.ReadRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_InvalidModel(t *testing.T) {
	spec := &compiler.ModelSpec{Name: "m", Actors: []compiler.ActorSpec{{Name: "a", Kind: "nope"}}}

	_, err := New(nil, spec, testutil.NewFixedRunIDGenerator(""), WithLogger(quiet())).Run(context.Background())
	var verrs compiler.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestEngine_FailedRunIsRecorded(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	// The crossing at 0.1 needs a step below half the minimum step size.
	spec := compile(t, `
model: "too-coarse"
director: {stop_time: 1, init_step_size: 0.6, min_step_size: 0.5}
actors: {
	r:   {kind: "ramp", params: {slope: 1}}
	det: {kind: "level_crossing", params: {level: 0.1}}
}
connections: [{from: "r.output", to: "det.input"}]
`)

	res, err := New(st, spec, testutil.NewFixedRunIDGenerator("run-1"), WithLogger(quiet())).Run(ctx)
	require.Error(t, err)
	assert.True(t, simerr.IsAccuracyExhausted(err))
	require.NotNil(t, res)
	assert.Equal(t, store.StatusFailed, res.Status)

	run, err := st.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "det")
	assert.Contains(t, run.Stats, `"steps":0`)
}
