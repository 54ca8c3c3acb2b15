package compiler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/library"
)

const rampSource = `
model: "ramp"
director: {
	stop_time:      1
	init_step_size: 0.1
	solver:         "forward-euler"
}
actors: {
	one: {kind: "const", params: {value: 1}}
	x:   {kind: "integrator", params: {initial: 0}}
	rec: {kind: "recorder"}
}
connections: [
	{from: "one.output", to: "x.input"},
	{from: "x.output", to: "rec.input"},
]
`

func compileString(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

func TestCompileModel_Ramp(t *testing.T) {
	spec, err := CompileModel(compileString(t, rampSource))
	require.NoError(t, err)

	assert.Equal(t, "ramp", spec.Name)
	require.Len(t, spec.Actors, 3)
	assert.Equal(t, []string{"one", "x", "rec"}, []string{spec.Actors[0].Name, spec.Actors[1].Name, spec.Actors[2].Name})
	assert.Equal(t, "const", spec.Actors[0].Kind)
	assert.Equal(t, 1.0, spec.Actors[0].Params["value"])
	assert.Equal(t, []ConnectionSpec{
		{From: "one.output", To: "x.input", Pos: spec.Connections[0].Pos},
		{From: "x.output", To: "rec.input", Pos: spec.Connections[1].Pos},
	}, spec.Connections)
	assert.Equal(t, 1.0, spec.Director["stop_time"])
	assert.Equal(t, "forward-euler", spec.Director["solver"])
}

func TestCompileModel_MissingName(t *testing.T) {
	_, err := CompileModel(compileString(t, `actors: {}`))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "model", ce.Field)
}

func TestCompileModel_MissingKind(t *testing.T) {
	_, err := CompileModel(compileString(t, `
model: "m"
actors: {a: {params: {value: 1}}}
`))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "actors.a.kind", ce.Field)
}

func TestCompileModel_UnsupportedParam(t *testing.T) {
	_, err := CompileModel(compileString(t, `
model: "m"
actors: {a: {kind: "const", params: {value: [1, 2]}}}
`))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "actors.a.params.value", ce.Field)
}

func TestCompileModel_BoundaryOnlyOnSubsystems(t *testing.T) {
	_, err := CompileModel(compileString(t, `
model: "m"
inputs: {u: "continuous"}
actors: {a: {kind: "const"}}
`))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "inputs", ce.Field)
}

func TestCompileModel_NormalizesNames(t *testing.T) {
	spec, err := CompileModel(compileString(t, "model: \"cafe\u0301\"\nactors: {\"xe\u0301\": {kind: \"const\"}}\n"))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", spec.Name)
	assert.Equal(t, "x\u00e9", spec.Actors[0].Name)
}

func TestCompileModel_Subsystem(t *testing.T) {
	spec, err := CompileModel(compileString(t, `
model: "outer"
actors: {
	two: {kind: "const", params: {value: 2}}
	sub: {
		kind: "subsystem"
		director: {run_ahead_length: 0.1}
		inputs: {u: "continuous"}
		outputs: {y: "continuous"}
		actors: {x: {kind: "integrator"}}
		connections: [
			{from: "u", to: "x.input"},
			{from: "x.output", to: "y"},
		]
	}
}
connections: [{from: "two.output", to: "sub.u"}]
`))
	require.NoError(t, err)

	sub := spec.Actors[1]
	require.NotNil(t, sub.Body)
	assert.Equal(t, "sub", sub.Body.Name)
	assert.Equal(t, []BoundarySpec{{Name: "u", Kind: "continuous"}}, sub.Body.Inputs)
	assert.Equal(t, []BoundarySpec{{Name: "y", Kind: "continuous"}}, sub.Body.Outputs)
	assert.Equal(t, 0.1, sub.Body.Director["run_ahead_length"])
	assert.Empty(t, Validate(spec))
}

func TestBuild_RunsRamp(t *testing.T) {
	spec, err := CompileModel(compileString(t, rampSource))
	require.NoError(t, err)

	m, err := Build(spec)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Config.StopTime)
	assert.Equal(t, 0.1, m.Config.InitStepSize)
	require.Len(t, m.Recorders(), 1)

	d, err := director.New(m.Composite, m.Config, director.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	require.NoError(t, d.Run(context.Background()))

	last, ok := m.Recorders()[0].Last()
	require.True(t, ok)
	assert.InDelta(t, 1.0, last.Value, 1e-9)
}

func TestBuild_PortKindOverride(t *testing.T) {
	spec, err := CompileModel(compileString(t, `
model: "m"
actors: {
	p:   {kind: "periodic_pulse", params: {period: 0.5}}
	rec: {kind: "recorder", ports: {input: "discrete"}}
}
connections: [{from: "p.output", to: "rec.input"}]
`))
	require.NoError(t, err)

	m, err := Build(spec)
	require.NoError(t, err)
	n, ok := m.Composite.Node("rec")
	require.True(t, ok)
	assert.Equal(t, "discrete", n.Actor.Ports()[0].Declared().String())
}

func TestBuild_Subsystem(t *testing.T) {
	spec, err := CompileModel(compileString(t, `
model: "outer"
director: {stop_time: 1}
actors: {
	two: {kind: "const", params: {value: 2}}
	sub: {
		kind: "subsystem"
		director: {run_ahead_length: 0.1}
		inputs: {u: "continuous"}
		outputs: {y: "continuous"}
		actors: {x: {kind: "integrator"}}
		connections: [
			{from: "u", to: "x.input"},
			{from: "x.output", to: "y"},
		]
	}
	rec: {kind: "recorder"}
}
connections: [
	{from: "two.output", to: "sub.u"},
	{from: "sub.y", to: "rec.input"},
]
`))
	require.NoError(t, err)

	m, err := Build(spec)
	require.NoError(t, err)
	n, ok := m.Composite.Node("sub")
	require.True(t, ok)
	sub, ok := n.Actor.(*library.Subsystem)
	require.True(t, ok)
	assert.Len(t, sub.Inner().Nodes(), 1)
	assert.Len(t, sub.Inner().BoundaryInputs(), 1)
	assert.Len(t, sub.Inner().BoundaryOutputs(), 1)
}

func TestBuild_ReportsValidationErrors(t *testing.T) {
	spec := &ModelSpec{Name: "m", Actors: []ActorSpec{{Name: "a", Kind: "warp_drive"}}}

	_, err := Build(spec)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, ErrUnknownActorKind, verrs[0].Code)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ramp.cue")
	require.NoError(t, os.WriteFile(path, []byte(rampSource), 0o644))

	spec, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ramp", spec.Name)
	assert.Len(t, spec.Actors, 3)
}

func TestLoadFile_SyntaxError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte("model: \"m\"\nactors: {\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
