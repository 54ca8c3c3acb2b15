package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/compiler"
)

func TestCompile_Text(t *testing.T) {
	path := writeModel(t, t.TempDir(), "ramp.cue", rampModel)

	out, _, err := execute(t, "compile", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Compiled model ramp: 3 actor(s), 2 connection(s)")
	assert.Contains(t, out, "x: integrator")
	assert.Contains(t, out, "rec: recorder")
}

func TestCompile_JSON(t *testing.T) {
	path := writeModel(t, t.TempDir(), "ramp.cue", rampModel)

	out, _, err := execute(t, "compile", "--format", "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string             `json:"status"`
		Data   compiler.ModelSpec `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ramp", resp.Data.Name)
	assert.Len(t, resp.Data.Actors, 3)
	assert.Len(t, resp.Data.Connections, 2)
	assert.Contains(t, resp.Data.Director, "stop_time")
}

func TestCompile_OutputFile(t *testing.T) {
	dir := t.TempDir()
	path := writeModel(t, dir, "ramp.cue", rampModel)
	outFile := filepath.Join(dir, "ramp.json")

	out, _, err := execute(t, "compile", "-o", outFile, path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote model to "+outFile)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var spec compiler.ModelSpec
	require.NoError(t, json.Unmarshal(data, &spec))
	assert.Equal(t, "ramp", spec.Name)
}

func TestCompile_Directory(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "ramp.cue", "package ramp\n\n"+rampModel)

	out, _, err := execute(t, "compile", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Compiled model ramp")
}

func TestCompile_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(empty, 0755))
	broken := writeModel(t, dir, "broken.cue", syntaxErrorModel)

	tests := []struct {
		name     string
		path     string
		wantCode string
	}{
		{"missing path", filepath.Join(dir, "nope.cue"), ErrCodeNotFound},
		{"empty directory", empty, ErrCodeNoFiles},
		{"syntax error", broken, ErrCodeLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "compile", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantCode)
		})
	}
}

func TestCalculateStats_Nested(t *testing.T) {
	spec := &compiler.ModelSpec{
		Name: "outer",
		Actors: []compiler.ActorSpec{
			{Name: "src", Kind: "const"},
			{Name: "rec", Kind: "recorder"},
			{Name: "sub", Kind: compiler.SubsystemKind, Body: &compiler.ModelSpec{
				Name: "inner",
				Actors: []compiler.ActorSpec{
					{Name: "x", Kind: "integrator"},
					{Name: "r", Kind: "recorder"},
				},
				Connections: []compiler.ConnectionSpec{{From: "x.output", To: "r.input"}},
			}},
		},
		Connections: []compiler.ConnectionSpec{{From: "src.output", To: "rec.input"}},
	}

	assert.Equal(t, CompilationStats{Actors: 5, Connections: 2, Subsystems: 1, Recorders: 2}, calculateStats(spec))
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := map[string]string{
		"cue":                  ErrCodeLoadFailed,
		"model":                compiler.ErrModelNameEmpty,
		"actors.w.kind":        compiler.ErrUnknownActorKind,
		"actors.x.params.gain": compiler.ErrInvalidActorParams,
		"actors.x.params":      compiler.ErrInvalidActorParams,
		"director.stop_time":   compiler.ErrInvalidDirector,
		"connections[0].from":  compiler.ErrMalformedEndpoint,
		"something.else":       ErrCodeBuildFailed,
	}
	for field, want := range tests {
		assert.Equal(t, want, MapFieldToErrorCode(field), field)
	}
}
