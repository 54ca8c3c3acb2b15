package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const rampModel = `model: "ramp"
director: {
	stop_time:      1
	init_step_size: 0.1
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

const oscillatorModel = `model: "oscillator"
director: stop_time: 2.5
actors: {
	x:    {kind: "integrator"}
	hi:   {kind: "level_crossing", params: {level: 1, direction: "rising", value: -1}}
	lo:   {kind: "level_crossing", params: {level: 0, direction: "falling", value: 1}}
	hold: {kind: "sample_hold", params: {initial: 1}}
	rec:  {kind: "recorder"}
}
connections: [
	{from: "x.output", to: "hi.input"},
	{from: "x.output", to: "lo.input"},
	{from: "hi.output", to: "hold.input"},
	{from: "lo.output", to: "hold.input"},
	{from: "hold.output", to: "x.input"},
	{from: "x.output", to: "rec.input"},
]
`

const selfLoopModel = `model: "self-loop"
director: stop_time: 1
actors: {
	g: {kind: "gain", params: {gain: 2}}
}
connections: [
	{from: "g.output", to: "g.input"},
]
`

const unknownKindModel = `model: "unknown-kind"
actors: {
	w: {kind: "wobbler"}
}
`

const syntaxErrorModel = `model: "broken"
actors: {
	x: {kind: "integrator"
`

// writeModel writes a CUE model into dir and returns its path.
func writeModel(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
