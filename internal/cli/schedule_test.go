package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/simerr"
)

func TestSchedule_Text(t *testing.T) {
	path := writeModel(t, t.TempDir(), "ramp.cue", rampModel)

	out, _, err := execute(t, "schedule", path)
	require.NoError(t, err)
	assert.Contains(t, out, "schedule {")
	assert.Contains(t, out, "    dynamic {\n        x\n    }")
	assert.NotContains(t, out, "kinds {")
}

func TestSchedule_VerboseListsKinds(t *testing.T) {
	path := writeModel(t, t.TempDir(), "ramp.cue", rampModel)

	out, _, err := execute(t, "schedule", "--verbose", path)
	require.NoError(t, err)
	assert.Contains(t, out, "kinds {")
}

func TestSchedule_JSON(t *testing.T) {
	path := writeModel(t, t.TempDir(), "osc.cue", oscillatorModel)

	out, _, err := execute(t, "schedule", "--format", "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ScheduleResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "oscillator", resp.Data.Model)
	require.Len(t, resp.Data.Lists, 10)
	assert.NotEmpty(t, resp.Data.Kinds)

	byName := make(map[string][]string)
	for _, l := range resp.Data.Lists {
		byName[l.Name] = l.Actors
	}
	assert.Equal(t, []string{"x"}, byName["dynamic"])
	assert.Contains(t, byName["waveform-generators"], "hold")
}

func TestSchedule_DependencyCycle(t *testing.T) {
	path := writeModel(t, t.TempDir(), "loop.cue", selfLoopModel)

	out, _, err := execute(t, "schedule", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, simerr.CodeDependencyCycle, simerr.CodeOf(err))
	assert.Contains(t, out, "Error ["+string(simerr.CodeDependencyCycle)+"]")
}

func TestSchedule_UnknownKind(t *testing.T) {
	path := writeModel(t, t.TempDir(), "bad.cue", unknownKindModel)

	out, _, err := execute(t, "schedule", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E203]")
}

func TestRunErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeRunFailed, runErrorCode(assert.AnError))
	assert.Equal(t, string(simerr.CodeDependencyCycle),
		runErrorCode(simerr.NewDependencyCycle("algebraic", []string{"g", "g"})))
}
