package cli

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/testutil"
	"github.com/roach88/hysim/internal/trace"
)

// recordRun runs model into a fresh database and returns the database path.
func recordRun(t *testing.T, model, runID string) (dbPath, modelPath string) {
	t.Helper()
	dir := t.TempDir()
	modelPath = writeModel(t, dir, "model.cue", model)
	dbPath = filepath.Join(dir, "runs.db")
	_, err := runFixed(t, runID, "text", "--db", dbPath, modelPath)
	require.NoError(t, err)
	return dbPath, modelPath
}

func TestTrace_LatestRunText(t *testing.T) {
	dbPath, _ := recordRun(t, oscillatorModel, "run-osc")

	out, _, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-osc (oscillator): completed at t=")
	assert.Contains(t, out, " step ")
	assert.Contains(t, out, " event ")
	assert.Regexp(t, `\d+ step\(s\), \d+ event\(s\), \d+ rollback\(s\)`, out)
}

func TestTrace_JSONTimelineIsOrdered(t *testing.T) {
	dbPath, _ := recordRun(t, oscillatorModel, "run-osc")

	out, _, err := execute(t, "trace", "--db", dbPath, "--format", "json", "run-osc")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		RunID  string      `json:"run_id"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-osc", resp.RunID)
	assert.Equal(t, len(resp.Data.Steps), resp.Data.Stats.Steps)
	assert.Equal(t, resp.Data.Stats.Steps+resp.Data.Stats.Events+resp.Data.Stats.Rollbacks, len(resp.Data.Timeline))
	for i := 1; i < len(resp.Data.Timeline); i++ {
		assert.Less(t, resp.Data.Timeline[i-1].Seq, resp.Data.Timeline[i].Seq)
	}
	assert.NotEmpty(t, resp.Data.Events)
}

func TestTrace_KindFilter(t *testing.T) {
	dbPath, _ := recordRun(t, oscillatorModel, "run-osc")

	out, _, err := execute(t, "trace", "--db", dbPath, "--kind", string(trace.EventEmitted), "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data.Events)
	for _, e := range resp.Data.Events {
		assert.Equal(t, trace.EventEmitted, e.Kind)
	}
}

func TestTrace_Errors(t *testing.T) {
	dbPath, _ := recordRun(t, rampModel, "run-ramp")

	t.Run("database missing", func(t *testing.T) {
		out, _, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "none.db"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "database not found")
	})

	t.Run("run missing", func(t *testing.T) {
		out, _, err := execute(t, "trace", "--db", dbPath, "no-such-run")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "run not found: no-such-run")
	})

	t.Run("db flag required", func(t *testing.T) {
		_, _, err := execute(t, "trace")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
	})
}

func TestBuildTimeline(t *testing.T) {
	steps := []trace.StepRecord{
		{Seq: 1, Begin: 0, End: 0.1, StepSize: 0.1, Solver: "forward-euler", Rounds: 1},
		{Seq: 4, Begin: 0.1, End: 0.2, StepSize: 0.1, Solver: "forward-euler", Rounds: 1, Retries: 2},
	}
	events := []trace.EventRecord{{Seq: 2, Time: 0.1, Kind: trace.EventEmitted, Actor: "hi"}}
	rollbacks := []trace.RollbackRecord{{Seq: 3, From: 0.1, To: 0.3, Target: 0.2}}

	timeline := buildTimeline(steps, events, rollbacks)
	require.Len(t, timeline, 4)

	var types []string
	for _, e := range timeline {
		types = append(types, e.Type)
	}
	assert.Equal(t, "step event rollback step", strings.Join(types, " "))
	assert.Equal(t, "event hi", timeline[1].Detail)
	assert.Equal(t, "0.1 -> 0.3, replay to 0.2", timeline[2].Detail)
	assert.Contains(t, timeline[3].Detail, "retries=2")
}

func TestTrace_ActorAndWindowFilter(t *testing.T) {
	dbPath, _ := recordRun(t, oscillatorModel, "run-osc")

	out, _, err := execute(t, "trace", "--db", dbPath, "--actor", "hi", "--from", "0", "--to", "2.5", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data.Events)
	for _, e := range resp.Data.Events {
		assert.Equal(t, "hi", e.Actor)
		assert.LessOrEqual(t, e.Time, 2.5)
	}
}

func TestTrace_DefaultsToLatestRun(t *testing.T) {
	dir := t.TempDir()
	path := writeModel(t, dir, "ramp.cue", rampModel)
	dbPath := filepath.Join(dir, "runs.db")
	ids := testutil.NewSequentialRunIDs("run")

	for range 2 {
		cmd := newRunCommand(&RunOptions{RootOptions: &RootOptions{Format: "text"}, RunIDs: ids})
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--db", dbPath, path})
		require.NoError(t, cmd.Execute())
	}

	out, _, err := execute(t, "trace", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-2 (ramp)")
}
