package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/store"
)

func TestReplay_Reproduces(t *testing.T) {
	dbPath, modelPath := recordRun(t, oscillatorModel, "run-osc")

	out, _, err := execute(t, "replay", "--db", dbPath, modelPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Run run-osc reproduced")
}

func TestReplay_ByRunIDJSON(t *testing.T) {
	dbPath, modelPath := recordRun(t, rampModel, "run-ramp")

	out, _, err := execute(t, "replay", "--db", dbPath, "--format", "json", modelPath, "run-ramp")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Deterministic)
	assert.Equal(t, resp.Data.StoredRecords, resp.Data.ReplayRecords)
	assert.Equal(t, store.StatusCompleted, resp.Data.ReplayStatus)
}

func TestReplay_DetectsTamperedTrace(t *testing.T) {
	dbPath, modelPath := recordRun(t, rampModel, "run-ramp")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE steps SET end_time = end_time + 1
		WHERE run_id = ? AND seq = (SELECT MIN(seq) FROM steps WHERE run_id = ?)`, "run-ramp", "run-ramp")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(t, "replay", "--db", dbPath, modelPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Run run-ramp not reproduced")
	assert.Contains(t, out, "first difference at record 1")
}

func TestReplay_Errors(t *testing.T) {
	dbPath, _ := recordRun(t, rampModel, "run-ramp")
	other := writeModel(t, t.TempDir(), "osc.cue", oscillatorModel)

	t.Run("model mismatch", func(t *testing.T) {
		out, _, err := execute(t, "replay", "--db", dbPath, other)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, `is of model "ramp", not "oscillator"`)
	})

	t.Run("run missing", func(t *testing.T) {
		out, _, err := execute(t, "replay", "--db", dbPath, other, "no-such-run")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "run not found: no-such-run")
	})

	t.Run("database missing", func(t *testing.T) {
		out, _, err := execute(t, "replay", "--db", filepath.Join(t.TempDir(), "none.db"), other)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "database not found")
	})
}

func TestReplay_RejectsStoppedRun(t *testing.T) {
	dbPath, modelPath := recordRun(t, rampModel, "run-ramp")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE runs SET status = ? WHERE id = ?`, store.StatusStopped, "run-ramp")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, _, err := execute(t, "replay", "--db", dbPath, modelPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "is stopped and cannot be replayed")
}

func TestCompareSnapshots(t *testing.T) {
	same := compareSnapshots([]byte("a\nb\n"), []byte("a\nb\n"))
	assert.True(t, same.Deterministic)
	assert.Zero(t, same.FirstDiffLine)

	longer := compareSnapshots([]byte("a\nb\n"), []byte("a\nb\nc\n"))
	assert.False(t, longer.Deterministic)
	assert.Equal(t, 3, longer.FirstDiffLine)
	assert.Empty(t, longer.StoredLine)
	assert.Equal(t, "c", longer.ReplayLine)
}
