package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/compiler"
)

func TestValidate_Valid(t *testing.T) {
	path := writeModel(t, t.TempDir(), "ramp.cue", rampModel)

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Model ramp valid")
}

func TestValidate_FeedbackThroughIntegratorIsInfo(t *testing.T) {
	path := writeModel(t, t.TempDir(), "osc.cue", oscillatorModel)

	out, _, err := execute(t, "validate", "--strict", path)
	require.NoError(t, err)
	assert.Contains(t, out, "info: ")
	assert.Contains(t, out, "✓ Model oscillator valid")
}

func TestValidate_UnknownKind(t *testing.T) {
	path := writeModel(t, t.TempDir(), "bad.cue", unknownKindModel)

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownActorKind)
}

func TestValidate_AlgebraicLoop(t *testing.T) {
	path := writeModel(t, t.TempDir(), "loop.cue", selfLoopModel)

	t.Run("warns by default", func(t *testing.T) {
		out, _, err := execute(t, "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "warning: ")
		assert.Contains(t, out, "✓ Model self-loop valid")
	})

	t.Run("fails with strict", func(t *testing.T) {
		out, _, err := execute(t, "validate", "--strict", path)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, err.Error(), "1 algebraic loop(s)")
		assert.Contains(t, out, "✗ Validation failed")
	})

	t.Run("strict json names the loop", func(t *testing.T) {
		out, _, err := execute(t, "validate", "--strict", "--format", "json", path)
		require.Error(t, err)

		var resp struct {
			Status string           `json:"status"`
			Data   ValidationResult `json:"data"`
			Error  *CLIError        `json:"error"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.False(t, resp.Data.Valid)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeAlgebraicLoop, resp.Error.Code)
		require.Len(t, resp.Data.Warnings, 1)
		assert.Equal(t, []string{"g", "g"}, resp.Data.Warnings[0].Path)
	})
}

func TestValidate_SyntaxErrorIsValidationFailure(t *testing.T) {
	path := writeModel(t, t.TempDir(), "broken.cue", syntaxErrorModel)

	out, _, err := execute(t, "validate", "--format", "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, ErrCodeLoadFailed, resp.Data.Errors[0].Code)
	assert.Equal(t, "load", resp.Data.Errors[0].Field)
}

func TestValidate_MissingModel(t *testing.T) {
	out, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}
