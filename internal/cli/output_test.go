package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	cause := errors.New("disk full")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", cause, ExitFailure},
		{"failure", NewExitError(ExitFailure, "run failed"), ExitFailure},
		{"command error", WrapExitError(ExitCommandError, "open db", cause), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "x")), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.Equal(t, "run failed", NewExitError(ExitFailure, "run failed").Error())
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]float64{"final_time": 2.5}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"final_time": 2.5}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := []string{"actors.w.kind"}
	require.NoError(t, formatter.Error("E203", "unknown actor kind", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E203", resp.Error.Code)
	assert.Equal(t, "unknown actor kind", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_JSONCarriesRunID(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.JSON(CLIResponse{Status: "ok", RunID: "run-1"}))
	assert.Contains(t, buf.String(), `"run_id": "run-1"`)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("ACCURACY_EXHAUSTED", "step size below minimum", "t=0.5"))
			assert.Contains(t, buf.String(), "Error [ACCURACY_EXHAUSTED]: step size below minimum")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details: t=0.5")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("compiling %s", "ramp.cue")
	assert.Empty(t, out.String())
	assert.Equal(t, "compiling ramp.cue\n", errOut.String())

	formatter.Verbose = false
	formatter.VerboseLog("dropped")
	assert.NotContains(t, errOut.String(), "dropped")
}

func TestOutputFormatter_GetErrWriterFallsBack(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Writer: buf}
	assert.Same(t, buf, formatter.GetErrWriter())
}
