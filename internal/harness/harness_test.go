package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/store"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Ramp(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "ramp"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "test-run-ramp", result.RunID)
	assert.Equal(t, store.StatusCompleted, result.Status)
	assert.Equal(t, 1.0, result.FinalTime)
	assert.Positive(t, result.Stats.Steps)
	require.NotNil(t, result.Trace)
	assert.Len(t, result.Trace.Steps(), result.Stats.Steps)
}

func TestRun_ExpectedRuntimeError(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "coarse"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, store.StatusFailed, result.Status)
	assert.Contains(t, result.Err, "det")
}

func TestRun_ExpectedValidationError(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "unknown_kind"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Nil(t, result.Trace)
	assert.Empty(t, result.Status)
	assert.Contains(t, result.Err, "E203")
}

func TestRun_WrongExpectedError(t *testing.T) {
	s := loadTestScenario(t, "coarse")
	s.ExpectError = "DISCRETE_LIVELOCK"

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error DISCRETE_LIVELOCK")
}

func TestRun_ExpectedErrorButCompleted(t *testing.T) {
	s := loadTestScenario(t, "ramp")
	s.ExpectError = "ACCURACY_EXHAUSTED"

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "expected error ACCURACY_EXHAUSTED, run completed")
}

func TestRun_UnexpectedError(t *testing.T) {
	s := loadTestScenario(t, "coarse")
	s.ExpectError = ""
	one := 1.0
	s.Assertions = []Assertion{{Type: AssertFinalTime, Value: &one}}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "run failed")
}

func TestRun_AssertionsSkippedWhenModelDoesNotStart(t *testing.T) {
	s := loadTestScenario(t, "unknown_kind")
	s.ExpectError = ""
	one := 1.0
	s.Assertions = []Assertion{{Type: AssertFinalTime, Value: &one}}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "assertions skipped: model did not start")
}

func TestRun_MissingModel(t *testing.T) {
	s := loadTestScenario(t, "ramp")
	s.Model = filepath.Join(t.TempDir(), "gone.cue")

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load model")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, loadTestScenario(t, "ramp"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_FreshStorePerScenario(t *testing.T) {
	s := loadTestScenario(t, "oscillator")

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	// Same run ID twice would collide in a shared store.
	assert.True(t, first.Pass, "errors: %v", first.Errors)
	assert.True(t, second.Pass, "errors: %v", second.Errors)
	assert.Equal(t, first.Stats, second.Stats)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult("run")
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
