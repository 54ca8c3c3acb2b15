package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/engine"
	"github.com/roach88/hysim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult holds the outcome of re-running a stored run.
type ReplayResult struct {
	RunID         string       `json:"run_id"`
	Model         string       `json:"model"`
	StoredStatus  store.Status `json:"stored_status"`
	ReplayStatus  store.Status `json:"replay_status"`
	StoredRecords int          `json:"stored_records"`
	ReplayRecords int          `json:"replay_records"`
	Deterministic bool         `json:"deterministic"`
	FirstDiffLine int          `json:"first_diff_line,omitempty"`
	StoredLine    string       `json:"stored_line,omitempty"`
	ReplayLine    string       `json:"replay_line,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <model> [run-id]",
		Short: "Re-run a stored run and verify its trace is reproduced",
		Long: `Re-run the model of a stored run with the stop time it was recorded
with, and compare the fresh trace against the stored one record by record.
Without a run ID, the most recent run is replayed.

Runs that were stopped before their stop time cannot be reproduced and
are rejected.

Exit codes:
  0 - The trace was reproduced exactly
  1 - The traces differ
  2 - Command error (database or run not found, model mismatch, etc.)

Examples:
  hysim replay ./models/bounce.cue --db ./runs.db
  hysim replay ./models/bounce.cue --db ./runs.db 01928c1e-7f3a-7000-8000-000000000001`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 2 {
				runID = args[1]
			}
			return runReplay(opts, args[0], runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, path, runID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	fail := func(code, msg string, err error) error {
		_ = formatter.Error(code, msg, nil)
		if err == nil {
			return NewExitError(ExitCommandError, msg)
		}
		return WrapExitError(ExitCommandError, msg, err)
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return fail(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), err)
	}

	spec, loadErr := LoadModel(path)
	if loadErr != nil {
		return fail(loadErr.Code, loadErr.Message, nil)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return fail(ErrCodeStoreFailed, err.Error(), err)
	}
	defer st.Close()

	var run store.Run
	if runID == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, runID)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		msg := "no runs in database"
		if runID != "" {
			msg = fmt.Sprintf("run not found: %s", runID)
		}
		return fail(ErrCodeNotFound, msg, err)
	}
	if err != nil {
		return fail(ErrCodeStoreFailed, err.Error(), err)
	}

	if run.Model != spec.Name {
		return fail(ErrCodeGeneric, fmt.Sprintf("run %s is of model %q, not %q", run.ID, run.Model, spec.Name), nil)
	}
	switch run.Status {
	case store.StatusCompleted, store.StatusFailed:
	default:
		return fail(ErrCodeGeneric, fmt.Sprintf("run %s is %s and cannot be replayed", run.ID, run.Status), nil)
	}

	var cfg director.Config
	if err := json.Unmarshal([]byte(run.Config), &cfg); err != nil {
		return fail(ErrCodeStoreFailed, fmt.Sprintf("decoding stored config: %v", err), err)
	}

	stored, err := st.LoadTrace(ctx, run.ID)
	if err != nil {
		return fail(ErrCodeStoreFailed, err.Error(), err)
	}
	want, err := stored.Snapshot()
	if err != nil {
		return fail(ErrCodeStoreFailed, fmt.Sprintf("rendering stored trace: %v", err), err)
	}

	formatter.VerboseLog("replaying run %s of %s to t=%g", run.ID, run.Model, cfg.StopTime)
	eng := engine.New(nil, spec, store.FixedRunID(run.ID),
		engine.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())),
		engine.WithStopTime(cfg.StopTime))
	res, runErr := eng.Run(ctx)
	if res == nil {
		_ = formatter.Error(runErrorCode(runErr), runErr.Error(), nil)
		return WrapExitError(ExitFailure, "model failed to start", runErr)
	}
	got, err := res.Trace.Snapshot()
	if err != nil {
		return fail(ErrCodeGeneric, fmt.Sprintf("rendering replayed trace: %v", err), err)
	}

	result := compareSnapshots(want, got)
	result.RunID = run.ID
	result.Model = run.Model
	result.StoredStatus = run.Status
	result.ReplayStatus = res.Status
	if result.StoredStatus != result.ReplayStatus {
		result.Deterministic = false
	}

	return outputReplayResult(formatter, result)
}

// compareSnapshots compares two canonical traces line by line and notes the
// first line where they part.
func compareSnapshots(want, got []byte) ReplayResult {
	wantLines := splitLines(want)
	gotLines := splitLines(got)
	r := ReplayResult{
		StoredRecords: len(wantLines),
		ReplayRecords: len(gotLines),
		Deterministic: bytes.Equal(want, got),
	}
	if r.Deterministic {
		return r
	}
	for i := 0; i < max(len(wantLines), len(gotLines)); i++ {
		var w, g string
		if i < len(wantLines) {
			w = wantLines[i]
		}
		if i < len(gotLines) {
			g = gotLines[i]
		}
		if w != g {
			r.FirstDiffLine = i + 1
			r.StoredLine = w
			r.ReplayLine = g
			break
		}
	}
	return r
}

func splitLines(b []byte) []string {
	var lines []string
	for _, l := range bytes.Split(bytes.TrimSuffix(b, []byte("\n")), []byte("\n")) {
		if len(l) > 0 {
			lines = append(lines, string(l))
		}
	}
	return lines
}

func outputReplayResult(formatter *OutputFormatter, r ReplayResult) error {
	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: r, RunID: r.RunID}
		if !r.Deterministic {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeNotReplay, Message: "replayed trace differs from the stored trace"}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		if r.Deterministic {
			fmt.Fprintf(w, "✓ Run %s reproduced: %d record(s), %s\n", r.RunID, r.StoredRecords, r.ReplayStatus)
			return nil
		}
		fmt.Fprintf(w, "✗ Run %s not reproduced\n", r.RunID)
		fmt.Fprintf(w, "  stored: %d record(s), %s\n", r.StoredRecords, r.StoredStatus)
		fmt.Fprintf(w, "  replay: %d record(s), %s\n", r.ReplayRecords, r.ReplayStatus)
		if r.FirstDiffLine > 0 {
			fmt.Fprintf(w, "  first difference at record %d:\n", r.FirstDiffLine)
			fmt.Fprintf(w, "    stored: %s\n", r.StoredLine)
			fmt.Fprintf(w, "    replay: %s\n", r.ReplayLine)
		}
	}
	if !r.Deterministic {
		return NewExitError(ExitFailure, "replayed trace differs from the stored trace")
	}
	return nil
}
