package cli

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/engine"
	"github.com/roach88/hysim/internal/library"
	"github.com/roach88/hysim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	StopTime float64

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs store.RunIDGenerator
}

// RunSummary is what the run command reports.
type RunSummary struct {
	RunID     string                    `json:"run_id"`
	Model     string                    `json:"model"`
	Status    store.Status              `json:"status"`
	FinalTime float64                   `json:"final_time"`
	Stats     director.Stats            `json:"stats"`
	Recorders map[string]library.Sample `json:"recorders,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <model>",
		Short: "Simulate a model to its stop time",
		Long: `Compile a CUE model and simulate it to its stop time.

With --db, the run and its trace (committed steps, discrete events,
rollbacks) are persisted to SQLite, creating the database if it doesn't
exist; inspect them afterwards with hysim trace. Ctrl-C stops the run at
the next phase boundary and records it as stopped.

The summary reports the final time, iteration statistics and the last
sample of every top-level recorder.

Exit codes:
  0 - Run completed or was stopped
  1 - Run failed, or the model is invalid
  2 - Command error (model not found, database error, etc.)

Example:
  hysim run ./models/bounce.cue
  hysim run --db ./runs.db --stop 10 ./models/bounce.cue --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (optional)")
	cmd.Flags().Float64Var(&opts.StopTime, "stop", 0, "override the model's stop time")

	return cmd
}

func runModel(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	logger.Info("compiling model", "path", path)
	spec, loadErr := LoadModel(path)
	if loadErr != nil {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Error())
	}

	var st *store.Store
	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		var err error
		st, err = store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = store.UUIDv7Generator{}
	}
	engineOpts := []engine.EngineOption{engine.WithLogger(logger)}
	if cmd.Flags().Changed("stop") {
		engineOpts = append(engineOpts, engine.WithStopTime(opts.StopTime))
	}
	eng := engine.New(st, spec, runIDs, engineOpts...)

	// Use command's context if available (for testing), otherwise create one
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			eng.Stop()
		case <-ctx.Done():
		}
	}()

	res, runErr := eng.Run(ctx)
	if res == nil {
		// The model never started: validation or scheduling failed.
		_ = formatter.Error(runErrorCode(runErr), runErr.Error(), nil)
		return WrapExitError(ExitFailure, "model failed to start", runErr)
	}

	summary := summarize(res, runErr)
	if err := outputRunSummary(formatter, summary, runErr); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

func summarize(res *engine.Result, runErr error) RunSummary {
	s := RunSummary{
		RunID:     res.RunID,
		Model:     res.Model.Name,
		Status:    res.Status,
		FinalTime: res.FinalTime,
		Stats:     res.Stats,
	}
	for _, r := range res.Model.Recorders() {
		if last, ok := r.Last(); ok {
			if s.Recorders == nil {
				s.Recorders = make(map[string]library.Sample)
			}
			s.Recorders[r.Name()] = last
		}
	}
	if runErr != nil {
		s.Error = runErr.Error()
	}
	return s
}

func outputRunSummary(formatter *OutputFormatter, s RunSummary, runErr error) error {
	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: s, RunID: s.RunID}
		if runErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: runErrorCode(runErr), Message: runErr.Error()}
		}
		return formatter.JSON(resp)
	}

	w := formatter.Writer
	mark := "✓"
	if runErr != nil {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s %s at t=%g (run %s)\n", mark, s.Model, s.Status, s.FinalTime, s.RunID)
	fmt.Fprintf(w, "  iterations: %d, steps: %d, failed steps: %d, rollbacks: %d\n",
		s.Stats.Iterations, s.Stats.Steps, s.Stats.FailedSteps, s.Stats.Rollbacks)
	for _, name := range slices.Sorted(maps.Keys(s.Recorders)) {
		sample := s.Recorders[name]
		fmt.Fprintf(w, "  %s: %g at t=%g\n", name, sample.Value, sample.Time)
	}
	if runErr != nil {
		fmt.Fprintf(w, "  Error [%s]: %v\n", runErrorCode(runErr), runErr)
	}
	return nil
}
