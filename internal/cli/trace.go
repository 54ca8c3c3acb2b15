package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/hysim/internal/store"
	"github.com/roach88/hysim/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Kind     string // optional - filter events to one kind
	Actor    string // optional - filter events to one actor
	From, To float64
}

// TraceEntry is one record in the merged timeline.
type TraceEntry struct {
	Seq    int64   `json:"seq"`
	Type   string  `json:"type"` // "step", "event" or "rollback"
	Time   float64 `json:"time"`
	Detail string  `json:"detail"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run       store.Run              `json:"run"`
	Timeline  []TraceEntry           `json:"timeline"`
	Steps     []trace.StepRecord     `json:"steps"`
	Events    []trace.EventRecord    `json:"events"`
	Rollbacks []trace.RollbackRecord `json:"rollbacks"`
	Stats     TraceStats             `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Steps     int `json:"steps"`
	Events    int `json:"events"`
	Rollbacks int `json:"rollbacks"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Show the stored trace of a run",
		Long: `Show the persisted trace of a run: its status and configuration, then
every committed step, discrete event and rollback in the order they
happened. Without a run ID, the most recent run is shown.

Examples:
  hysim trace --db ./runs.db
  hysim trace --db ./runs.db 01928c1e-7f3a-7000-8000-000000000001
  hysim trace --db ./runs.db --kind event --format json
  hysim trace --db ./runs.db --actor hi --from 1 --to 2`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runTrace(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "show only events of this kind (event|breakpoint|fire_at)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "show only events of this actor")
	cmd.Flags().Float64Var(&opts.From, "from", 0, "show only events at or after this time")
	cmd.Flags().Float64Var(&opts.To, "to", 0, "show only events at or before this time")

	return cmd
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
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

	// Opening would create an empty database.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	filter := store.EventQuery{Kind: trace.EventKind(opts.Kind), Actor: opts.Actor}
	if cmd.Flags().Changed("from") {
		filter.From = &opts.From
	}
	if cmd.Flags().Changed("to") {
		filter.To = &opts.To
	}

	result, err := loadTrace(ctx, st, runID, filter)
	if errors.Is(err, store.ErrRunNotFound) {
		msg := "no runs in database"
		if runID != "" {
			msg = fmt.Sprintf("run not found: %s", runID)
		}
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return WrapExitError(ExitCommandError, msg, err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result, RunID: result.Run.ID})
	}
	outputTraceText(formatter, result)
	return nil
}

// loadTrace reads one run, or the latest when runID is empty, and merges
// its records into a timeline. filter narrows the events; its RunID is
// filled in here.
func loadTrace(ctx context.Context, st *store.Store, runID string, filter store.EventQuery) (*TraceResult, error) {
	var run store.Run
	var err error
	if runID == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, runID)
	}
	if err != nil {
		return nil, err
	}

	steps, err := st.ReadSteps(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	filter.RunID = run.ID
	events, err := st.QueryEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	rollbacks, err := st.ReadRollbacks(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	result := &TraceResult{
		Run:       run,
		Steps:     steps,
		Events:    events,
		Rollbacks: rollbacks,
		Stats: TraceStats{
			Steps:     len(steps),
			Events:    len(events),
			Rollbacks: len(rollbacks),
		},
	}
	result.Timeline = buildTimeline(steps, events, rollbacks)
	return result, nil
}

// buildTimeline merges the three record kinds in seq order.
func buildTimeline(steps []trace.StepRecord, events []trace.EventRecord, rollbacks []trace.RollbackRecord) []TraceEntry {
	timeline := make([]TraceEntry, 0, len(steps)+len(events)+len(rollbacks))
	for _, s := range steps {
		detail := fmt.Sprintf("[%g, %g] h=%g %s rounds=%d", s.Begin, s.End, s.StepSize, s.Solver, s.Rounds)
		if s.Retries > 0 {
			detail += fmt.Sprintf(" retries=%d", s.Retries)
		}
		timeline = append(timeline, TraceEntry{Seq: s.Seq, Type: "step", Time: s.End, Detail: detail})
	}
	for _, e := range events {
		detail := string(e.Kind)
		if e.Actor != "" {
			detail += " " + e.Actor
		}
		timeline = append(timeline, TraceEntry{Seq: e.Seq, Type: "event", Time: e.Time, Detail: detail})
	}
	for _, r := range rollbacks {
		detail := fmt.Sprintf("%g -> %g, replay to %g", r.From, r.To, r.Target)
		timeline = append(timeline, TraceEntry{Seq: r.Seq, Type: "rollback", Time: r.Target, Detail: detail})
	}
	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].Seq < timeline[j].Seq })
	return timeline
}

func outputTraceText(formatter *OutputFormatter, result *TraceResult) {
	w := formatter.Writer
	run := result.Run

	fmt.Fprintf(w, "Run %s (%s): %s", run.ID, run.Model, run.Status)
	if run.FinalTime != nil {
		fmt.Fprintf(w, " at t=%g", *run.FinalTime)
	}
	fmt.Fprintln(w)
	if run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", run.Error)
	}
	formatter.VerboseLog("config: %s", run.Config)
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No trace records.")
		return
	}
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "%6d  %-8s t=%-12g %s\n", e.Seq, e.Type, e.Time, e.Detail)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d step(s), %d event(s), %d rollback(s)\n",
		result.Stats.Steps, result.Stats.Events, result.Stats.Rollbacks)
}
