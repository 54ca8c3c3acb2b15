package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/hysim/internal/compiler"
	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/scheduler"
	"github.com/roach88/hysim/internal/simerr"
)

// ScheduleResult is the static schedule of a model's top level.
type ScheduleResult struct {
	Model string            `json:"model"`
	Lists []scheduler.List  `json:"lists"`
	Kinds map[string]string `json:"kinds"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <model>",
		Short: "Print the static schedule of a model",
		Long: `Resolve signal kinds and print the ten ordered actor lists the director
fires from: continuous, discrete, dynamic, event-generators, output,
output-step-control, state-transition, stateful, state-step-control and
waveform-generators.

With --verbose, the resolved signal kind of every port is listed too.

Exit codes:
  0 - Schedule built
  1 - Model invalid, signal kind conflict or dependency cycle
  2 - Command error (model not found, CUE syntax error, etc.)

Examples:
  hysim schedule ./models/bounce.cue
  hysim schedule ./models/bounce.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSchedule(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	spec, loadErr := LoadModel(path)
	if loadErr != nil {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Error())
	}

	sched, err := buildSchedule(spec)
	if err != nil {
		var details any
		var verrs compiler.ValidationErrors
		if errors.As(err, &verrs) {
			details = verrs
		}
		_ = formatter.Error(runErrorCode(err), err.Error(), details)
		return WrapExitError(ExitFailure, "schedule failed", err)
	}

	kinds := make(map[string]string, len(sched.Kinds))
	for port, k := range sched.Kinds {
		kinds[port] = k.String()
	}

	if formatter.Format == "json" {
		return formatter.Success(ScheduleResult{Model: spec.Name, Lists: sched.Lists(), Kinds: kinds})
	}

	fmt.Fprint(formatter.Writer, sched.String())
	if opts.Verbose {
		ports := make([]string, 0, len(kinds))
		for p := range kinds {
			ports = append(ports, p)
		}
		sort.Strings(ports)
		fmt.Fprintln(formatter.Writer, "kinds {")
		for _, p := range ports {
			fmt.Fprintf(formatter.Writer, "    %s: %s\n", p, kinds[p])
		}
		fmt.Fprintln(formatter.Writer, "}")
	}
	return nil
}

// buildSchedule builds the model and initializes a director over it, which
// resolves signal kinds and orders the lists.
func buildSchedule(spec *compiler.ModelSpec) (*scheduler.Schedule, error) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := compiler.Build(spec, director.WithLogger(quiet))
	if err != nil {
		return nil, err
	}
	d, err := director.New(m.Composite, m.Config, director.WithLogger(quiet))
	if err != nil {
		return nil, err
	}
	if err := d.Initialize(); err != nil {
		return nil, err
	}
	return d.Schedule()
}

// runErrorCode is the error code reported for a failed build or run.
func runErrorCode(err error) string {
	if code := simerr.CodeOf(err); code != "" {
		return string(code)
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Code
	}
	return ErrCodeRunFailed
}
