package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hysim/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Actors      int `json:"actors"`
	Connections int `json:"connections"`
	Subsystems  int `json:"subsystems"`
	Recorders   int `json:"recorders"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model>",
		Short: "Compile a CUE model to its JSON description",
		Long: `Compile a CUE model file (or a directory holding one CUE package) and
print the parsed model: actors with their parameters and port overrides,
connections, subsystem bodies and director settings.

The model is parsed but not checked against the actor library; use
validate for that.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	spec, loadErr := LoadModel(path)
	if loadErr != nil {
		return outputCompileError(formatter, loadErr)
	}

	stats := calculateStats(spec)
	formatter.VerboseLog("Compiled model %s: %d actor(s), %d subsystem(s)", spec.Name, stats.Actors, stats.Subsystems)

	if opts.Output != "" {
		if err := writeModelToFile(spec, opts.Output); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, spec, stats, opts.Output)
}

// calculateStats counts actors and connections across every hierarchy
// level.
func calculateStats(spec *compiler.ModelSpec) CompilationStats {
	var stats CompilationStats
	stats.Connections += len(spec.Connections)
	for _, a := range spec.Actors {
		stats.Actors++
		switch a.Kind {
		case compiler.SubsystemKind:
			stats.Subsystems++
			if a.Body != nil {
				inner := calculateStats(a.Body)
				stats.Actors += inner.Actors
				stats.Connections += inner.Connections
				stats.Subsystems += inner.Subsystems
				stats.Recorders += inner.Recorders
			}
		case "recorder":
			stats.Recorders++
		}
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, spec *compiler.ModelSpec, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(spec)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled model %s: %d actor(s), %d connection(s)\n\n",
		spec.Name, stats.Actors, stats.Connections)

	printActors(formatter, spec, "  ")
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote model to %s\n", outputFile)
	}

	return nil
}

func printActors(formatter *OutputFormatter, spec *compiler.ModelSpec, indent string) {
	for _, a := range spec.Actors {
		fmt.Fprintf(formatter.Writer, "%s%s: %s\n", indent, a.Name, a.Kind)
		if a.Body != nil {
			printActors(formatter, a.Body, indent+"  ")
		}
	}
}

// outputCompileError outputs a load or compile error.
func outputCompileError(formatter *OutputFormatter, loadErr *LoadError) error {
	if formatter.Format != "json" && loadErr.Pos.IsValid() {
		fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
			loadErr.Pos.Filename(),
			loadErr.Pos.Line(),
			loadErr.Pos.Column())
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", loadErr.Code, loadErr.Message)
	} else {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
	}
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
}

// writeModelToFile writes the parsed model as indented JSON.
func writeModelToFile(spec *compiler.ModelSpec, filename string) error {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}

	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
