package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/hysim/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // treat algebraic loop warnings as errors
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Model    string                     `json:"model,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.LoopWarning     `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <model>",
		Short: "Validate a model without running it",
		Long: `Validate a CUE model against the actor library and director settings.

Reports every problem found (unknown actor kinds, bad parameters, unknown
ports, connection direction errors, invalid director settings) and lists
feedback loops. A loop with no integrator or event generator in it is an
algebraic loop, which the scheduler will reject.

Examples:
  hysim validate ./models/bounce.cue
  hysim validate ./models/bounce.cue --strict
  hysim validate ./models/plant --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail on algebraic loop warnings")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	spec, loadErr := LoadModel(path)
	if loadErr != nil {
		// A model that compiles structurally wrong is a validation failure,
		// anything else is a command error.
		if loadErr.Code == ErrCodeNotFound || loadErr.Code == ErrCodeNoFiles || loadErr.Code == ErrCodeScanError {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidationResult(formatter, opts, ValidationResult{
			Errors: []compiler.ValidationError{{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    loadErr.Line(),
			}},
		})
	}

	formatter.VerboseLog("Validating model %s (%d actors, %d connections)", spec.Name, len(spec.Actors), len(spec.Connections))

	result := ValidationResult{
		Model:    spec.Name,
		Errors:   compiler.Validate(spec),
		Warnings: compiler.AnalyzeLoops(spec),
	}
	return outputValidationResult(formatter, opts, result)
}

// algebraicLoops counts the loops no dynamic actor breaks.
func algebraicLoops(warnings []compiler.LoopWarning) int {
	n := 0
	for _, w := range warnings {
		if w.Level == "warning" {
			n++
		}
	}
	return n
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationResult prints errors and loop warnings and picks the exit
// code.
func outputValidationResult(formatter *OutputFormatter, opts *ValidateOptions, result ValidationResult) error {
	loops := algebraicLoops(result.Warnings)
	result.Valid = len(result.Errors) == 0 && (!opts.Strict || loops == 0)

	var failure error
	switch {
	case len(result.Errors) > 0:
		failure = NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	case !result.Valid:
		failure = NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d algebraic loop(s)", loops))
	}

	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if len(result.Errors) > 0 {
			response.Status = "error"
			response.Error = &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message}
		} else if !result.Valid {
			response.Status = "error"
			for _, w := range result.Warnings {
				if w.Level == "warning" {
					response.Error = &CLIError{Code: ErrCodeAlgebraicLoop, Message: w.Message}
					break
				}
			}
		}
		if err := formatter.JSON(response); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, err := range result.Errors {
			if err.Line > 0 {
				fmt.Fprintf(w, "line %d\n", err.Line)
			}
			fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
		}
	}

	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "%s: %s\n", warn.Level, warn.Message)
	}

	if failure == nil {
		fmt.Fprintf(w, "✓ Model %s valid\n", result.Model)
	} else if len(result.Errors) == 0 {
		fmt.Fprintln(w, "✗ Validation failed")
	}
	return failure
}
