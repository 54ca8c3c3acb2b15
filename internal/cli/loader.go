package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/hysim/internal/compiler"
)

// LoadError represents an error that occurred while loading a model.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the CUE source line, or 0 if unknown.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadModel compiles the model at path, a .cue file or a directory holding
// one CUE package. It does not validate the model against the actor
// library; see compiler.Validate.
func LoadModel(path string) (*compiler.ModelSpec, *LoadError) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing model: %v", err)}
	}

	if info.IsDir() {
		cueFiles, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(cueFiles) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	}

	spec, err := compiler.LoadFile(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return spec, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands. Model validation
// codes (E2xx) come from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load or syntax error
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // Model structure could not be compiled
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStoreFailed = "E008" // Database open or query error

	ErrCodeRunFailed     = "E_RUN_FAILED"
	ErrCodeTestFailed    = "E_TEST_FAILED"
	ErrCodeNotReplay     = "E_NONDETERMINISTIC"
	ErrCodeAlgebraicLoop = "E_ALGEBRAIC_LOOP"
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeLoadFailed
	case field == "model":
		return compiler.ErrModelNameEmpty
	case strings.HasPrefix(field, "actors.") && strings.HasSuffix(field, ".kind"):
		return compiler.ErrUnknownActorKind
	case strings.Contains(field, ".params.") || strings.HasSuffix(field, ".params"):
		return compiler.ErrInvalidActorParams
	case strings.HasPrefix(field, "director"):
		return compiler.ErrInvalidDirector
	case strings.HasPrefix(field, "connections"):
		return compiler.ErrMalformedEndpoint
	default:
		return ErrCodeBuildFailed
	}
}
