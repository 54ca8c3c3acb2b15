package compiler

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"
)

// SubsystemKind is the actor kind that nests a model under its own embedded
// director.
const SubsystemKind = "subsystem"

// ModelSpec is a parsed model: one hierarchy level of actors and the
// connections between their ports.
type ModelSpec struct {
	Name string `json:"name"`

	// Director holds director settings by their model-file key. The
	// compiler maps them onto director.Config.
	Director map[string]any `json:"director,omitempty"`

	Actors      []ActorSpec      `json:"actors"`
	Connections []ConnectionSpec `json:"connections"`

	// Inputs and Outputs are boundary ports, present on subsystem bodies.
	Inputs  []BoundarySpec `json:"inputs,omitempty"`
	Outputs []BoundarySpec `json:"outputs,omitempty"`
}

// ActorSpec is one actor instance.
type ActorSpec struct {
	Name   string         `json:"name"`
	Kind   string         `json:"kind"`
	Params map[string]any `json:"params,omitempty"`

	// Ports overrides declared signal kinds by port name.
	Ports map[string]string `json:"ports,omitempty"`

	// Body is the nested model of a subsystem.
	Body *ModelSpec `json:"body,omitempty"`

	Pos token.Pos `json:"-"`
}

// ConnectionSpec links an output endpoint to an input endpoint.
//
// An endpoint is "actor.port", or a bare name for a boundary port of the
// enclosing model.
type ConnectionSpec struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Pos  token.Pos `json:"-"`
}

// BoundarySpec is a boundary port and its signal kind.
type BoundarySpec struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// normalizeName puts identifiers into NFC so visually identical names
// compare equal.
func normalizeName(s string) string {
	return norm.NFC.String(s)
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
