// Package simerr defines the error taxonomy shared by the scheduler, the
// director and the actor library.
//
// Every fatal condition is reported as an *Error carrying a Code and the
// identity of the offending actor or port. Callers classify errors with the
// Is* helpers, which use errors.As and therefore see through wrapping.
package simerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes simulation errors.
type Code string

const (
	// CodeSignalConflict indicates two directly connected ports resolved to
	// different signal kinds.
	CodeSignalConflict Code = "SIGNAL_CONFLICT"

	// CodeDependencyCycle indicates an arithmetic, dynamic or discrete
	// dependency graph contains a cycle.
	CodeDependencyCycle Code = "DEPENDENCY_CYCLE"

	// CodeAccuracyExhausted indicates the step size was driven below the
	// configured floor without satisfying every step-size control actor.
	CodeAccuracyExhausted Code = "ACCURACY_EXHAUSTED"

	// CodeMisconfigured indicates an execution that can never succeed as
	// configured (no active solver, missing outer authority, bad fireAt).
	CodeMisconfigured Code = "MISCONFIGURED"

	// CodeEmptyRead indicates a discrete channel was read with no pending token.
	CodeEmptyRead Code = "EMPTY_READ"

	// CodeDiscreteLivelock indicates the discrete phase kept producing events
	// at one instant past the configured microstep limit.
	CodeDiscreteLivelock Code = "DISCRETE_LIVELOCK"

	// CodeInternal indicates a broken internal invariant, e.g. a breakpoint
	// found while catching up after a rollback.
	CodeInternal Code = "INTERNAL"
)

// Error is a simulation error with structured fields for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Actor is the full name of the offending actor, if any.
	Actor string

	// Port is the full name of the offending port, if any.
	Port string

	// Time is the model time at which the error was raised, if known.
	Time *float64

	// Path lists the actors on a dependency cycle, in cycle order.
	Path []string

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)

	var attrs []string
	if e.Actor != "" {
		attrs = append(attrs, "actor="+e.Actor)
	}
	if e.Port != "" {
		attrs = append(attrs, "port="+e.Port)
	}
	if e.Time != nil {
		attrs = append(attrs, fmt.Sprintf("time=%g", *e.Time))
	}
	if len(attrs) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(attrs, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// At returns a copy of e stamped with the given model time.
func (e *Error) At(t float64) *Error {
	c := *e
	c.Time = &t
	return &c
}

// NewSignalConflict reports a port whose resolved kind disagrees with a peer.
func NewSignalConflict(port, want, got string) *Error {
	return &Error{
		Code:    CodeSignalConflict,
		Message: fmt.Sprintf("connected ports disagree on signal kind: %s vs %s", want, got),
		Port:    port,
	}
}

// NewDependencyCycle reports a cycle in one of the scheduler's graphs.
func NewDependencyCycle(graph string, path []string) *Error {
	return &Error{
		Code:    CodeDependencyCycle,
		Message: fmt.Sprintf("%s loop found: %s", graph, strings.Join(path, " -> ")),
		Actor:   first(path),
		Path:    path,
	}
}

// NewAccuracyExhausted reports a step size refined below the allowed floor.
func NewAccuracyExhausted(actor string, step, floor float64) *Error {
	return &Error{
		Code:    CodeAccuracyExhausted,
		Message: fmt.Sprintf("refined step size %g is below the floor %g", step, floor),
		Actor:   actor,
	}
}

// NewMisconfigured reports an execution that cannot proceed as configured.
func NewMisconfigured(actor, message string) *Error {
	return &Error{
		Code:    CodeMisconfigured,
		Message: message,
		Actor:   actor,
	}
}

// NewEmptyRead reports a destructive read on an empty discrete channel.
func NewEmptyRead(port string) *Error {
	return &Error{
		Code:    CodeEmptyRead,
		Message: "no token available on discrete channel",
		Port:    port,
	}
}

// NewDiscreteLivelock reports an instant that kept producing events.
func NewDiscreteLivelock(actor string, microsteps int) *Error {
	return &Error{
		Code:    CodeDiscreteLivelock,
		Message: fmt.Sprintf("discrete phase did not settle after %d microsteps", microsteps),
		Actor:   actor,
	}
}

// NewInternal reports a broken internal invariant.
func NewInternal(actor, message string) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Actor:   actor,
	}
}

// CodeOf returns the Code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsSchedulingError reports a signal conflict or a dependency cycle.
func IsSchedulingError(err error) bool {
	c := CodeOf(err)
	return c == CodeSignalConflict || c == CodeDependencyCycle
}

// IsAccuracyExhausted reports whether err is an accuracy-exhausted error.
func IsAccuracyExhausted(err error) bool {
	return CodeOf(err) == CodeAccuracyExhausted
}

// IsMisconfigured reports whether err is a misconfiguration error.
func IsMisconfigured(err error) bool {
	return CodeOf(err) == CodeMisconfigured
}

// IsEmptyRead reports whether err is an empty-read error.
func IsEmptyRead(err error) bool {
	return CodeOf(err) == CodeEmptyRead
}

// IsDiscreteLivelock reports whether err is a discrete livelock error.
func IsDiscreteLivelock(err error) bool {
	return CodeOf(err) == CodeDiscreteLivelock
}

// IsInternal reports whether err is an internal invariant violation.
func IsInternal(err error) bool {
	return CodeOf(err) == CodeInternal
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
