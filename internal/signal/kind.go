// Package signal classifies ports as carrying continuous or discrete signals.
//
// Kinds are seeded from explicit per-port declarations (or the composite
// boundary's receiver kind) and propagated across connections. Two directly
// connected ports must agree; a disagreement is a scheduling error.
package signal

import (
	"fmt"
	"strings"
)

// Kind is the signal kind of a port.
type Kind int

const (
	// Unknown means no declaration reached the port.
	Unknown Kind = iota

	// Continuous signals are defined at every instant. Reads are repeatable.
	Continuous

	// Discrete signals are present only at specific instants. Reads consume.
	Discrete
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Discrete:
		return "discrete"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name as written in model files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return Unknown, nil
	case "continuous", "cont":
		return Continuous, nil
	case "discrete", "disc", "event":
		return Discrete, nil
	default:
		return Unknown, fmt.Errorf("unknown signal kind %q", s)
	}
}
