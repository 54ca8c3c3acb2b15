package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/hysim/internal/store"
)

// DefaultRunID is used when a test or scenario names no run.
const DefaultRunID = "test-run-default"

// NewFixedRunIDGenerator returns a generator that always yields id, or
// DefaultRunID when id is empty. Fixed IDs keep golden traces byte-stable.
func NewFixedRunIDGenerator(id string) store.FixedRunID {
	if id == "" {
		id = DefaultRunID
	}
	return store.FixedRunID(id)
}

// SequentialRunIDs yields prefix-1, prefix-2, ... in call order. Safe for
// concurrent use.
type SequentialRunIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialRunIDs creates a generator numbering from 1.
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialRunIDs) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
