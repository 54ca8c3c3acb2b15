// Package trace defines the execution records a director emits and the
// Recorder sinks that receive them.
//
// Records are stamped with a logical sequence number from a Sequence so a
// trace has one total order independent of model time (rollbacks make model
// time go backwards; seq never does).
package trace

import (
	"sync"
	"sync/atomic"
)

// Sequence is a monotonic logical counter for record ordering.
//
// Thread-safety: safe for concurrent use, though a director only calls it
// from its own goroutine.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence that continues after start.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued number without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// StepRecord is one committed continuous step.
type StepRecord struct {
	Seq      int64              `json:"seq"`
	Begin    float64            `json:"begin"`
	End      float64            `json:"end"`
	StepSize float64            `json:"step_size"`
	Solver   string             `json:"solver"`
	Rounds   int                `json:"rounds"`
	Retries  int                `json:"retries"`
	States   map[string]float64 `json:"states,omitempty"`
}

// EventKind distinguishes discrete-phase records.
type EventKind string

const (
	EventEmitted    EventKind = "event"
	EventBreakpoint EventKind = "breakpoint"
	EventFireAt     EventKind = "fire_at"
)

// EventRecord is one discrete occurrence at an instant.
type EventRecord struct {
	Seq   int64     `json:"seq"`
	Time  float64   `json:"time"`
	Kind  EventKind `json:"kind"`
	Actor string    `json:"actor,omitempty"`
	Value float64   `json:"value,omitempty"`
}

// RollbackRecord is one checkpoint restore.
type RollbackRecord struct {
	Seq    int64   `json:"seq"`
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Target float64 `json:"target"`
}

// Recorder receives trace records. Implementations must not retain the
// States map beyond the call.
type Recorder interface {
	RecordStep(r StepRecord) error
	RecordEvent(r EventRecord) error
	RecordRollback(r RollbackRecord) error
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordStep(StepRecord) error         { return nil }
func (Nop) RecordEvent(EventRecord) error       { return nil }
func (Nop) RecordRollback(RollbackRecord) error { return nil }

// Memory keeps every record in memory. Used by tests and the harness.
type Memory struct {
	mu        sync.Mutex
	steps     []StepRecord
	events    []EventRecord
	rollbacks []RollbackRecord
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) RecordStep(r StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.States != nil {
		states := make(map[string]float64, len(r.States))
		for k, v := range r.States {
			states[k] = v
		}
		r.States = states
	}
	m.steps = append(m.steps, r)
	return nil
}

func (m *Memory) RecordEvent(r EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, r)
	return nil
}

func (m *Memory) RecordRollback(r RollbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks = append(m.rollbacks, r)
	return nil
}

// Steps returns a copy of the recorded steps.
func (m *Memory) Steps() []StepRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StepRecord(nil), m.steps...)
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EventRecord(nil), m.events...)
}

// Rollbacks returns a copy of the recorded rollbacks.
func (m *Memory) Rollbacks() []RollbackRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RollbackRecord(nil), m.rollbacks...)
}

// Multi fans records out to several recorders, stopping at the first error.
type Multi []Recorder

func (m Multi) RecordStep(r StepRecord) error {
	for _, rec := range m {
		if err := rec.RecordStep(r); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordEvent(r EventRecord) error {
	for _, rec := range m {
		if err := rec.RecordEvent(r); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordRollback(r RollbackRecord) error {
	for _, rec := range m {
		if err := rec.RecordRollback(r); err != nil {
			return err
		}
	}
	return nil
}
