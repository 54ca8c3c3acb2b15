package store

import (
	"context"
	"fmt"

	"github.com/roach88/hysim/internal/trace"
)

// RunRecorder writes the trace of one run. It implements trace.Recorder.
//
// Writes use ON CONFLICT(run_id, seq) DO NOTHING for idempotency - recording
// the same seq twice is silently ignored. The run must have been started
// with BeginRun (foreign key constraint).
type RunRecorder struct {
	s     *Store
	ctx   context.Context
	runID string
}

var _ trace.Recorder = (*RunRecorder)(nil)

// Recorder returns a trace recorder for run id. ctx bounds every write.
func (s *Store) Recorder(ctx context.Context, runID string) *RunRecorder {
	return &RunRecorder{s: s, ctx: ctx, runID: runID}
}

// RunID returns the run the recorder writes to.
func (r *RunRecorder) RunID() string { return r.runID }

func (r *RunRecorder) RecordStep(rec trace.StepRecord) error {
	return r.s.WriteStep(r.ctx, r.runID, rec)
}

func (r *RunRecorder) RecordEvent(rec trace.EventRecord) error {
	return r.s.WriteEvent(r.ctx, r.runID, rec)
}

func (r *RunRecorder) RecordRollback(rec trace.RollbackRecord) error {
	return r.s.WriteRollback(r.ctx, r.runID, rec)
}

// WriteStep inserts a committed step.
func (s *Store) WriteStep(ctx context.Context, runID string, rec trace.StepRecord) error {
	states, err := marshalStates(rec.States)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, seq, begin_time, end_time, step_size, solver, rounds, retries, states)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		rec.Seq,
		rec.Begin,
		rec.End,
		rec.StepSize,
		rec.Solver,
		rec.Rounds,
		rec.Retries,
		states,
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}

// WriteEvent inserts a discrete-phase event.
func (s *Store) WriteEvent(ctx context.Context, runID string, rec trace.EventRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, time, kind, actor, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		rec.Seq,
		rec.Time,
		string(rec.Kind),
		rec.Actor,
		rec.Value,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteRollback inserts a checkpoint restore.
func (s *Store) WriteRollback(ctx context.Context, runID string, rec trace.RollbackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollbacks
		(run_id, seq, from_time, to_time, target_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		rec.Seq,
		rec.From,
		rec.To,
		rec.Target,
	)
	if err != nil {
		return fmt.Errorf("write rollback: %w", err)
	}
	return nil
}
