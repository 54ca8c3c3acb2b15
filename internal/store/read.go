package store

import (
	"context"
	"fmt"

	"github.com/roach88/hysim/internal/trace"
)

// ReadSteps returns the committed steps of a run in seq order.
//
// Returns an empty slice (not nil) if the run has no steps.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]trace.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, begin_time, end_time, step_size, solver, rounds, retries, states
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []trace.StepRecord{}
	for rows.Next() {
		var (
			r      trace.StepRecord
			states string
		)
		if err := rows.Scan(&r.Seq, &r.Begin, &r.End, &r.StepSize, &r.Solver, &r.Rounds, &r.Retries, &states); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if r.States, err = unmarshalStates(states); err != nil {
			return nil, fmt.Errorf("step seq=%d: %w", r.Seq, err)
		}
		steps = append(steps, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// ReadEvents returns the events of a run in seq order. A non-empty kind
// filters by kind.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, runID string, kind trace.EventKind) ([]trace.EventRecord, error) {
	return s.QueryEvents(ctx, EventQuery{RunID: runID, Kind: kind})
}

// ReadRollbacks returns the rollbacks of a run in seq order.
//
// Returns an empty slice (not nil) if the run never rolled back.
func (s *Store) ReadRollbacks(ctx context.Context, runID string) ([]trace.RollbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, from_time, to_time, target_time
		FROM rollbacks
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rollbacks: %w", err)
	}
	defer rows.Close()

	rollbacks := []trace.RollbackRecord{}
	for rows.Next() {
		var r trace.RollbackRecord
		if err := rows.Scan(&r.Seq, &r.From, &r.To, &r.Target); err != nil {
			return nil, fmt.Errorf("scan rollback: %w", err)
		}
		rollbacks = append(rollbacks, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollbacks: %w", err)
	}
	return rollbacks, nil
}

// LoadTrace reads a stored run back into an in-memory trace, so it can be
// rendered or compared exactly like a live one.
func (s *Store) LoadTrace(ctx context.Context, runID string) (*trace.Memory, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return nil, err
	}
	steps, err := s.ReadSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	events, err := s.ReadEvents(ctx, runID, "")
	if err != nil {
		return nil, err
	}
	rollbacks, err := s.ReadRollbacks(ctx, runID)
	if err != nil {
		return nil, err
	}

	mem := trace.NewMemory()
	for _, r := range steps {
		if err := mem.RecordStep(r); err != nil {
			return nil, err
		}
	}
	for _, r := range events {
		if err := mem.RecordEvent(r); err != nil {
			return nil, err
		}
	}
	for _, r := range rollbacks {
		if err := mem.RecordRollback(r); err != nil {
			return nil, err
		}
	}
	return mem, nil
}
