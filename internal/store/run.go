package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RunIDGenerator produces run identifiers.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so listing runs
// by ID lists them in creation order.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedRunID always generates itself. A replay reuses the stored run's ID
// this way.
type FixedRunID string

// Generate returns id unchanged.
func (id FixedRunID) Generate() string { return string(id) }

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Run is one stored simulation run.
type Run struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	Config    string   `json:"config"`
	Status    Status   `json:"status"`
	FinalTime *float64 `json:"final_time,omitempty"`
	Error     string   `json:"error,omitempty"`
	Stats     string   `json:"stats"`
}

// Outcome is how a run ended.
type Outcome struct {
	Status    Status
	FinalTime float64
	Stats     any
	Err       error
}

// BeginRun records a new run. config is stored as JSON.
// Uses ON CONFLICT(id) DO NOTHING so beginning the same run twice is a no-op.
func (s *Store) BeginRun(ctx context.Context, id, model string, config any) error {
	if id == "" {
		return fmt.Errorf("begin run: empty run id")
	}
	cfgJSON, err := marshalJSON(config)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, model, config, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, model, cfgJSON, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of run id.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	statsJSON, err := marshalJSON(out.Stats)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	msg := ""
	if out.Err != nil {
		msg = out.Err.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, final_time = ?, error = ?, stats = ?
		WHERE id = ?
	`, string(out.Status), out.FinalTime, msg, statsJSON, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// ReadRun returns one run.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, config, status, final_time, error, stats
		FROM runs
		WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return r, nil
}

// ReadRuns returns every run, oldest first.
//
// Returns an empty slice (not nil) if the store has no runs.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, config, status, final_time, error, stats
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently created run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, config, status, final_time, error, stats
		FROM runs
		ORDER BY id COLLATE BINARY DESC
		LIMIT 1
	`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r         Run
		status    string
		finalTime sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &r.Model, &r.Config, &status, &finalTime, &r.Error, &r.Stats); err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	if finalTime.Valid {
		v := finalTime.Float64
		r.FinalTime = &v
	}
	return r, nil
}
