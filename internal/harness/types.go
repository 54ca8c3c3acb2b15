package harness

import (
	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/store"
	"github.com/roach88/hysim/internal/trace"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if the run behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	RunID     string         `json:"run_id"`
	Status    store.Status   `json:"status,omitempty"`
	FinalTime float64        `json:"final_time"`
	Stats     director.Stats `json:"stats"`

	// Err is the run error, if any, expected or not.
	Err string `json:"error,omitempty"`

	// Errors contains assertion and expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Trace is every record the run produced. Nil if the model never
	// started.
	Trace *trace.Memory `json:"-"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
