package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/hysim/internal/compiler"
	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/store"
	"github.com/roach88/hysim/internal/trace"
)

// Engine runs one model once.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine, once
//   - Stop(): safe from any goroutine
type Engine struct {
	store  *store.Store
	spec   *compiler.ModelSpec
	runIDs store.RunIDGenerator
	logger *slog.Logger

	stopTime  *float64
	pacer     director.Pacer
	recorders []trace.Recorder
	probe     bool

	mu       sync.Mutex
	director *director.Director
	stopped  bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger handed to the director.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithStopTime overrides the model's stop time.
func WithStopTime(t float64) EngineOption {
	return func(e *Engine) {
		e.stopTime = &t
	}
}

// WithPacer sets the wall clock used for real-time synchronisation.
func WithPacer(p director.Pacer) EngineOption {
	return func(e *Engine) {
		e.pacer = p
	}
}

// WithRecorder adds a recorder that receives every trace record.
func WithRecorder(r trace.Recorder) EngineOption {
	return func(e *Engine) {
		e.recorders = append(e.recorders, r)
	}
}

// WithoutStateProbe stops integrator states from being recorded with each
// committed step.
func WithoutStateProbe() EngineOption {
	return func(e *Engine) {
		e.probe = false
	}
}

// New creates an Engine for spec. s may be nil for a run that is not
// persisted.
func New(s *store.Store, spec *compiler.ModelSpec, runIDs store.RunIDGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  s,
		spec:   spec,
		runIDs: runIDs,
		logger: slog.Default(),
		probe:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of a run.
type Result struct {
	RunID     string
	Status    store.Status
	FinalTime float64
	Stats     director.Stats
	Trace     *trace.Memory
	Model     *compiler.Model
	Director  *director.Director
}

// Run builds the model, iterates it to its stop time and records the
// outcome. A model that fails validation or scheduling is not recorded.
//
// The returned Result is non-nil whenever the director was built, even if
// the run failed, so callers can report how far it got.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	runID := e.runIDs.Generate()
	mem := trace.NewMemory()
	seq := trace.NewSequence()

	recorders := trace.Multi{mem}
	recorders = append(recorders, e.recorders...)
	if e.store != nil {
		// Records of a cancelled run are still written.
		recorders = append(recorders, e.store.Recorder(context.WithoutCancel(ctx), runID))
	}
	shared := []director.Option{director.WithRecorder(recorders), director.WithSequence(seq)}

	m, err := compiler.Build(e.spec, shared...)
	if err != nil {
		return nil, err
	}
	if e.stopTime != nil {
		m.Config.StopTime = *e.stopTime
	}

	opts := append([]director.Option{director.WithLogger(e.logger.With("run_id", runID))}, shared...)
	if e.pacer != nil {
		opts = append(opts, director.WithPacer(e.pacer))
	}
	if e.probe {
		opts = append(opts, director.WithStateProbe(stateProbe(m.Composite)))
	}
	d, err := director.New(m.Composite, m.Config, opts...)
	if err != nil {
		return nil, err
	}
	if err := d.Initialize(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.director = d
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		d.Stop()
	}

	if e.store != nil {
		if err := e.store.BeginRun(ctx, runID, m.Name, m.Config); err != nil {
			return nil, fmt.Errorf("begin run: %w", err)
		}
	}

	e.logger.Info("run starting", "run_id", runID, "model", m.Name)
	runErr := d.Run(ctx)

	res := &Result{
		RunID:     runID,
		Status:    classify(d, runErr),
		FinalTime: d.Now().Float(),
		Stats:     d.Stats(),
		Trace:     mem,
		Model:     m,
		Director:  d,
	}

	if e.store != nil {
		out := store.Outcome{Status: res.Status, FinalTime: res.FinalTime, Stats: res.Stats, Err: runErr}
		if err := e.store.FinishRun(context.WithoutCancel(ctx), runID, out); err != nil {
			return res, errors.Join(runErr, fmt.Errorf("finish run: %w", err))
		}
	}

	if runErr != nil {
		e.logger.Error("run failed",
			"run_id", runID,
			"code", simerr.CodeOf(runErr),
			"time", res.FinalTime,
			"error", runErr)
		return res, runErr
	}
	e.logger.Info("run complete", "run_id", runID, "status", res.Status, "time", res.FinalTime)
	return res, nil
}

// Stop asks a running model to exit at the next phase boundary. Calling it
// before Run makes Run stop right after initialization.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	if e.director != nil {
		e.director.Stop()
	}
}

func classify(d *director.Director, err error) store.Status {
	switch {
	case errors.Is(err, context.Canceled):
		return store.StatusStopped
	case err != nil:
		return store.StatusFailed
	case d.Stopped():
		return store.StatusStopped
	default:
		return store.StatusCompleted
	}
}
