package scheduler

import (
	"log/slog"

	"github.com/roach88/hysim/internal/actor"
)

// Scheduler caches the schedule of one composite and rebuilds it lazily
// after a structural change.
//
// The director asks for the schedule only between full iterations, so a
// rebuild never happens mid-phase.
type Scheduler struct {
	composite *actor.Composite
	cached    *Schedule
	logger    *slog.Logger
}

// New creates a scheduler for c.
func New(c *actor.Composite, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{composite: c, logger: logger}
}

// Schedule returns the cached schedule, rebuilding it if the composite has
// changed since it was built or it was invalidated.
func (s *Scheduler) Schedule() (*Schedule, error) {
	if s.Valid() {
		return s.cached, nil
	}
	sched, err := Build(s.composite)
	if err != nil {
		s.cached = nil
		return nil, err
	}
	s.logger.Debug("schedule rebuilt",
		"composite", s.composite.Name(),
		"version", sched.Version,
		"continuous", len(sched.Continuous),
		"discrete", len(sched.Discrete),
		"dynamic", len(sched.Dynamic))
	s.cached = sched
	return sched, nil
}

// Valid reports whether the cached schedule matches the composite.
func (s *Scheduler) Valid() bool {
	return s.cached != nil && s.cached.Version == s.composite.Version()
}

// Invalidate drops the cached schedule.
func (s *Scheduler) Invalidate() {
	s.cached = nil
}

// Composite returns the scheduled composite.
func (s *Scheduler) Composite() *actor.Composite {
	return s.composite
}
