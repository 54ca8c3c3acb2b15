package director

import (
	"context"
	"time"

	"github.com/roach88/hysim/internal/simtime"
)

// realTimeSlack is how far model time may run ahead of wall time before the
// director sleeps.
const realTimeSlack = 20 * time.Millisecond

// Pacer is the wall clock used for real-time synchronisation.
type Pacer interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type wallPacer struct{}

func (wallPacer) Now() time.Time { return time.Now() }

func (wallPacer) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// realTimeSync tracks the wall and model time at which a run started.
type realTimeSync struct {
	wallStart time.Time
	simStart  simtime.Time
}

func (s *realTimeSync) start(wall time.Time, sim simtime.Time) {
	s.wallStart = wall
	s.simStart = sim
}

// pace sleeps while model time is ahead of wall time by more than the slack.
// Pacing never changes results.
func (s *realTimeSync) pace(ctx context.Context, d *Director) error {
	if !d.cfg.SynchronizeToRealTime {
		return nil
	}
	simElapsed := time.Duration(d.Now().Sub(s.simStart) * float64(time.Second))
	wallElapsed := d.pacer.Now().Sub(s.wallStart)
	ahead := simElapsed - wallElapsed
	if ahead <= realTimeSlack {
		d.logger.Debug("cannot achieve real-time performance",
			"time", d.Now().Float(),
			"behind", (-ahead).String())
		return nil
	}
	return d.pacer.Sleep(ctx, ahead-realTimeSlack)
}
