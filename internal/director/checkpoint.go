package director

import (
	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/simtime"
	"github.com/roach88/hysim/internal/trace"
)

// Checkpoint is a saved director state: time, step sizes, pending
// breakpoints and one handle per stateful actor.
type Checkpoint struct {
	Time        simtime.Time
	handles     map[*actor.Node]actor.Handle
	breakpoints []simtime.Time
	stepSize    float64
	suggested   float64
	disabled    map[*actor.Node]bool
}

// Checkpoint returns the outstanding checkpoint, or nil.
func (d *Director) Checkpoint() *Checkpoint {
	return d.checkpoint
}

// Mark saves every stateful actor and the current time, replacing any
// earlier checkpoint.
func (d *Director) Mark() error {
	cp, err := d.snapshot()
	if err != nil {
		return err
	}
	d.checkpoint = cp
	d.logger.Debug("checkpoint marked", "time", cp.Time.Float(), "actors", len(cp.handles))
	return nil
}

func (d *Director) snapshot() (*Checkpoint, error) {
	if err := d.refreshSchedule(); err != nil {
		return nil, err
	}
	cp := &Checkpoint{
		Time:        d.Now(),
		handles:     make(map[*actor.Node]actor.Handle, len(d.schedule.Stateful)),
		breakpoints: d.breakpoints.Points(),
		stepSize:    d.stepSize,
		suggested:   d.suggestedStepSize,
		disabled:    make(map[*actor.Node]bool, len(d.disabled)),
	}
	for _, n := range d.schedule.Stateful {
		cp.handles[n] = n.Stateful().Save()
	}
	for n, v := range d.disabled {
		cp.disabled[n] = v
	}
	return cp, nil
}

// Restore reverts time and every stateful actor to the checkpoint. The
// checkpoint stays outstanding so it can be restored again.
func (d *Director) Restore() error {
	if d.checkpoint == nil {
		return simerr.NewInternal(d.composite.Name(), "restore without a checkpoint").At(d.Now().Float())
	}
	return d.rollback(d.checkpoint.Time)
}

// rollback restores the checkpoint on the way to target.
func (d *Director) rollback(target simtime.Time) error {
	cp := d.checkpoint
	if cp == nil {
		return simerr.NewInternal(d.composite.Name(), "restore without a checkpoint").At(d.Now().Float())
	}
	from := d.Now()
	for _, n := range d.schedule.Stateful {
		h, ok := cp.handles[n]
		if !ok {
			continue
		}
		if err := n.Stateful().Restore(h); err != nil {
			return d.fail(n, err)
		}
	}
	d.clock.Rewind(cp.Time)
	d.iterationBegin = cp.Time
	d.stepEnd = cp.Time
	d.breakpoints.Clear()
	for _, t := range cp.breakpoints {
		d.breakpoints.Insert(t)
	}
	d.stepSize = cp.stepSize
	d.suggestedStepSize = cp.suggested
	d.disabled = make(map[*actor.Node]bool, len(cp.disabled))
	for n, v := range cp.disabled {
		d.disabled[n] = v
	}
	d.composite.ClearDiscrete()
	d.stats.Rollbacks++

	d.logger.Debug("checkpoint restored", "from", from.Float(), "to", cp.Time.Float(), "target", target.Float())
	return d.recorder.RecordRollback(trace.RollbackRecord{
		Seq:    d.seq.Next(),
		From:   from.Float(),
		To:     cp.Time.Float(),
		Target: target.Float(),
	})
}
