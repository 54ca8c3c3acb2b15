// Package outer is a minimal discrete-event executive that hosts embedded
// directors.
//
// A Calendar keeps a time-ordered queue of firing requests. Run pops the
// earliest time, applies any stimuli scheduled there, then fires every target
// that asked to run at that time, in registration order. Targets ask for
// later firings through the TimeAuthority the calendar hands them.
//
// A Calendar is single-threaded: FireAt and Stimulate may be called from
// target code during Run, but not from other goroutines.
package outer

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/simtime"
)

// DefaultMaxFirings bounds how often one target may fire at one instant.
const DefaultMaxFirings = 1000

// Target is something the calendar fires. *director.Embedded is one.
type Target interface {
	Fire(ctx context.Context) error
	Postfire()
}

type request struct {
	time   simtime.Time
	seq    uint64
	target int // index into targets, or -1 for a stimulus
	fn     func(now simtime.Time) error
}

// requestHeap orders requests by time, stimuli before firings, then
// insertion order.
type requestHeap []request

func (h requestHeap) Len() int { return len(h) }
func (h requestHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	if si, sj := h[i].target < 0, h[j].target < 0; si != sj {
		return si
	}
	return h[i].seq < h[j].seq
}
func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)   { *h = append(*h, x.(request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = request{}
	*h = old[:n-1]
	return r
}

type registration struct {
	name   string
	target Target
}

// Calendar is the discrete-event time authority.
type Calendar struct {
	now        simtime.Time
	resolution simtime.Resolution
	queue      requestHeap
	seq        uint64
	targets    []registration
	byName     map[string]int
	maxFirings int
	firings    int
	logger     *slog.Logger
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Calendar) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithResolution sets the time resolution used to group requests into one
// instant.
func WithResolution(r simtime.Resolution) Option {
	return func(c *Calendar) {
		if r > 0 {
			c.resolution = r
		}
	}
}

// WithMaxFirings bounds repeated firings of one target at one instant.
func WithMaxFirings(n int) Option {
	return func(c *Calendar) {
		if n > 0 {
			c.maxFirings = n
		}
	}
}

// NewCalendar creates a calendar whose time starts at start.
func NewCalendar(start simtime.Time, opts ...Option) *Calendar {
	c := &Calendar{
		now:        start,
		resolution: simtime.DefaultResolution,
		byName:     make(map[string]int),
		maxFirings: DefaultMaxFirings,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a target under a unique name and schedules its first
// firing at the current time.
func (c *Calendar) Register(name string, t Target) error {
	if _, dup := c.byName[name]; dup {
		return fmt.Errorf("target %q already registered", name)
	}
	c.byName[name] = len(c.targets)
	c.targets = append(c.targets, registration{name: name, target: t})
	return c.FireAt(name, c.now)
}

// Authority returns the time authority a target called name should use.
// The name need not be registered yet.
func (c *Calendar) Authority(name string) *Authority {
	return &Authority{cal: c, name: name}
}

// FireAt schedules the named target at t. Times before now fail.
func (c *Calendar) FireAt(name string, t simtime.Time) error {
	idx, ok := c.byName[name]
	if !ok {
		return simerr.NewMisconfigured(name, "fireAt for an unregistered target")
	}
	if c.resolution.Before(t, c.now) {
		return simerr.NewMisconfigured(name, fmt.Sprintf("fireAt time %v is before the current time %v", t, c.now))
	}
	for _, r := range c.queue {
		if r.target == idx && c.resolution.Equal(r.time, t) {
			return nil
		}
	}
	c.push(request{time: t, target: idx})
	return nil
}

// Stimulate runs fn at t before any target fires there. Stimuli drive
// inputs of hosted models from outside.
func (c *Calendar) Stimulate(t simtime.Time, fn func(now simtime.Time) error) error {
	if c.resolution.Before(t, c.now) {
		return simerr.NewMisconfigured("", fmt.Sprintf("stimulus time %v is before the current time %v", t, c.now))
	}
	c.push(request{time: t, target: -1, fn: fn})
	return nil
}

func (c *Calendar) push(r request) {
	c.seq++
	r.seq = c.seq
	heap.Push(&c.queue, r)
}

// Now returns the calendar's current time.
func (c *Calendar) Now() simtime.Time { return c.now }

// Next returns the earliest pending request time, or +Inf.
func (c *Calendar) Next() simtime.Time {
	if len(c.queue) == 0 {
		return simtime.Time(math.Inf(1))
	}
	return c.queue[0].time
}

// Firings counts target firings since creation.
func (c *Calendar) Firings() int { return c.firings }

// Run processes requests in time order until the queue is empty, the next
// request is after until, or ctx is done.
func (c *Calendar) Run(ctx context.Context, until simtime.Time) error {
	for len(c.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := c.queue[0].time
		if c.resolution.After(t, until) {
			break
		}
		if err := c.instant(ctx, t); err != nil {
			return err
		}
	}
	c.logger.Debug("calendar idle", "time", c.now.Float(), "pending", len(c.queue), "firings", c.firings)
	return nil
}

// instant processes every request at t, including ones added for t while
// processing.
func (c *Calendar) instant(ctx context.Context, t simtime.Time) error {
	c.now = t
	counts := make(map[int]int)
	for len(c.queue) > 0 && c.resolution.Equal(c.queue[0].time, t) {
		r := heap.Pop(&c.queue).(request)
		if r.target < 0 {
			if err := r.fn(t); err != nil {
				return fmt.Errorf("stimulus at %v: %w", t, err)
			}
			continue
		}
		reg := c.targets[r.target]
		counts[r.target]++
		if counts[r.target] > c.maxFirings {
			return simerr.NewDiscreteLivelock(reg.name, c.maxFirings).At(t.Float())
		}
		c.logger.Debug("firing target", "target", reg.name, "time", t.Float())
		if err := reg.target.Fire(ctx); err != nil {
			return fmt.Errorf("target %s at %v: %w", reg.name, t, err)
		}
		reg.target.Postfire()
		c.firings++
	}
	return nil
}

// Authority is the director.TimeAuthority view of a calendar for one
// target.
type Authority struct {
	cal  *Calendar
	name string
}

func (a *Authority) CurrentTime() simtime.Time { return a.cal.now }

// IterationBeginTime is the calendar's current time: discrete-event time is
// always committed.
func (a *Authority) IterationBeginTime() simtime.Time { return a.cal.now }

func (a *Authority) NextIterationTime() simtime.Time { return a.cal.Next() }

func (a *Authority) FireAt(t simtime.Time) error { return a.cal.FireAt(a.name, t) }
