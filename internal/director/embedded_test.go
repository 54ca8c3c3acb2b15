package director_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hysim/internal/actor"
	"github.com/roach88/hysim/internal/director"
	"github.com/roach88/hysim/internal/library"
	"github.com/roach88/hysim/internal/outer"
	"github.com/roach88/hysim/internal/signal"
	"github.com/roach88/hysim/internal/simerr"
	"github.com/roach88/hysim/internal/simtime"
	"github.com/roach88/hysim/internal/trace"
)

// fakeAuthority is a hand-driven outer time authority.
type fakeAuthority struct {
	now, begin, next simtime.Time
	requests         []simtime.Time
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{next: simtime.Time(math.Inf(1))}
}

func (a *fakeAuthority) CurrentTime() simtime.Time        { return a.now }
func (a *fakeAuthority) IterationBeginTime() simtime.Time { return a.begin }
func (a *fakeAuthority) NextIterationTime() simtime.Time  { return a.next }

func (a *fakeAuthority) FireAt(t simtime.Time) error {
	a.requests = append(a.requests, t)
	return nil
}

func embeddedConfig(runAhead float64) director.Config {
	cfg := director.DefaultConfig()
	cfg.RunAheadLength = runAhead
	return cfg
}

func newEmbedded(t *testing.T, c *actor.Composite, auth director.TimeAuthority, cfg director.Config, opts ...director.Option) *director.Embedded {
	t.Helper()
	opts = append([]director.Option{director.WithLogger(quietLogger())}, opts...)
	e, err := director.NewEmbedded(c, cfg, auth, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	return e
}

func TestEmbedded_RequiresAuthority(t *testing.T) {
	c, _, _ := rampModel(t)

	_, err := director.NewEmbedded(c, embeddedConfig(1), nil)
	assert.True(t, simerr.IsMisconfigured(err))
}

func TestEmbedded_FireBeforeInitialize(t *testing.T) {
	c, _, _ := rampModel(t)
	e, err := director.NewEmbedded(c, embeddedConfig(1), newFakeAuthority(), director.WithLogger(quietLogger()))
	require.NoError(t, err)

	assert.True(t, simerr.IsMisconfigured(e.Fire(context.Background())))
}

func TestEmbedded_StartsAtOuterTime(t *testing.T) {
	c, x, _ := rampModel(t)
	auth := newFakeAuthority()
	auth.now, auth.begin = 3, 3
	e := newEmbedded(t, c, auth, embeddedConfig(0.5))

	require.NoError(t, e.Fire(context.Background()))
	e.Postfire()

	d := e.Director()
	assert.Equal(t, simtime.Time(3.5), d.Now())
	assert.InDelta(t, 0.5, x.State(), 1e-12)
	assert.Equal(t, []simtime.Time{3.5}, auth.requests)
	assert.InDelta(t, 0.5, e.PredictedStepSize(), 1e-12)
	assert.True(t, e.IsAccurate())
}

func TestEmbedded_RunAheadStopsShortOfKnownOuterTime(t *testing.T) {
	c, _, _ := rampModel(t)
	auth := newFakeAuthority()
	auth.next = 0.3
	e := newEmbedded(t, c, auth, embeddedConfig(1))

	require.NoError(t, e.Fire(context.Background()))
	assert.InDelta(t, 0.3, e.Director().Now().Float(), 1e-12)
}

func TestEmbedded_RollsBackWhenOuterIsBehind(t *testing.T) {
	c, x, rec := rampModel(t)
	auth := newFakeAuthority()
	mem := trace.NewMemory()
	e := newEmbedded(t, c, auth, embeddedConfig(1), director.WithRecorder(mem))
	ctx := context.Background()

	require.NoError(t, e.Fire(ctx))
	e.Postfire()
	require.Equal(t, simtime.Time(1), e.Director().Now())

	auth.now = 0.4
	require.NoError(t, e.Fire(ctx))

	rb := mem.Rollbacks()
	require.Len(t, rb, 1)
	assert.Equal(t, 1.0, rb[0].From)
	assert.Equal(t, 0.0, rb[0].To)
	assert.Equal(t, 0.4, rb[0].Target)

	// After rollback and replay, run-ahead from 0.4 leaves state consistent
	// with local time.
	assert.InDelta(t, e.Director().Now().Float(), x.State(), 1e-9)
	for _, s := range rec.Samples() {
		assert.InDelta(t, s.Time, s.Value, 1e-9)
	}
}

func TestEmbedded_TimeCollapse(t *testing.T) {
	c, _, _ := rampModel(t)
	auth := newFakeAuthority()
	e := newEmbedded(t, c, auth, embeddedConfig(0.5))
	ctx := context.Background()

	require.NoError(t, e.Fire(ctx))
	e.Postfire()
	auth.now = 1
	require.NoError(t, e.Fire(ctx))
	e.Postfire()
	require.Equal(t, simtime.Time(1.5), e.Director().Now())

	auth.now = 0.5
	err := e.Fire(ctx)
	require.Error(t, err)
	assert.True(t, simerr.IsInternal(err))
	assert.Contains(t, err.Error(), "time collapse")
}

func TestEmbedded_InnerBreakpointBeforeOuterTime(t *testing.T) {
	c, _, _ := rampModel(t)
	c.MustAdd(library.NewPeriodicPulse("pulse", 1, 0.25, 1))
	auth := newFakeAuthority()
	e := newEmbedded(t, c, auth, embeddedConfig(1))
	ctx := context.Background()

	require.NoError(t, e.Fire(ctx))
	e.Postfire()
	require.Equal(t, simtime.Time(0.25), e.Director().Now())
	assert.Equal(t, []simtime.Time{0.25}, auth.requests)

	// The outer skipped the requested time.
	auth.begin, auth.now = 0.2, 0.6
	require.NoError(t, e.Fire(ctx))
	assert.False(t, e.IsAccurate())
	assert.InDelta(t, 0.05, e.RefinedStepSize(), 1e-12)
	assert.Equal(t, simtime.Time(0.25), e.Director().Now())
}

func TestEmbedded_ReplayAcrossBreakpointIsInternal(t *testing.T) {
	c, _, _ := rampModel(t)
	c.MustAdd(library.NewPeriodicPulse("pulse", 1, 0.25, 1))
	auth := newFakeAuthority()
	e := newEmbedded(t, c, auth, embeddedConfig(1))
	ctx := context.Background()

	// Never committing leaves the checkpoint at the start.
	require.NoError(t, e.Fire(ctx))
	auth.now = 0.25
	require.NoError(t, e.Fire(ctx))
	require.Greater(t, e.Director().Now().Float(), 0.25)

	auth.now = 0.4
	err := e.Fire(ctx)
	require.Error(t, err)
	assert.True(t, simerr.IsInternal(err))
	assert.Contains(t, err.Error(), "while catching up")
}

func TestEmbedded_NearOuterIterationRequestsRefire(t *testing.T) {
	c, _, _ := rampModel(t)
	auth := newFakeAuthority()
	auth.next = 1e-11
	e := newEmbedded(t, c, auth, embeddedConfig(1))

	require.NoError(t, e.Fire(context.Background()))
	assert.Equal(t, simtime.Time(0), e.Director().Now())
	assert.Equal(t, []simtime.Time{1e-11}, auth.requests)
}

func TestEmbedded_ForwardsInnerBreakpoints(t *testing.T) {
	c, _, _ := rampModel(t)
	c.MustAdd(library.NewPeriodicPulse("pulse", 1, 2, 1))
	auth := newFakeAuthority()
	e := newEmbedded(t, c, auth, embeddedConfig(0.5))
	assert.Equal(t, []simtime.Time{2}, auth.requests)

	require.NoError(t, e.Fire(context.Background()))
	assert.Equal(t, []simtime.Time{2, 0.5}, auth.requests)
}

// ticker is a calendar target that, each time it fires, pokes the hosted
// subsystem a little later than it could have known.
type ticker struct {
	cal    *outer.Calendar
	target string
	delay  float64
	period float64
}

func (tk *ticker) Fire(context.Context) error {
	now := tk.cal.Now()
	if err := tk.cal.FireAt(tk.target, now.Add(tk.delay)); err != nil {
		return err
	}
	return tk.cal.FireAt("ticker", now.Add(tk.period))
}

func (tk *ticker) Postfire() {}

func TestEmbedded_UnderCalendar(t *testing.T) {
	c, x, _ := rampModel(t)
	cal := outer.NewCalendar(0, outer.WithLogger(quietLogger()))
	mem := trace.NewMemory()
	e := newEmbedded(t, c, cal.Authority("sub"), embeddedConfig(0.5), director.WithRecorder(mem))
	require.NoError(t, cal.Register("sub", e))
	require.NoError(t, cal.Register("ticker", &ticker{cal: cal, target: "sub", delay: 0.1, period: 0.3}))

	require.NoError(t, cal.Run(context.Background(), 1))

	rb := mem.Rollbacks()
	require.NotEmpty(t, rb)
	assert.Equal(t, 0.5, rb[0].From)
	assert.Equal(t, 0.0, rb[0].To)
	assert.InDelta(t, 0.1, rb[0].Target, 1e-12)
	assert.Equal(t, len(rb), e.Director().Stats().Rollbacks)

	d := e.Director()
	assert.GreaterOrEqual(t, d.Now().Float(), 1.0)
	assert.InDelta(t, d.Now().Float(), x.State(), 1e-9)
}

func TestSubsystem_NestedUnderDirector(t *testing.T) {
	inner := actor.NewComposite("inner")
	in := inner.BoundaryInput("u", signal.Continuous)
	x := library.NewIntegrator("x", 0)
	inner.MustAdd(x)
	out := inner.BoundaryOutput("y", signal.Continuous)
	require.NoError(t, inner.Connect(in, x.In))
	require.NoError(t, inner.Connect(x.Out, out))

	top := actor.NewComposite("top")
	two := library.NewConst("two", 2)
	sub := library.NewSubsystem("sub", inner, embeddedConfig(0.1), director.WithLogger(quietLogger()))
	rec := library.NewRecorder("rec")
	top.MustAdd(two)
	top.MustAdd(sub)
	top.MustAdd(rec)
	require.NoError(t, top.Connect(two.Out, sub.Port("u")))
	require.NoError(t, top.Connect(sub.Port("y"), rec.In))

	d := newDirector(t, top, testConfig(1))
	require.NoError(t, d.Run(context.Background()))

	// Outputs are published at the outer time; the inner director may have
	// run ahead of it.
	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, 1.0, last.Time)
	assert.InDelta(t, 2.0, last.Value, 1e-6)
	innerDir := sub.Embedded().Director()
	assert.InDelta(t, 2*innerDir.Now().Float(), x.State(), 1e-6)
	assert.Positive(t, innerDir.Stats().Rollbacks)
}

func TestSubsystem_CancelStopsRunAhead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := actor.NewComposite("inner")
	one := library.NewConst("one", 1)
	x := library.NewIntegrator("x", 0)
	trip := newHook("trip", func(_ actor.Actor, env actor.Env) error {
		if env.Now() >= 0.5 {
			cancel()
		}
		return nil
	})
	inner.MustAdd(one)
	inner.MustAdd(x)
	inner.MustAdd(trip)
	out := inner.BoundaryOutput("y", signal.Continuous)
	require.NoError(t, inner.Connect(one.Out, x.In))
	require.NoError(t, inner.Connect(x.Out, trip.In))
	require.NoError(t, inner.Connect(x.Out, out))

	innerCfg := embeddedConfig(10)
	innerCfg.InitStepSize, innerCfg.MaxStepSize = 0.1, 0.1
	sub := library.NewSubsystem("sub", inner, innerCfg, director.WithLogger(quietLogger()))
	rec := library.NewRecorder("rec")
	top := actor.NewComposite("top")
	top.MustAdd(sub)
	top.MustAdd(rec)
	require.NoError(t, top.Connect(sub.Port("y"), rec.In))

	// One outer step spans the whole run, so the first fire would run the
	// inner model ahead to t=10.
	cfg := testConfig(10)
	cfg.InitStepSize, cfg.MaxStepSize = 10, 10
	d := newDirector(t, top, cfg)

	err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	innerDir := sub.Embedded().Director()
	assert.GreaterOrEqual(t, innerDir.Now().Float(), 0.5)
	assert.Less(t, innerDir.Now().Float(), 1.0)
}
