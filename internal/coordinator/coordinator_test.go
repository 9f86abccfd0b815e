package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/metrics"
	"github.com/JPM1118/shipsbell/internal/proximity"
	"github.com/JPM1118/shipsbell/internal/ringer"
	"github.com/JPM1118/shipsbell/internal/testutil"
	"github.com/JPM1118/shipsbell/internal/watchclock"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// manualTicks fires only when the test says so.
type manualTicks struct {
	mu      sync.Mutex
	next    TickHandle
	fires   map[TickHandle]func()
	stopped map[TickHandle]bool
	last    TickHandle
}

func newManualTicks() *manualTicks {
	return &manualTicks{fires: make(map[TickHandle]func()), stopped: make(map[TickHandle]bool)}
}

func (m *manualTicks) Start(_ time.Duration, fire func()) TickHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.fires[m.next] = fire
	m.last = m.next
	return m.next
}

func (m *manualTicks) Stop(h TickHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped[h] = true
}

// Fire runs the newest stream's callback, stopped or not.
func (m *manualTicks) Fire() {
	m.mu.Lock()
	fire := m.fires[m.last]
	m.mu.Unlock()
	if fire != nil {
		fire()
	}
}

func (m *manualTicks) running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for h := range m.fires {
		if !m.stopped[h] {
			n++
		}
	}
	return n
}

type fakeProximity struct {
	mu          sync.Mutex
	granted     bool
	active      bool
	activations int
	seeks       int
}

func (p *fakeProximity) SeekPermission(context.Context) {
	p.mu.Lock()
	p.seeks++
	p.mu.Unlock()
}

func (p *fakeProximity) Authorized(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *fakeProximity) Activate(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.granted {
		return false
	}
	p.active = true
	p.activations++
	return true
}

func (p *fakeProximity) Deactivate() {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
}

func (p *fakeProximity) Latest() (proximity.Fix, bool) {
	return proximity.Fix{}, false
}

type harness struct {
	c      *Coordinator
	cal    *testutil.FakeCalendar
	fac    *testutil.FakeFacility
	player *testutil.RecordingPlayer
	ticks  *manualTicks
	prox   *fakeProximity
	m      *metrics.Metrics
}

func newHarness(t *testing.T, seconds int, granted bool) *harness {
	t.Helper()
	h := &harness{
		cal:    testutil.NewFakeCalendar(seconds),
		fac:    &testutil.FakeFacility{Granted: granted},
		player: &testutil.RecordingPlayer{},
		ticks:  newManualTicks(),
		prox:   &fakeProximity{granted: true},
		m:      metrics.New(nil),
	}
	log := zaptest.NewLogger(t)
	now := func() time.Time {
		hh, mm, ss, _ := h.cal.Components()
		return time.Date(2026, 7, 14, hh, mm, ss, 0, time.UTC)
	}
	deferred := ringer.NewDeferred(h.fac, ringer.DeferredConfig{Now: now}, log)
	h.c = New(watchclock.New(h.cal, log), ringer.NewActive(h.player), deferred, h.ticks,
		Config{}, log, WithProximity(h.prox), WithMetrics(h.m))
	return h
}

func (h *harness) launch() {
	ctx := context.Background()
	h.c.PrepareForStart(ctx)
	h.c.MoveToForeground(ctx)
}

func hms(hh, mm, ss int) int { return (hh*60+mm)*60 + ss }

func TestPrepareForStart_SeeksCapabilities(t *testing.T) {
	h := newHarness(t, hms(10, 10, 0), false)
	h.c.PrepareForStart(context.Background())

	assert.Equal(t, 1, h.fac.Requests)
	assert.Equal(t, 1, h.prox.seeks)

	s := h.c.Snapshot()
	assert.Equal(t, PhaseLaunching, s.Phase)
	assert.Equal(t, ModeInactive, s.Mode)
	assert.Equal(t, bell.Boundary(20), s.LastRung)
	assert.Equal(t, bell.ForenoonWatch, s.Watch)
}

func TestForeground_RingsOncePerBoundary(t *testing.T) {
	h := newHarness(t, hms(10, 29, 58), true)
	h.launch()

	h.ticks.Fire()
	assert.Equal(t, 0, h.player.Count(), "entering mid-interval must not ring")

	h.cal.Set(hms(10, 30, 0))
	h.ticks.Fire()
	h.ticks.Fire()
	h.cal.Advance(1)
	h.ticks.Fire()

	require.Equal(t, 1, h.player.Count())
	assert.Equal(t, bell.Due(21), h.player.Patterns()[0])
	assert.Equal(t, 5, h.player.Patterns()[0].Strikes())
	assert.Equal(t, float64(1), promtest.ToFloat64(h.m.BellsRung.WithLabelValues(metrics.RingerActive)))
	assert.Equal(t, float64(4), promtest.ToFloat64(h.m.Ticks))
}

func TestBackground_SchedulesAndStopsTicks(t *testing.T) {
	h := newHarness(t, hms(10, 10, 0), true)
	h.launch()
	require.Equal(t, 1, h.ticks.running())
	require.True(t, h.prox.active)

	h.c.MoveToBackground(context.Background())

	s := h.c.Snapshot()
	assert.Equal(t, PhaseBackground, s.Phase)
	assert.Equal(t, ModeDeferred, s.Mode)
	assert.Equal(t, ringer.DefaultHorizon, s.Scheduled)
	assert.Equal(t, 0, h.ticks.running())
	assert.False(t, h.prox.active)

	reqs := h.fac.PendingRequests()
	require.Len(t, reqs, ringer.DefaultHorizon)
	assert.Equal(t, bell.Boundary(21), reqs[0].Boundary)
	assert.Equal(t, float64(ringer.DefaultHorizon), promtest.ToFloat64(h.m.DeferredScheduled))
	assert.Equal(t, float64(ModeDeferred), promtest.ToFloat64(h.m.RingerMode))
}

func TestBackground_DeniedLeavesNoRinger(t *testing.T) {
	h := newHarness(t, hms(10, 10, 0), false)
	h.launch()

	h.c.MoveToBackground(context.Background())

	s := h.c.Snapshot()
	assert.Equal(t, ModeInactive, s.Mode)
	assert.False(t, s.NotificationsAuthorized)
	assert.Equal(t, 0, h.fac.Submitted())
}

func TestBackground_IncludesUnrungCurrentBoundary(t *testing.T) {
	h := newHarness(t, hms(10, 29, 50), true)
	h.launch()

	// The boundary passes between ticks and the app is backgrounded
	// before the next one.
	h.cal.Set(hms(10, 30, 5))
	h.c.MoveToBackground(context.Background())

	reqs := h.fac.PendingRequests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, bell.Boundary(21), reqs[0].Boundary)
	assert.Equal(t, time.Date(2026, 7, 14, 10, 30, 0, 0, time.UTC), reqs[0].FireAt)
}

func TestForeground_CancelsDeferredBeforeArming(t *testing.T) {
	h := newHarness(t, hms(10, 10, 0), true)
	h.launch()
	ctx := context.Background()

	h.c.MoveToBackground(ctx)
	require.NotEmpty(t, h.fac.PendingRequests())

	// 10:30 passes while in the background; the facility owns that bell.
	h.cal.Set(hms(10, 31, 0))
	h.c.MoveToForeground(ctx)

	assert.Empty(t, h.fac.PendingRequests())
	assert.Equal(t, ModeActive, h.c.Snapshot().Mode)
	assert.Equal(t, float64(ringer.DefaultHorizon), promtest.ToFloat64(h.m.DeferredCancelled))

	h.ticks.Fire()
	assert.Equal(t, 0, h.player.Count(), "boundary crossed in background must not ring again")
	assert.Equal(t, 2, h.prox.activations)
}

func TestTransitions_Idempotent(t *testing.T) {
	h := newHarness(t, hms(10, 10, 0), true)
	h.launch()
	ctx := context.Background()

	h.c.MoveToForeground(ctx)
	assert.Equal(t, 1, h.ticks.running())

	h.c.MoveToBackground(ctx)
	h.c.MoveToBackground(ctx)
	assert.Equal(t, ringer.DefaultHorizon, h.fac.Submitted())
}

func TestTicksAfterBackgroundAreDropped(t *testing.T) {
	h := newHarness(t, hms(10, 29, 59), true)
	h.launch()

	h.c.MoveToBackground(context.Background())
	h.cal.Set(hms(10, 30, 1))
	h.ticks.Fire()

	assert.Equal(t, 0, h.player.Count())
}

func TestShutdown_LeavesNothingPending(t *testing.T) {
	h := newHarness(t, hms(3, 45, 0), true)
	h.launch()
	ctx := context.Background()

	h.c.PrepareForShutdown(ctx)

	s := h.c.Snapshot()
	assert.Equal(t, PhaseStopped, s.Phase)
	assert.Equal(t, ModeInactive, s.Mode)
	assert.Empty(t, h.fac.PendingRequests())
	assert.Equal(t, 0, h.ticks.running())

	h.c.MoveToForeground(ctx)
	assert.Equal(t, PhaseStopped, h.c.Snapshot().Phase)
	assert.Equal(t, 0, h.ticks.running())
}

func TestShutdown_FromBackground(t *testing.T) {
	h := newHarness(t, hms(3, 45, 0), true)
	h.launch()
	ctx := context.Background()

	h.c.MoveToBackground(ctx)
	h.c.PrepareForShutdown(ctx)

	assert.Empty(t, h.fac.PendingRequests())
	assert.Equal(t, ringer.DefaultHorizon, h.fac.Submitted())
}

func TestModeExclusive(t *testing.T) {
	h := newHarness(t, hms(10, 10, 0), true)
	ctx := context.Background()

	check := func() {
		s := h.c.Snapshot()
		pending := len(h.fac.PendingRequests())
		switch s.Mode {
		case ModeActive:
			assert.Zero(t, pending, "active mode with deferred requests pending")
			assert.Equal(t, 1, h.ticks.running())
		case ModeDeferred:
			assert.NotZero(t, pending)
			assert.Zero(t, h.ticks.running(), "deferred mode with ticks running")
		case ModeInactive:
			assert.Zero(t, h.ticks.running())
		}
	}

	h.c.PrepareForStart(ctx)
	check()
	for i := 0; i < 3; i++ {
		h.c.MoveToForeground(ctx)
		check()
		h.cal.Advance(1700)
		h.c.MoveToBackground(ctx)
		check()
	}
	h.c.PrepareForShutdown(ctx)
	check()
}

func TestPublish_SubscribersAndUpdates(t *testing.T) {
	h := newHarness(t, hms(10, 29, 59), true)

	var mu sync.Mutex
	var seen []State
	h.c.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	h.launch()
	h.cal.Set(hms(10, 30, 0))
	h.ticks.Fire()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, PhaseLaunching, seen[0].Phase)
	assert.True(t, seen[1].Foreground())
	assert.True(t, seen[2].Rang)
	assert.Equal(t, bell.Boundary(21), seen[2].LastRung)
	assert.Equal(t, hms(10, 30, 0), seen[2].TimeOfDay)

	first := <-h.c.Updates()
	assert.Equal(t, PhaseLaunching, first.Phase)
}

func TestPublish_DropsStaleSnapshot(t *testing.T) {
	h := newHarness(t, hms(10, 29, 59), true)

	var seen []State
	h.c.Subscribe(func(s State) { seen = append(seen, s) })

	h.launch()
	require.Len(t, seen, 2)
	assert.Less(t, seen[0].Seq, seen[1].Seq)

	// A launch snapshot that lost the race to the foreground one.
	h.c.publish(seen[0])
	assert.Len(t, seen, 2)
}

func TestPublish_OrderedUnderConcurrency(t *testing.T) {
	h := newHarness(t, hms(10, 0, 0), true)

	var mu sync.Mutex
	var last State
	ordered := true
	h.c.Subscribe(func(s State) {
		mu.Lock()
		if s.Seq <= last.Seq {
			ordered = false
		}
		last = s
		mu.Unlock()
	})
	h.launch()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.ticks.Fire()
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if (i+j)%2 == 0 {
					h.c.MoveToBackground(ctx)
				} else {
					h.c.MoveToForeground(ctx)
				}
			}
		}(i)
	}
	wg.Wait()
	h.c.MoveToBackground(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, ordered, "subscribers saw an older snapshot after a newer one")
	assert.Equal(t, h.c.Snapshot().Phase, last.Phase)
	assert.Equal(t, PhaseBackground, last.Phase)
}

func TestUpdates_DropOldest(t *testing.T) {
	h := newHarness(t, hms(10, 0, 0), true)
	h.launch()

	for i := 0; i < 20; i++ {
		h.cal.Advance(1)
		h.ticks.Fire()
	}

	var last State
	n := 0
	for {
		select {
		case s := <-h.c.Updates():
			last = s
			n++
			continue
		default:
		}
		break
	}
	assert.Equal(t, cap(h.c.updateCh), n)
	assert.Equal(t, hms(10, 0, 20), last.TimeOfDay)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "inactive", ModeInactive.String())
	assert.Equal(t, "active", ModeActive.String())
	assert.Equal(t, "deferred", ModeDeferred.String())
	assert.Equal(t, "foreground", PhaseForeground.String())
}
