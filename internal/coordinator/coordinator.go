// Package coordinator moves the bell clock between the foreground, where
// the active ringer strikes on every tick, and the background, where
// upcoming bells are handed to the deferred-delivery facility. Exactly
// one ringer holds delivery responsibility at any time.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/metrics"
	"github.com/JPM1118/shipsbell/internal/proximity"
	"github.com/JPM1118/shipsbell/internal/ringer"
	"github.com/JPM1118/shipsbell/internal/watchclock"
	"go.uber.org/zap"
)

// Mode names the ringer responsible for delivering bells.
type Mode int

const (
	ModeInactive Mode = iota
	ModeActive
	ModeDeferred
)

func (m Mode) String() string {
	switch m {
	case ModeInactive:
		return "inactive"
	case ModeActive:
		return "active"
	case ModeDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Phase is the host lifecycle position.
type Phase int

const (
	PhaseLaunching Phase = iota
	PhaseForeground
	PhaseBackground
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseLaunching:
		return "launching"
	case PhaseForeground:
		return "foreground"
	case PhaseBackground:
		return "background"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// State is a snapshot published after every tick and transition.
type State struct {
	// Seq orders snapshots; a larger Seq was taken later.
	Seq                     uint64
	TimeOfDay               int
	Boundary                bell.Boundary
	Watch                   bell.Watch
	Phase                   Phase
	Mode                    Mode
	NotificationsAuthorized bool
	LocationAuthorized      bool
	LastRung                bell.Boundary
	// Rang is set only on the snapshot of the tick that struck the bell.
	Rang bool
	// Scheduled is the number of deferred requests submitted on the
	// last move to the background.
	Scheduled int
	Fix       proximity.Fix
	HasFix    bool
}

// Foreground reports whether the active ringer owns delivery.
func (s State) Foreground() bool { return s.Phase == PhaseForeground }

// Proximity is the subset of proximity.Monitor driven by lifecycle
// transitions.
type Proximity interface {
	SeekPermission(ctx context.Context)
	Authorized(ctx context.Context) bool
	Activate(ctx context.Context) bool
	Deactivate()
	Latest() (proximity.Fix, bool)
}

// Config holds coordinator configuration.
type Config struct {
	TickInterval time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProximity attaches a position monitor.
func WithProximity(p Proximity) Option {
	return func(c *Coordinator) { c.prox = p }
}

// WithMetrics records ticks, strikes and scheduling counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator owns the lifecycle state machine.
type Coordinator struct {
	clock    *watchclock.Clock
	active   *ringer.Active
	deferred *ringer.Deferred
	ticks    TickSource
	prox     Proximity
	metrics  *metrics.Metrics
	cfg      Config
	log      *zap.Logger

	mu        sync.Mutex
	phase     Phase
	mode      Mode
	prepared  bool
	tick      TickHandle
	tickGen   int
	ticking   bool
	timeOfDay int
	scheduled int
	notifyOK  bool
	locateOK  bool
	seq       uint64

	pubMu     sync.Mutex
	published uint64
	subs      []func(State)
	updateCh  chan State
}

// New creates a coordinator in PhaseLaunching with no ringer active.
func New(clock *watchclock.Clock, active *ringer.Active, deferred *ringer.Deferred, ticks TickSource, cfg Config, log *zap.Logger, opts ...Option) *Coordinator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		clock:    clock,
		active:   active,
		deferred: deferred,
		ticks:    ticks,
		cfg:      cfg,
		log:      log,
		updateCh: make(chan State, 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn to receive every published state. fn runs on
// the publishing goroutine; it must not block or call a transition.
func (c *Coordinator) Subscribe(fn func(State)) {
	c.pubMu.Lock()
	c.subs = append(c.subs, fn)
	c.pubMu.Unlock()
}

// Updates returns a channel of published states. When the reader falls
// behind the oldest state is dropped.
func (c *Coordinator) Updates() <-chan State {
	return c.updateCh
}

// Snapshot returns the current state without publishing it.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(false)
}

// PrepareForStart seeks both capabilities without waiting for the answer
// and marks the boundary in effect as already rung.
func (c *Coordinator) PrepareForStart(ctx context.Context) {
	c.mu.Lock()
	c.deferred.SeekPermission(ctx)
	if c.prox != nil {
		c.prox.SeekPermission(ctx)
	}
	c.refreshGrantsLocked(ctx)

	c.timeOfDay = c.clock.Refresh()
	c.active.InitializeLastPlayed(c.timeOfDay)
	c.active.Disarm()
	c.prepared = true

	c.log.Info("bell clock starting",
		zap.Int("time_of_day", c.timeOfDay),
		zap.Stringer("watch", bell.WatchOf(c.timeOfDay)),
		zap.Bool("notifications", c.notifyOK),
		zap.Bool("location", c.locateOK))
	s := c.nextLocked(false)
	c.mu.Unlock()

	c.publish(s)
}

// MoveToForeground cancels every deferred request, then arms the active
// ringer at the boundary in effect and starts ticking.
func (c *Coordinator) MoveToForeground(ctx context.Context) {
	c.mu.Lock()
	if c.phase == PhaseForeground || c.phase == PhaseStopped {
		c.mu.Unlock()
		return
	}

	cancelled := c.deferred.DisableNotifications(ctx)
	if c.metrics != nil {
		c.metrics.DeferredCancelled.Add(float64(cancelled))
	}

	c.timeOfDay = c.clock.Refresh()
	c.active.InitializeLastPlayed(c.timeOfDay)
	c.startTicksLocked()

	if c.prox != nil {
		c.prox.Activate(ctx)
	}
	c.refreshGrantsLocked(ctx)
	c.phase = PhaseForeground
	c.prepared = true
	c.setModeLocked(ModeActive)

	c.log.Info("entered foreground",
		zap.Int("cancelled", cancelled),
		zap.Int("boundary", int(c.active.Last())))
	s := c.nextLocked(false)
	c.mu.Unlock()

	c.publish(s)
}

// MoveToBackground stops ticking before handing upcoming bells to the
// deferred ringer.
func (c *Coordinator) MoveToBackground(ctx context.Context) {
	c.mu.Lock()
	if c.phase == PhaseBackground || c.phase == PhaseStopped {
		c.mu.Unlock()
		return
	}
	c.moveToBackgroundLocked(ctx)
	s := c.nextLocked(false)
	c.mu.Unlock()

	c.publish(s)
}

// PrepareForShutdown moves to the background and then cancels every
// deferred request, leaving no ringer responsible.
func (c *Coordinator) PrepareForShutdown(ctx context.Context) {
	c.mu.Lock()
	if c.phase == PhaseStopped {
		c.mu.Unlock()
		return
	}
	if c.phase != PhaseBackground {
		c.moveToBackgroundLocked(ctx)
	}

	cancelled := c.deferred.DisableNotifications(ctx)
	if c.metrics != nil {
		c.metrics.DeferredCancelled.Add(float64(cancelled))
	}
	c.phase = PhaseStopped
	c.setModeLocked(ModeInactive)

	c.log.Info("bell clock stopped", zap.Int("cancelled", cancelled))
	s := c.nextLocked(false)
	c.mu.Unlock()

	c.publish(s)
}

// RefreshGrants re-reads both capability grants and publishes them.
func (c *Coordinator) RefreshGrants(ctx context.Context) {
	c.mu.Lock()
	c.refreshGrantsLocked(ctx)
	s := c.nextLocked(false)
	c.mu.Unlock()

	c.publish(s)
}

func (c *Coordinator) moveToBackgroundLocked(ctx context.Context) {
	c.stopTicksLocked()
	c.active.Disarm()
	if c.prox != nil {
		c.prox.Deactivate()
	}

	var n int
	if c.prepared {
		n = c.deferred.ScheduleAfter(ctx, c.active.Last())
	} else {
		n = c.deferred.ScheduleIfAuthorized(ctx)
	}
	c.scheduled = n
	if c.metrics != nil {
		c.metrics.DeferredScheduled.Add(float64(n))
	}

	c.refreshGrantsLocked(ctx)
	c.phase = PhaseBackground
	if n > 0 {
		c.setModeLocked(ModeDeferred)
	} else {
		c.setModeLocked(ModeInactive)
	}

	c.log.Info("entered background",
		zap.Int("scheduled", n),
		zap.Stringer("mode", c.mode))
}

func (c *Coordinator) startTicksLocked() {
	if c.ticking {
		return
	}
	c.tickGen++
	gen := c.tickGen
	c.tick = c.ticks.Start(c.cfg.TickInterval, func() { c.onTick(gen) })
	c.ticking = true
}

func (c *Coordinator) stopTicksLocked() {
	if !c.ticking {
		return
	}
	c.ticks.Stop(c.tick)
	c.ticking = false
}

// onTick refreshes the clock and lets the active ringer strike. Ticks
// from a stopped stream are dropped.
func (c *Coordinator) onTick(gen int) {
	c.mu.Lock()
	if c.phase != PhaseForeground || !c.ticking || c.tickGen != gen {
		c.mu.Unlock()
		return
	}

	c.timeOfDay = c.clock.Refresh()
	rang := c.active.MaybeRing(c.timeOfDay)
	if c.metrics != nil {
		c.metrics.Ticks.Inc()
		if rang {
			c.metrics.BellsRung.WithLabelValues(metrics.RingerActive).Inc()
		}
	}
	if rang {
		c.log.Info("rang bell",
			zap.Int("boundary", int(c.active.Last())),
			zap.Stringer("pattern", bell.Due(c.active.Last())),
			zap.Stringer("watch", bell.WatchOf(c.timeOfDay)))
	}
	s := c.nextLocked(rang)
	c.mu.Unlock()

	c.publish(s)
}

func (c *Coordinator) setModeLocked(m Mode) {
	c.mode = m
	if c.metrics != nil {
		c.metrics.RingerMode.Set(float64(m))
	}
}

func (c *Coordinator) refreshGrantsLocked(ctx context.Context) {
	c.notifyOK = c.deferred.Authorized(ctx)
	if c.prox != nil {
		c.locateOK = c.prox.Authorized(ctx)
	}
}

// nextLocked takes a snapshot for publishing.
func (c *Coordinator) nextLocked(rang bool) State {
	c.seq++
	return c.snapshotLocked(rang)
}

func (c *Coordinator) snapshotLocked(rang bool) State {
	s := State{
		Seq:                     c.seq,
		TimeOfDay:               c.timeOfDay,
		Boundary:                bell.BoundaryOf(c.timeOfDay),
		Watch:                   bell.WatchOf(c.timeOfDay),
		Phase:                   c.phase,
		Mode:                    c.mode,
		NotificationsAuthorized: c.notifyOK,
		LocationAuthorized:      c.locateOK,
		LastRung:                c.active.Last(),
		Rang:                    rang,
		Scheduled:               c.scheduled,
	}
	if c.prox != nil {
		s.Fix, s.HasFix = c.prox.Latest()
	}
	return s
}

// publish delivers s unless a later snapshot has already been
// delivered.
func (c *Coordinator) publish(s State) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if s.Seq <= c.published {
		return
	}
	c.published = s.Seq

	for _, fn := range c.subs {
		fn(s)
	}

	select {
	case c.updateCh <- s:
	default:
		select {
		case <-c.updateCh:
		default:
		}
		select {
		case c.updateCh <- s:
		default:
		}
	}
}
