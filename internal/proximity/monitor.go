// Package proximity tracks the vessel's position while the bell clock is
// in the foreground. It shares the clock's lifecycle hooks but not its
// bell logic.
package proximity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Permission is the location capability.
type Permission interface {
	Authorized(ctx context.Context) bool
	RequestAuthorization(ctx context.Context)
}

// Config holds monitor configuration.
type Config struct {
	PollInterval time.Duration
	ReadTimeout  time.Duration
}

// Monitor polls a PositionSource while active.
type Monitor struct {
	source    PositionSource
	perm      Permission
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
	state     FixState
	updateCh  chan FixState
	triggerCh chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// New creates an inactive monitor.
func New(source PositionSource, perm Permission, cfg Config, log *zap.Logger) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		source:    source,
		perm:      perm,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		updateCh:  make(chan FixState, 4),
		triggerCh: make(chan struct{}, 1),
	}
}

// SeekPermission asks for the location capability without waiting for
// the answer.
func (m *Monitor) SeekPermission(ctx context.Context) {
	m.perm.RequestAuthorization(ctx)
}

// Authorized reports whether the location capability is granted.
func (m *Monitor) Authorized(ctx context.Context) bool {
	return m.perm.Authorized(ctx)
}

// Activate starts polling until Deactivate or until ctx is cancelled.
// It returns false, and does nothing, when location is not granted.
// Activating an active monitor is a no-op.
func (m *Monitor) Activate(ctx context.Context) bool {
	if !m.perm.Authorized(ctx) {
		m.log.Debug("location not authorized, monitor stays inactive")
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return true
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(runCtx)
	m.log.Info("proximity monitor activated", zap.Duration("interval", m.cfg.PollInterval))
	return true
}

// Deactivate stops polling and waits for an in-flight read to finish.
func (m *Monitor) Deactivate() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.log.Info("proximity monitor deactivated")
}

// Active reports whether the monitor is polling.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Latest returns the current fix, if one is held and not lost.
func (m *Monitor) Latest() (Fix, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Current()
}

// State returns a snapshot of the fix state.
func (m *Monitor) State() FixState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Updates returns the channel that receives fix state after each read.
func (m *Monitor) Updates() <-chan FixState {
	return m.updateCh
}

// TriggerNow requests an immediate read.
func (m *Monitor) TriggerNow() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
		// Already triggered, skip
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.poll(ctx)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		case <-m.triggerCh:
			m.poll(ctx)
			ticker.Reset(m.cfg.PollInterval)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	ready := m.state.ShouldRead(now)
	m.mu.Unlock()
	if !ready {
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, m.cfg.ReadTimeout)
	fix, err := m.source.Read(readCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err == nil && !fix.Valid() {
		err = errInvalidFix
	}

	m.mu.Lock()
	if err != nil {
		wasLost := m.state.Lost
		m.state.RecordFailure(err, m.cfg.PollInterval, now)
		if m.state.Lost && !wasLost {
			m.log.Warn("position fix lost",
				zap.Int("failures", m.state.ConsecFails),
				zap.Error(err))
		} else {
			m.log.Debug("position read failed", zap.Error(err))
		}
	} else if m.state.RecordSuccess(fix, now) {
		m.log.Info("position fix recovered",
			zap.Float64("lat", fix.Latitude),
			zap.Float64("lon", fix.Longitude))
	}
	snapshot := m.state
	m.mu.Unlock()

	m.emit(snapshot)
}

// emit sends without blocking; if the channel is full the oldest update
// is dropped.
func (m *Monitor) emit(s FixState) {
	select {
	case m.updateCh <- s:
	default:
		select {
		case <-m.updateCh:
		default:
		}
		select {
		case m.updateCh <- s:
		default:
		}
	}
}
