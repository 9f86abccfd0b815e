package deferred

import (
	"context"
	"sync"
	"time"

	"github.com/JPM1118/shipsbell/internal/notify"
	"go.uber.org/zap"
)

// DispatcherConfig holds dispatcher configuration.
type DispatcherConfig struct {
	// Interval between scans for due requests.
	Interval time.Duration
	// Grace is how late a request may be delivered. Older requests are
	// dropped unplayed.
	Grace time.Duration
	// Batch bounds the requests handled per scan.
	Batch int
}

// Delivery describes what happened to a due request.
type Delivery struct {
	Request Request
	Played  bool // false when dropped as stale
	At      time.Time
}

// Dispatcher plays due requests from the store.
type Dispatcher struct {
	store     *Store
	player    notify.Player
	cfg       DispatcherConfig
	log       *zap.Logger
	now       func() time.Time
	onDeliver func(Delivery)
	triggerCh chan struct{}
	mu        sync.Mutex
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// OnDeliver registers a callback run after each claimed request.
func OnDeliver(fn func(Delivery)) DispatcherOption {
	return func(d *Dispatcher) { d.onDeliver = fn }
}

// NewDispatcher creates a dispatcher. Call Start to begin scanning.
func NewDispatcher(store *Store, player notify.Player, cfg DispatcherConfig, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 5 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 16
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		store:     store,
		player:    player,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		triggerCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins the scan loop in the background; it stops when ctx is
// cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Run scans until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.run(ctx)
}

// TriggerNow requests an immediate scan.
func (d *Dispatcher) TriggerNow() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	d.Scan(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Scan(ctx)
		case <-d.triggerCh:
			d.Scan(ctx)
			ticker.Reset(d.cfg.Interval)
		}
	}
}

// Scan delivers every request due now and returns how many were played.
// Failures are logged; the next scan tries again.
func (d *Dispatcher) Scan(ctx context.Context) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	due, err := d.store.Due(ctx, now, d.cfg.Batch)
	if err != nil {
		d.log.Warn("scan deferred requests", zap.Error(err))
		return 0
	}

	played := 0
	for _, r := range due {
		ok, err := d.store.Claim(ctx, r.ID)
		if err != nil {
			d.log.Warn("claim deferred request", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue // another dispatcher, or cancelled
		}

		late := now.Sub(r.FireAt)
		delivery := Delivery{Request: r, At: now}
		if late > d.cfg.Grace {
			d.log.Info("dropping stale bell",
				zap.String("id", r.ID),
				zap.Int("boundary", int(r.Boundary)),
				zap.Duration("late", late))
		} else {
			d.player.Play(r.Pattern)
			delivery.Played = true
			played++
			d.log.Info("rang deferred bell",
				zap.Int("boundary", int(r.Boundary)),
				zap.String("pattern", r.Pattern.String()),
				zap.Duration("late", late))
		}
		if d.onDeliver != nil {
			d.onDeliver(delivery)
		}
	}
	return played
}
