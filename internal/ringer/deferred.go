package ringer

import (
	"context"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"go.uber.org/zap"
)

const (
	// DefaultHorizon covers three watches.
	DefaultHorizon = 3 * bell.BoundariesPerWatch

	// MaxHorizon is the most requests a facility will hold for us.
	MaxHorizon = 64
)

// Facility is a deferred-delivery service that fires submitted patterns
// at their wall-clock time, whether or not this process is running.
type Facility interface {
	// Authorized reports whether scheduling is currently permitted.
	Authorized(ctx context.Context) bool
	// RequestAuthorization asks for permission without waiting for an
	// answer; the outcome is only visible through Authorized.
	RequestAuthorization(ctx context.Context)
	Submit(ctx context.Context, fireAt time.Time, b bell.Boundary, p bell.Pattern) (string, error)
	// Pending lists handles of requests not yet fired.
	Pending(ctx context.Context) ([]string, error)
	CancelAll(ctx context.Context, handles []string) (int, error)
}

// DeferredConfig configures a Deferred ringer.
type DeferredConfig struct {
	// Horizon is the number of upcoming boundaries to schedule.
	Horizon int
	// Now returns the current instant in the bell clock's location.
	Now func() time.Time
}

// Deferred schedules upcoming bells with a Facility. It keeps no record
// of what it submitted.
type Deferred struct {
	fac     Facility
	horizon int
	now     func() time.Time
	log     *zap.Logger
}

// NewDeferred creates a ringer over fac.
func NewDeferred(fac Facility, cfg DeferredConfig, log *zap.Logger) *Deferred {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if cfg.Horizon > MaxHorizon {
		cfg.Horizon = MaxHorizon
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Deferred{fac: fac, horizon: cfg.Horizon, now: cfg.Now, log: log}
}

// SeekPermission requests the scheduling capability. Safe to call
// repeatedly; never blocks on the answer.
func (d *Deferred) SeekPermission(ctx context.Context) {
	d.fac.RequestAuthorization(ctx)
}

// Authorized reports the facility's capability flag.
func (d *Deferred) Authorized(ctx context.Context) bool {
	return d.fac.Authorized(ctx)
}

// ScheduleIfAuthorized submits every boundary crossing in the horizon
// after the current one. Without permission it does nothing. It returns
// the number of requests submitted.
func (d *Deferred) ScheduleIfAuthorized(ctx context.Context) int {
	return d.schedule(ctx, nil)
}

// ScheduleAfter is ScheduleIfAuthorized for a caller that knows the last
// boundary rung. If the crossing into the current boundary was never
// rung, it is submitted too, with a fire time already in the past.
func (d *Deferred) ScheduleAfter(ctx context.Context, last bell.Boundary) int {
	return d.schedule(ctx, &last)
}

func (d *Deferred) schedule(ctx context.Context, last *bell.Boundary) int {
	if !d.fac.Authorized(ctx) {
		return 0
	}

	now := d.now()
	h, m, s := now.Clock()
	current := int(bell.BoundaryOf((h*60+m)*60 + s))

	first := current + 1
	if last != nil && (current-int(*last)+bell.BoundariesPerDay)%bell.BoundariesPerDay == 1 {
		first = current
	}

	y, mo, day := now.Date()
	submitted := 0
	for k := first; k < first+d.horizon; k++ {
		b := bell.Boundary(k % bell.BoundariesPerDay)
		fireAt := time.Date(y, mo, day, 0, k*30, 0, 0, now.Location())
		if !onBoundary(fireAt, b) {
			// Skipped by a forward DST shift.
			d.log.Debug("boundary does not exist today",
				zap.Int("boundary", int(b)),
				zap.Time("normalized", fireAt))
			continue
		}
		p := bell.Due(b)
		if _, err := d.fac.Submit(ctx, fireAt, b, p); err != nil {
			d.log.Warn("submit deferred bell",
				zap.Time("fire_at", fireAt),
				zap.Int("boundary", int(b)),
				zap.Error(err))
			continue
		}
		submitted++
	}

	d.log.Debug("scheduled deferred bells",
		zap.Int("submitted", submitted),
		zap.Int("first_boundary", first%bell.BoundariesPerDay))
	return submitted
}

// onBoundary reports whether t shows the wall-clock time of b.
func onBoundary(t time.Time, b bell.Boundary) bool {
	h, m, s := t.Clock()
	return (h*60+m)*60+s == b.Seconds()
}

// DisableNotifications cancels every pending request and returns how
// many were cancelled.
func (d *Deferred) DisableNotifications(ctx context.Context) int {
	handles, err := d.fac.Pending(ctx)
	if err != nil {
		d.log.Warn("list pending deferred bells", zap.Error(err))
		return 0
	}
	if len(handles) == 0 {
		return 0
	}
	n, err := d.fac.CancelAll(ctx, handles)
	if err != nil {
		d.log.Warn("cancel deferred bells", zap.Int("pending", len(handles)), zap.Error(err))
	}
	return n
}
