// Package watchclock derives the number of seconds elapsed since local
// midnight from a wall-clock calendar.
package watchclock

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrClockUnavailable is reported when the calendar cannot produce valid
// hour/minute/second components.
var ErrClockUnavailable = errors.New("clock unavailable")

// Calendar provides the current local time decomposed into components.
type Calendar interface {
	Components() (hour, minute, second int, err error)
}

// SystemCalendar reads the wall clock in a fixed location.
type SystemCalendar struct {
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewSystemCalendar loads the named zone ("" or "Local" for the host zone).
func NewSystemCalendar(zone string) (*SystemCalendar, error) {
	if zone == "" || zone == "Local" {
		return &SystemCalendar{Location: time.Local}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &SystemCalendar{Location: loc}, nil
}

// Time returns the current instant in the calendar's location.
func (c *SystemCalendar) Time() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

func (c *SystemCalendar) Components() (int, int, int, error) {
	if c == nil {
		return 0, 0, 0, ErrClockUnavailable
	}
	h, m, s := c.Time().Clock()
	return h, m, s, nil
}

// Clock owns the authoritative "seconds since midnight" reading.
type Clock struct {
	cal Calendar
	log *zap.Logger
}

// New creates a Clock over cal. A nil logger discards warnings.
func New(cal Calendar, log *zap.Logger) *Clock {
	if log == nil {
		log = zap.NewNop()
	}
	return &Clock{cal: cal, log: log}
}

// Refresh reads the calendar and returns (hour*60+minute)*60+second.
// If the calendar fails, Refresh logs the failure and returns 0: a
// wrong bell once is preferable to a stopped clock.
func (c *Clock) Refresh() int {
	h, m, s, err := c.cal.Components()
	if err == nil && !validComponents(h, m, s) {
		err = fmt.Errorf("%w: components %02d:%02d:%02d out of range", ErrClockUnavailable, h, m, s)
	}
	if err != nil {
		if !errors.Is(err, ErrClockUnavailable) {
			err = fmt.Errorf("%w: %v", ErrClockUnavailable, err)
		}
		c.log.Warn("falling back to midnight", zap.Error(err))
		return 0
	}
	return (h*60+m)*60 + s
}

func validComponents(h, m, s int) bool {
	return h >= 0 && h < 24 && m >= 0 && m < 60 && s >= 0 && s < 60
}
