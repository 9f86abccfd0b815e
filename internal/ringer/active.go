// Package ringer delivers bell patterns. Active rings immediately on
// each foreground tick; Deferred hands future bells to a delivery
// facility before the app is suspended.
package ringer

import (
	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/notify"
)

// State is the active ringer's state.
type State int

const (
	Idle State = iota
	Armed
	Ringing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Ringing:
		return "ringing"
	default:
		return "unknown"
	}
}

// Active rings the bell from foreground ticks, at most once per boundary.
// Not goroutine-safe; the coordinator serialises calls.
type Active struct {
	player notify.Player
	state  State
	last   bell.Boundary
}

// NewActive creates an idle ringer that plays through player.
func NewActive(player notify.Player) *Active {
	return &Active{player: player}
}

// InitializeLastPlayed marks the boundary already in effect at
// secondsOfDay as rung and arms the ringer, so entering the foreground
// mid-interval does not ring immediately.
func (a *Active) InitializeLastPlayed(secondsOfDay int) {
	a.last = bell.BoundaryOf(secondsOfDay)
	a.state = Armed
}

// MaybeRing plays the due pattern if secondsOfDay lies past a boundary
// not yet rung. It reports whether a pattern was played. Ticks while
// not armed are dropped.
func (a *Active) MaybeRing(secondsOfDay int) bool {
	if a.state != Armed {
		return false
	}
	b := bell.BoundaryOf(secondsOfDay)
	if b == a.last {
		return false
	}

	a.state = Ringing
	a.player.Play(bell.Due(b))
	a.last = b
	a.state = Armed
	return true
}

// Disarm stops the ringer from reacting to ticks.
func (a *Active) Disarm() {
	a.state = Idle
}

// State returns the current state.
func (a *Active) State() State { return a.state }

// Last returns the last boundary rung or marked as rung.
func (a *Active) Last() bell.Boundary { return a.last }
