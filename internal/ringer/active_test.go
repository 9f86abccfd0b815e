package ringer

import (
	"testing"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(b bell.Boundary, offset int) int {
	return int(b)*bell.SecondsPerBoundary + offset
}

func TestActive_OneDeliveryPerBoundary(t *testing.T) {
	player := &testutil.RecordingPlayer{}
	a := NewActive(player)
	a.InitializeLastPlayed(at(9, 1700))

	ticks := []int{at(10, 0), at(10, 1), at(10, 2), at(11, 0), at(11, 5)}
	rang := 0
	for _, s := range ticks {
		if a.MaybeRing(s) {
			rang++
		}
	}

	assert.Equal(t, 2, rang)
	require.Equal(t, 2, player.Count())
	assert.Equal(t, bell.Due(10), player.Played[0])
	assert.Equal(t, bell.Due(11), player.Played[1])
	assert.Equal(t, bell.Boundary(11), a.Last())
}

func TestActive_NoRingOnForegroundEntry(t *testing.T) {
	player := &testutil.RecordingPlayer{}
	a := NewActive(player)

	a.InitializeLastPlayed(at(20, 600))
	assert.Equal(t, Armed, a.State())

	a.MaybeRing(at(20, 601))
	assert.Equal(t, 0, player.Count(), "boundary already in effect must not ring")

	a.MaybeRing(at(21, 0))
	assert.Equal(t, 1, player.Count())
	assert.Equal(t, bell.Due(21), player.Played[0])
}

func TestActive_IdleIgnoresTicks(t *testing.T) {
	player := &testutil.RecordingPlayer{}
	a := NewActive(player)
	assert.Equal(t, Idle, a.State())
	assert.False(t, a.MaybeRing(at(3, 0)))

	a.InitializeLastPlayed(at(3, 0))
	a.Disarm()
	assert.False(t, a.MaybeRing(at(4, 0)))
	assert.Equal(t, 0, player.Count())
}

func TestActive_MidnightWrap(t *testing.T) {
	player := &testutil.RecordingPlayer{}
	a := NewActive(player)
	a.InitializeLastPlayed(86399)

	require.True(t, a.MaybeRing(1))
	assert.Equal(t, bell.Pattern{2, 2, 2, 2}, player.Played[0], "midnight strikes eight bells")
}

func TestActive_BoundaryCrossedWhileBackgroundedNotReplayed(t *testing.T) {
	player := &testutil.RecordingPlayer{}
	a := NewActive(player)
	a.InitializeLastPlayed(at(5, 0))
	a.Disarm()

	// Boundaries 6 and 7 pass in the background; on return the marker
	// is re-initialised to the boundary in effect.
	a.InitializeLastPlayed(at(7, 100))
	assert.False(t, a.MaybeRing(at(7, 101)))
	assert.Equal(t, 0, player.Count())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "armed", Armed.String())
	assert.Equal(t, "ringing", Ringing.String())
}
