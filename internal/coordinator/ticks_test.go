package coordinator

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerTicks_FiresUntilStopped(t *testing.T) {
	ticks := NewTimerTicks()
	var n atomic.Int32

	h := ticks.Start(5*time.Millisecond, func() { n.Add(1) })
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, ticks.Running())

	ticks.Stop(h)
	assert.Equal(t, 0, ticks.Running())

	time.Sleep(20 * time.Millisecond)
	stopped := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())
}

func TestTimerTicks_StopUnknownHandle(t *testing.T) {
	ticks := NewTimerTicks()
	ticks.Stop(42)
	assert.Equal(t, 0, ticks.Running())
}

func TestTimerTicks_IndependentStreams(t *testing.T) {
	ticks := NewTimerTicks()
	var a, b atomic.Int32

	ha := ticks.Start(5*time.Millisecond, func() { a.Add(1) })
	hb := ticks.Start(5*time.Millisecond, func() { b.Add(1) })
	assert.NotEqual(t, ha, hb)

	ticks.Stop(ha)
	assert.Eventually(t, func() bool { return b.Load() >= 2 }, time.Second, time.Millisecond)
	ticks.Stop(hb)
	assert.Equal(t, 0, ticks.Running())
}
