package deferred

import (
	"context"
	"testing"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDispatcher_PlaysDueOnce(t *testing.T) {
	ctx := context.Background()
	s := grantedStore(t)
	now := time.Date(2026, 7, 14, 4, 0, 2, 0, time.UTC)

	_, err := s.Submit(ctx, DefaultSource, now.Add(-2*time.Second), 8, bell.Due(8))
	require.NoError(t, err)
	_, err = s.Submit(ctx, DefaultSource, now.Add(30*time.Minute), 9, bell.Due(9))
	require.NoError(t, err)

	player := &testutil.RecordingPlayer{}
	var deliveries []Delivery
	d := NewDispatcher(s, player, DispatcherConfig{}, zaptest.NewLogger(t),
		WithClock(func() time.Time { return now }),
		OnDeliver(func(dl Delivery) { deliveries = append(deliveries, dl) }))

	assert.Equal(t, 1, d.Scan(ctx))
	assert.Equal(t, 0, d.Scan(ctx), "a request is delivered once")

	require.Equal(t, 1, player.Count())
	assert.Equal(t, bell.Pattern{2, 2, 2, 2}, player.Patterns()[0])
	require.Len(t, deliveries, 1)
	assert.True(t, deliveries[0].Played)

	left, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)
}

func TestDispatcher_DropsStale(t *testing.T) {
	ctx := context.Background()
	s := grantedStore(t)
	now := time.Date(2026, 7, 14, 9, 0, 0, 0, time.UTC)

	_, err := s.Submit(ctx, DefaultSource, now.Add(-2*time.Hour), 14, bell.Due(14))
	require.NoError(t, err)

	player := &testutil.RecordingPlayer{}
	var deliveries []Delivery
	d := NewDispatcher(s, player, DispatcherConfig{Grace: time.Minute}, nil,
		WithClock(func() time.Time { return now }),
		OnDeliver(func(dl Delivery) { deliveries = append(deliveries, dl) }))

	assert.Equal(t, 0, d.Scan(ctx))
	assert.Equal(t, 0, player.Count())
	require.Len(t, deliveries, 1)
	assert.False(t, deliveries[0].Played)

	left, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, left, "stale request is removed")
}

func TestDispatcher_TwoDispatchersShareStore(t *testing.T) {
	ctx := context.Background()
	s := grantedStore(t)
	now := time.Now()

	for b := bell.Boundary(0); b < 4; b++ {
		_, err := s.Submit(ctx, DefaultSource, now.Add(-time.Second), b, bell.Due(b))
		require.NoError(t, err)
	}

	p1, p2 := &testutil.RecordingPlayer{}, &testutil.RecordingPlayer{}
	clock := WithClock(func() time.Time { return now })
	d1 := NewDispatcher(s, p1, DispatcherConfig{}, nil, clock)
	d2 := NewDispatcher(s, p2, DispatcherConfig{}, nil, clock)

	d1.Scan(ctx)
	d2.Scan(ctx)
	assert.Equal(t, 4, p1.Count()+p2.Count())
}

func TestDispatcher_StartDeliversAndStops(t *testing.T) {
	s := grantedStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	player := &testutil.RecordingPlayer{}
	d := NewDispatcher(s, player, DispatcherConfig{Interval: 20 * time.Millisecond}, nil)
	d.Start(ctx)

	_, err := s.Submit(ctx, DefaultSource, time.Now(), 2, bell.Due(2))
	require.NoError(t, err)
	d.TriggerNow()

	require.Eventually(t, func() bool { return player.Count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
}
