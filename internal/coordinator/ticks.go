package coordinator

import (
	"context"
	"sync"
	"time"
)

// TickHandle identifies a running tick stream.
type TickHandle int

// TickSource delivers periodic ticks. Stop must not wait for an
// in-flight fire to return, since fire may block on the caller.
type TickSource interface {
	Start(interval time.Duration, fire func()) TickHandle
	Stop(h TickHandle)
}

// TimerTicks is a TickSource backed by time.Ticker goroutines.
type TimerTicks struct {
	mu      sync.Mutex
	next    TickHandle
	cancels map[TickHandle]context.CancelFunc
}

var _ TickSource = (*TimerTicks)(nil)

// NewTimerTicks creates a tick source with no running streams.
func NewTimerTicks() *TimerTicks {
	return &TimerTicks{cancels: make(map[TickHandle]context.CancelFunc)}
}

// Start fires every interval until Stop is called with the returned handle.
func (t *TimerTicks) Start(interval time.Duration, fire func()) TickHandle {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.next++
	h := t.next
	t.cancels[h] = cancel
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fire()
			}
		}
	}()
	return h
}

// Stop cancels the stream. Unknown handles are ignored.
func (t *TimerTicks) Stop(h TickHandle) {
	t.mu.Lock()
	cancel, ok := t.cancels[h]
	delete(t.cancels, h)
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

// Running returns the number of active streams.
func (t *TimerTicks) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cancels)
}
