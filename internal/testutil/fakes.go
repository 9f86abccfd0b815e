package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
)

// FakeCalendar returns a settable time of day.
type FakeCalendar struct {
	mu      sync.Mutex
	seconds int
	Err     error
}

// NewFakeCalendar starts at the given second of the day.
func NewFakeCalendar(seconds int) *FakeCalendar {
	return &FakeCalendar{seconds: seconds}
}

func (c *FakeCalendar) Components() (int, int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, 0, 0, c.Err
	}
	s := bell.NormalizeSeconds(c.seconds)
	return s / 3600, s % 3600 / 60, s % 60, nil
}

// Set moves the clock to the given second of the day.
func (c *FakeCalendar) Set(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seconds = seconds
}

// Advance moves the clock forward.
func (c *FakeCalendar) Advance(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seconds += seconds
}

// RecordingPlayer records every pattern it is asked to play.
type RecordingPlayer struct {
	mu     sync.Mutex
	Played []bell.Pattern
}

func (p *RecordingPlayer) Play(pattern bell.Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Played = append(p.Played, pattern)
}

// Count returns the number of patterns played in a thread-safe manner.
func (p *RecordingPlayer) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}

// Patterns returns a copy of the played patterns.
func (p *RecordingPlayer) Patterns() []bell.Pattern {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bell.Pattern, len(p.Played))
	copy(out, p.Played)
	return out
}

// SubmittedRequest is a request held by FakeFacility.
type SubmittedRequest struct {
	Handle   string
	FireAt   time.Time
	Boundary bell.Boundary
	Pattern  bell.Pattern
}

// FakeFacility is an in-memory deferred-delivery facility.
type FakeFacility struct {
	mu         sync.Mutex
	Granted    bool
	Requests   int
	SubmitErr  error
	PendingErr error
	pending    map[string]SubmittedRequest
	submitted  int
	cancelled  int
	next       int
}

func (f *FakeFacility) Authorized(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Granted
}

func (f *FakeFacility) RequestAuthorization(_ context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests++
}

// SetGranted changes the capability flag in a thread-safe manner.
func (f *FakeFacility) SetGranted(granted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Granted = granted
}

func (f *FakeFacility) Submit(_ context.Context, fireAt time.Time, b bell.Boundary, p bell.Pattern) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	if f.pending == nil {
		f.pending = make(map[string]SubmittedRequest)
	}
	f.next++
	h := fmt.Sprintf("req-%03d", f.next)
	f.pending[h] = SubmittedRequest{Handle: h, FireAt: fireAt, Boundary: b, Pattern: p}
	f.submitted++
	return h, nil
}

func (f *FakeFacility) Pending(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PendingErr != nil {
		return nil, f.PendingErr
	}
	handles := make([]string, 0, len(f.pending))
	for h := range f.pending {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}

func (f *FakeFacility) CancelAll(_ context.Context, handles []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range handles {
		if _, ok := f.pending[h]; ok {
			delete(f.pending, h)
			n++
		}
	}
	f.cancelled += n
	return n, nil
}

// PendingRequests returns the pending requests ordered by fire time.
func (f *FakeFacility) PendingRequests() []SubmittedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SubmittedRequest, 0, len(f.pending))
	for _, r := range f.pending {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// Submitted returns the total number of successful submissions.
func (f *FakeFacility) Submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// Cancelled returns the total number of cancelled requests.
func (f *FakeFacility) Cancelled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}
