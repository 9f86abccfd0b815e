package notify

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
)

// syncBuffer is a bytes.Buffer safe for the player goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestStriker(out *syncBuffer, sleeps *[]time.Duration) *Striker {
	s := NewStriker(out, 10*time.Millisecond, 30*time.Millisecond)
	var mu sync.Mutex
	s.sleep = func(d time.Duration) {
		mu.Lock()
		*sleeps = append(*sleeps, d)
		mu.Unlock()
	}
	return s
}

func TestStriker_RingsEveryStrike(t *testing.T) {
	out := &syncBuffer{}
	var sleeps []time.Duration
	s := newTestStriker(out, &sleeps)

	s.Play(bell.Pattern{2, 2, 1})
	s.Wait()

	if got := strings.Count(out.String(), "\a"); got != 5 {
		t.Errorf("rang %d times, want 5", got)
	}

	// 2-2-1: one strike gap in each pair, two group gaps
	want := []time.Duration{
		10 * time.Millisecond,
		30 * time.Millisecond,
		10 * time.Millisecond,
		30 * time.Millisecond,
	}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleeps[%d] = %s, want %s", i, sleeps[i], want[i])
		}
	}
}

func TestStriker_PatternsDoNotInterleave(t *testing.T) {
	out := &syncBuffer{}
	var sleeps []time.Duration
	s := newTestStriker(out, &sleeps)

	s.Play(bell.Pattern{2, 2, 2, 2})
	s.Play(bell.Pattern{1})
	s.Wait()

	if got := strings.Count(out.String(), "\a"); got != 9 {
		t.Errorf("rang %d times, want 9", got)
	}
}

func TestStriker_Suspended(t *testing.T) {
	out := &syncBuffer{}
	var sleeps []time.Duration
	s := newTestStriker(out, &sleeps)

	s.Suspend()
	if !s.IsSuspended() {
		t.Error("IsSuspended should be true")
	}
	s.Play(bell.Pattern{1})
	s.Wait()
	if out.String() != "" {
		t.Error("bell should not ring while suspended")
	}

	s.Resume()
	if s.IsSuspended() {
		t.Error("IsSuspended should be false after resume")
	}
	s.Play(bell.Pattern{1})
	s.Wait()
	if out.String() != "\a" {
		t.Errorf("output = %q, want one BEL", out.String())
	}
}

func TestStriker_EmptyPattern(t *testing.T) {
	out := &syncBuffer{}
	s := NewStriker(out, 0, 0)
	s.Play(nil)
	s.Wait()
	if out.String() != "" {
		t.Error("empty pattern should not ring")
	}
	if s.strikeGap != DefaultStrikeGap || s.groupGap != DefaultGroupGap {
		t.Errorf("gaps = %s/%s, want defaults", s.strikeGap, s.groupGap)
	}
}

func TestNewCommandPlayer_Validation(t *testing.T) {
	if _, err := NewCommandPlayer(nil, 0, 0, nil); err == nil {
		t.Error("empty command should fail")
	}
	if _, err := NewCommandPlayer([]string{"definitely-not-a-real-player-binary"}, 0, 0, nil); err == nil {
		t.Error("missing binary should fail")
	}
}
